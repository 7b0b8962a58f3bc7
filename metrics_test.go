package astitranscoder

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	h := NewEventHandler()
	m := NewMetrics()
	m.EventHandlerAdapter(h)

	// Pipeline
	h.Emit(Event{Name: EventNamePipelineStarted})
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Running))

	// Progress
	h.Emit(Event{Name: EventNameProgress, Payload: EventProgress{
		Bitrate: 1000,
		Frames:  25,
		Size:    2048,
		Speed:   1.5,
		Time:    2 * time.Second,
	}})
	assert.Equal(t, float64(1000), testutil.ToFloat64(m.ProgressBitrate))
	assert.Equal(t, float64(25), testutil.ToFloat64(m.ProgressFrames))
	assert.Equal(t, float64(2048), testutil.ToFloat64(m.ProgressSize))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.ProgressSpeed))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ProgressTime))

	// Stats
	h.Emit(Event{Name: EventNameStats, Payload: []EventStat{
		{Name: "astipipeline.packets.read", Target: &mockedTarget{name: "input stream #0:0"}, Unit: "pps", Value: 12.5},
		{Name: "invalid", Value: "invalid"},
		{Name: StatNameHostUsage, Value: HostUsage{
			CPU:        42,
			MemoryUsed: 1024,
			ProcessCPU: 12,
			ProcessRSS: 512,
		}},
	}})
	assert.Equal(t, 12.5, testutil.ToFloat64(m.Stats.WithLabelValues("astipipeline.packets.read", "input stream #0:0", "pps")))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.HostCPU))
	assert.Equal(t, float64(1024), testutil.ToFloat64(m.HostMemoryUsed))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.ProcessCPU))
	assert.Equal(t, float64(512), testutil.ToFloat64(m.ProcessRSS))

	// Stopped
	h.Emit(Event{Name: EventNamePipelineStopped})
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Running))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsTotal.WithLabelValues(string(EventNameProgress))))

	// Handler
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "astitranscoder_progress_frames 25"))
}
