package astitranscoder

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer(t *testing.T) {
	h := NewEventHandler()
	m := NewMetrics()
	s := NewServer(ServerOptions{
		Logger:  newMockedLogger(),
		Metrics: m,
	})
	s.EventHandlerAdapter(h)
	m.EventHandlerAdapter(h)
	sh := s.Handler()

	// Ok
	rec := httptest.NewRecorder()
	sh.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Events
	h.Emit(Event{Name: EventNamePipelineStarted})
	h.Emit(Event{Name: EventNameInputOpened, Payload: EventInputOpened{Format: "mov,mp4", Path: "in.mp4"}})
	h.Emit(Event{Name: EventNameProgress, Payload: EventProgress{Frames: 10, Time: time.Second}})
	h.Emit(EventWarning(nil, "warning"))
	h.Emit(EventError(nil, errors.New("error")))

	// Status
	rec = httptest.NewRecorder()
	sh.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st ExposedStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.True(t, st.Running)
	assert.Equal(t, []string{"error"}, st.Errors)
	require.Len(t, st.Inputs, 1)
	assert.Equal(t, "in.mp4", st.Inputs[0].Path)
	require.NotNil(t, st.Progress)
	assert.Equal(t, uint64(10), st.Progress.Frames)
	assert.Equal(t, 1, st.Warnings)

	// Metrics
	rec = httptest.NewRecorder()
	sh.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Metrics disabled
	rec = httptest.NewRecorder()
	NewServer(ServerOptions{Logger: newMockedLogger()}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExposedEvent(t *testing.T) {
	assert.Equal(t, ExposedEvent{
		Name: EventNameStats,
		Payload: []ExposedStat{{
			Label:  "l",
			Name:   "n",
			Target: "t",
			Unit:   "u",
			Value:  1,
		}},
	}, newExposedEvent(Event{Name: EventNameStats, Payload: []EventStat{{
		Label:  "l",
		Name:   "n",
		Target: &mockedTarget{name: "t"},
		Unit:   "u",
		Value:  1,
	}}}))
}
