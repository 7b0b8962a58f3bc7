package astitranscoder

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes events as prometheus metrics
type Metrics struct {
	EventsTotal     *prometheus.CounterVec
	HostCPU         prometheus.Gauge
	HostMemoryUsed  prometheus.Gauge
	ProcessCPU      prometheus.Gauge
	ProcessRSS      prometheus.Gauge
	ProgressBitrate prometheus.Gauge
	ProgressFrames  prometheus.Gauge
	ProgressSize    prometheus.Gauge
	ProgressSpeed   prometheus.Gauge
	ProgressTime    prometheus.Gauge
	Running         prometheus.Gauge
	Stats           *prometheus.GaugeVec
	r               *prometheus.Registry
}

// NewMetrics creates metrics in their own registry
func NewMetrics() (m *Metrics) {
	// Create registry
	m = &Metrics{r: prometheus.NewRegistry()}
	f := promauto.With(m.r)

	// Events
	m.EventsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astitranscoder_events_total",
			Help: "Total number of events",
		},
		[]string{"name"},
	)

	// Progress
	m.ProgressBitrate = f.NewGauge(prometheus.GaugeOpts{
		Name: "astitranscoder_progress_bitrate_bits_per_second",
		Help: "Output bitrate",
	})
	m.ProgressFrames = f.NewGauge(prometheus.GaugeOpts{
		Name: "astitranscoder_progress_frames",
		Help: "Number of frames encoded",
	})
	m.ProgressSize = f.NewGauge(prometheus.GaugeOpts{
		Name: "astitranscoder_progress_size_bytes",
		Help: "Number of bytes written",
	})
	m.ProgressSpeed = f.NewGauge(prometheus.GaugeOpts{
		Name: "astitranscoder_progress_speed_ratio",
		Help: "Processing speed compared to realtime",
	})
	m.ProgressTime = f.NewGauge(prometheus.GaugeOpts{
		Name: "astitranscoder_progress_time_seconds",
		Help: "Output position",
	})

	// Host
	m.HostCPU = f.NewGauge(prometheus.GaugeOpts{
		Name: "astitranscoder_host_cpu_percent",
		Help: "Global CPU usage of the host",
	})
	m.HostMemoryUsed = f.NewGauge(prometheus.GaugeOpts{
		Name: "astitranscoder_host_memory_used_bytes",
		Help: "Memory used on the host",
	})
	m.ProcessCPU = f.NewGauge(prometheus.GaugeOpts{
		Name: "astitranscoder_process_cpu_percent",
		Help: "CPU usage of the transcoder process",
	})
	m.ProcessRSS = f.NewGauge(prometheus.GaugeOpts{
		Name: "astitranscoder_process_resident_memory_bytes",
		Help: "Resident memory of the transcoder process",
	})

	// Pipeline
	m.Running = f.NewGauge(prometheus.GaugeOpts{
		Name: "astitranscoder_pipeline_running",
		Help: "Whether the pipeline is running",
	})

	// Stats
	m.Stats = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "astitranscoder_stat_value",
			Help: "Last value of numeric stats",
		},
		[]string{"name", "target", "unit"},
	)
	return
}

// Handler returns the prometheus handler of the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.r, promhttp.HandlerOpts{})
}

// Registry returns the metrics registry
func (m *Metrics) Registry() *prometheus.Registry { return m.r }

// EventHandlerAdapter updates metrics based on events
func (m *Metrics) EventHandlerAdapter(eh *EventHandler) {
	eh.AddForAll(func(e Event) bool {
		// Count
		m.EventsTotal.WithLabelValues(string(e.Name)).Inc()

		// Switch on name
		switch e.Name {
		case EventNamePipelineStarted:
			m.Running.Set(1)
		case EventNamePipelineStopped:
			m.Running.Set(0)
		case EventNameProgress:
			if p, ok := e.Payload.(EventProgress); ok {
				m.ProgressBitrate.Set(p.Bitrate)
				m.ProgressFrames.Set(float64(p.Frames))
				m.ProgressSize.Set(float64(p.Size))
				m.ProgressSpeed.Set(p.Speed)
				m.ProgressTime.Set(p.Time.Seconds())
			}
		case EventNameStats:
			if ss, ok := e.Payload.([]EventStat); ok {
				for _, s := range ss {
					if v, ok := s.Value.(HostUsage); ok {
						m.HostCPU.Set(v.CPU)
						m.HostMemoryUsed.Set(float64(v.MemoryUsed))
						m.ProcessCPU.Set(v.ProcessCPU)
						m.ProcessRSS.Set(float64(v.ProcessRSS))
					} else if v, ok := statFloat64(s.Value); ok {
						m.Stats.WithLabelValues(s.Name, s.TargetName(), s.Unit).Set(v)
					}
				}
			}
		}
		return false
	})
}

func statFloat64(i interface{}) (float64, bool) {
	switch v := i.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
