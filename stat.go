package astitranscoder

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Stat names
const (
	StatNameHostUsage = "astitranscoder.host.usage"
)

// EventStat is an item of the payload of EventNameStats
type EventStat struct {
	Description string      `json:"description"`
	Label       string      `json:"label"`
	Name        string      `json:"name"`
	Target      interface{} `json:"-"`
	Unit        string      `json:"unit"`
	Value       interface{} `json:"value"`
}

// TargetName returns the name of the stat target
func (e EventStat) TargetName() string { return targetName(e.Target) }

// Stater computes stats periodically and emits them as EventNameStats events
type Stater struct {
	eh *EventHandler
	hu *hostUsageValuer
	m  *sync.Mutex                           // Locks hu and ts
	s  *astikit.Stater
	ts map[*astikit.StatMetadata]interface{} // Targets indexed by stats metadata
}

// NewStater creates a new stater
func NewStater(period time.Duration, eh *EventHandler) (s *Stater) {
	s = &Stater{
		eh: eh,
		m:  &sync.Mutex{},
		ts: make(map[*astikit.StatMetadata]interface{}),
	}
	s.s = astikit.NewStater(astikit.StaterOptions{
		HandleFunc: s.handle,
		Period:     period,
	})
	return
}

// AddStats adds stats
func (s *Stater) AddStats(target interface{}, os ...astikit.StatOptions) {
	s.m.Lock()
	defer s.m.Unlock()
	for _, o := range os {
		s.ts[o.Metadata] = target
	}
	s.s.AddStats(os...)
}

// DelStats deletes stats
func (s *Stater) DelStats(target interface{}, os ...astikit.StatOptions) {
	s.m.Lock()
	defer s.m.Unlock()
	for _, o := range os {
		delete(s.ts, o.Metadata)
	}
	s.s.DelStats(os...)
}

// AddHostStats adds CPU and memory usage of the host and of the current process
func (s *Stater) AddHostStats() {
	// Create valuer
	s.m.Lock()
	if s.hu != nil {
		s.m.Unlock()
		return
	}
	s.hu = newHostUsageValuer()
	s.m.Unlock()

	// Add stats
	s.AddStats(nil, astikit.StatOptions{
		Metadata: &astikit.StatMetadata{
			Description: "CPU and memory usage of the host and of the transcoder",
			Label:       "Host usage",
			Name:        StatNameHostUsage,
			Unit:        "%",
		},
		Valuer: s.hu,
	})
}

// Start starts the stater. It blocks until the context is done.
func (s *Stater) Start(ctx context.Context) {
	if hu := s.hostUsage(); hu != nil {
		hu.start()
		defer hu.stop()
	}
	s.s.Start(ctx)
}

// Stop stops the stater
func (s *Stater) Stop() { s.s.Stop() }

func (s *Stater) hostUsage() *hostUsageValuer {
	s.m.Lock()
	defer s.m.Unlock()
	return s.hu
}

func (s *Stater) handle(stats []astikit.StatValue) {
	// Build payload
	s.m.Lock()
	var ss []EventStat
	for _, stat := range stats {
		// Stats without target or value are skipped
		t, ok := s.ts[stat.StatMetadata]
		if !ok || stat.Value == nil {
			continue
		}
		ss = append(ss, EventStat{
			Description: stat.Description,
			Label:       stat.Label,
			Name:        stat.Name,
			Target:      t,
			Unit:        stat.Unit,
			Value:       stat.Value,
		})
	}
	s.m.Unlock()

	// Nothing to emit
	if len(ss) == 0 {
		return
	}

	// Emit
	s.eh.Emit(Event{
		Name:    EventNameStats,
		Payload: ss,
	})
}

// HostUsage is the value of the StatNameHostUsage stat
type HostUsage struct {
	CPU         float64   `json:"cpu"`
	CPUs        []float64 `json:"cpus"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryUsed  uint64    `json:"memory_used"`
	ProcessCPU  float64   `json:"process_cpu"`
	ProcessRSS  uint64    `json:"process_rss"`
}

type hostUsageValuer struct {
	p       *process.Process
	started uint32
}

func newHostUsageValuer() (v *hostUsageValuer) {
	v = &hostUsageValuer{}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		v.p = p
	}
	return
}

func (v *hostUsageValuer) start() { atomic.StoreUint32(&v.started, 1) }

func (v *hostUsageValuer) stop() { atomic.StoreUint32(&v.started, 0) }

// Value implements the astikit.StatValuer interface
func (v *hostUsageValuer) Value(delta time.Duration) interface{} {
	// Not started
	if atomic.LoadUint32(&v.started) == 0 {
		return nil
	}

	// Host
	var u HostUsage
	if vs, err := cpu.Percent(0, true); err == nil && len(vs) > 0 {
		u.CPUs = vs
		for _, c := range vs {
			u.CPU += c
		}
		u.CPU /= float64(len(vs))
	}
	if m, err := mem.VirtualMemory(); err == nil {
		u.MemoryTotal = m.Total
		u.MemoryUsed = m.Used
	}

	// Process
	if v.p != nil {
		if c, err := v.p.Percent(0); err == nil {
			u.ProcessCPU = c
		}
		if m, err := v.p.MemoryInfo(); err == nil {
			u.ProcessRSS = m.RSS
		}
	}
	return u
}
