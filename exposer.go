package astitranscoder

import (
	"sync"

	"github.com/asticode/go-astikit"
)

// ExposedEvent represents an event exposed through the server and recordings
type ExposedEvent struct {
	Name    EventName   `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
	Target  string      `json:"target,omitempty"`
}

func newExposedEvent(e Event) ExposedEvent {
	// Get payload
	p := e.Payload
	switch v := e.Payload.(type) {
	case error:
		p = astikit.ErrorCause(v).Error()
	case []EventStat:
		ss := []ExposedStat{}
		for _, s := range v {
			ss = append(ss, newExposedStat(s))
		}
		p = ss
	}

	// Create exposed event
	return ExposedEvent{
		Name:    e.Name,
		Payload: p,
		Target:  targetName(e.Target),
	}
}

// ExposedStat represents an exposed stat
type ExposedStat struct {
	Label  string      `json:"label"`
	Name   string      `json:"name"`
	Target string      `json:"target,omitempty"`
	Unit   string      `json:"unit"`
	Value  interface{} `json:"value"`
}

func newExposedStat(s EventStat) ExposedStat {
	return ExposedStat{
		Label:  s.Label,
		Name:   s.Name,
		Target: s.TargetName(),
		Unit:   s.Unit,
		Value:  s.Value,
	}
}

// ExposedStatus represents the exposed state of the transcoder
type ExposedStatus struct {
	Errors   []string            `json:"errors"`
	Inputs   []EventInputOpened  `json:"inputs"`
	Outputs  []EventOutputOpened `json:"outputs"`
	Progress *EventProgress      `json:"progress,omitempty"`
	Running  bool                `json:"running"`
	Stats    []ExposedStat       `json:"stats"`
	Warnings int                 `json:"warnings"`
}

type exposer struct {
	m *sync.Mutex // Locks s
	s ExposedStatus
}

func newExposer() *exposer {
	return &exposer{
		m: &sync.Mutex{},
		s: ExposedStatus{
			Errors:  []string{},
			Inputs:  []EventInputOpened{},
			Outputs: []EventOutputOpened{},
			Stats:   []ExposedStat{},
		},
	}
}

func (e *exposer) handleEvent(evt Event) {
	e.m.Lock()
	defer e.m.Unlock()
	switch evt.Name {
	case EventNameError:
		if err, ok := evt.Payload.(error); ok {
			e.s.Errors = append(e.s.Errors, astikit.ErrorCause(err).Error())
		}
	case EventNameInputOpened:
		if p, ok := evt.Payload.(EventInputOpened); ok {
			e.s.Inputs = append(e.s.Inputs, p)
		}
	case EventNameOutputOpened:
		if p, ok := evt.Payload.(EventOutputOpened); ok {
			e.s.Outputs = append(e.s.Outputs, p)
		}
	case EventNamePipelineStarted:
		e.s.Running = true
	case EventNamePipelineStopped:
		e.s.Running = false
	case EventNameProgress:
		if p, ok := evt.Payload.(EventProgress); ok {
			e.s.Progress = &p
		}
	case EventNameStats:
		if ss, ok := evt.Payload.([]EventStat); ok {
			e.s.Stats = []ExposedStat{}
			for _, s := range ss {
				e.s.Stats = append(e.s.Stats, newExposedStat(s))
			}
		}
	case EventNameWarning:
		e.s.Warnings++
	}
}

func (e *exposer) status() (s ExposedStatus) {
	e.m.Lock()
	defer e.m.Unlock()
	s = e.s
	s.Errors = append([]string{}, e.s.Errors...)
	s.Inputs = append([]EventInputOpened{}, e.s.Inputs...)
	s.Outputs = append([]EventOutputOpened{}, e.s.Outputs...)
	s.Stats = append([]ExposedStat{}, e.s.Stats...)
	if e.s.Progress != nil {
		p := *e.s.Progress
		s.Progress = &p
	}
	return
}
