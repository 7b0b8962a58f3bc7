package astitranscoder

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/asticode/go-astikit"
)

// EventHandler dispatches events to callbacks registered per target and/or per event name
type EventHandler struct {
	// Indexed by target, then by event name, then by callback idx
	cs  map[interface{}]map[EventName]map[int]EventCallback
	idx int
	m   *sync.Mutex
}

// EventCallback represents an event callback. Returning true removes the callback.
type EventCallback func(e Event) (deleteListener bool)

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{
		cs: make(map[interface{}]map[EventName]map[int]EventCallback),
		m:  &sync.Mutex{},
	}
}

// Add adds a new callback for a specific target and event name
func (h *EventHandler) Add(target interface{}, eventName EventName, c EventCallback) {
	h.m.Lock()
	defer h.m.Unlock()
	if _, ok := h.cs[target]; !ok {
		h.cs[target] = make(map[EventName]map[int]EventCallback)
	}
	if _, ok := h.cs[target][eventName]; !ok {
		h.cs[target][eventName] = make(map[int]EventCallback)
	}
	h.idx++
	h.cs[target][eventName][h.idx] = c
}

// AddForEventName adds a new callback for a specific event name
func (h *EventHandler) AddForEventName(eventName EventName, c EventCallback) {
	h.Add(nil, eventName, c)
}

// AddForTarget adds a new callback for a specific target
func (h *EventHandler) AddForTarget(target interface{}, c EventCallback) {
	h.Add(target, "", c)
}

// AddForAll adds a new callback for all events
func (h *EventHandler) AddForAll(c EventCallback) {
	h.Add(nil, "", c)
}

func (h *EventHandler) del(target interface{}, eventName EventName, idx int) {
	h.m.Lock()
	defer h.m.Unlock()
	if ns, ok := h.cs[target]; ok {
		if cs, ok := ns[eventName]; ok {
			delete(cs, idx)
		}
	}
}

type eventHandlerCallback struct {
	c         EventCallback
	eventName EventName
	idx       int
	target    interface{}
}

func (h *EventHandler) callbacks(target interface{}, eventName EventName) (cs []eventHandlerCallback) {
	// Lock
	h.m.Lock()
	defer h.m.Unlock()

	// Collect callbacks matching either the exact target/name or the wildcards
	targets := []interface{}{nil}
	if target != nil {
		targets = append(targets, target)
	}
	eventNames := []EventName{""}
	if eventName != "" {
		eventNames = append(eventNames, eventName)
	}
	for _, t := range targets {
		ns, ok := h.cs[t]
		if !ok {
			continue
		}
		for _, n := range eventNames {
			for idx, c := range ns[n] {
				cs = append(cs, eventHandlerCallback{
					c:         c,
					eventName: n,
					idx:       idx,
					target:    t,
				})
			}
		}
	}

	// Callbacks are executed in the order they were added
	sort.Slice(cs, func(i, j int) bool { return cs[i].idx < cs[j].idx })
	return
}

// Emit emits an event
func (h *EventHandler) Emit(e Event) {
	for _, c := range h.callbacks(e.Target, e.Name) {
		if c.c(e) {
			h.del(c.target, c.eventName, c.idx)
		}
	}
}

// EventHandlerLogAdapter configures the event logger created by EventHandler.Log
type EventHandlerLogAdapter func(*EventHandler, *EventLogger)

// EventHandlerLogOptions represents event handler log options
type EventHandlerLogOptions struct {
	Adapters     []EventHandlerLogAdapter
	Logger       astikit.StdLogger
	LoggerLevels map[EventName]astikit.LoggerLevel
}

// Log logs events with the provided logger
func (h *EventHandler) Log(o EventHandlerLogOptions) (l *EventLogger) {
	// Create event logger
	l = newEventLogger(o.Logger)

	// Loop through adapters
	for _, a := range o.Adapters {
		a(h, l)
	}

	// Get logger levels
	lls := map[EventName]astikit.LoggerLevel{
		EventNameError:           astikit.LoggerLevelError,
		EventNameInfo:            astikit.LoggerLevelInfo,
		EventNameInputOpened:     astikit.LoggerLevelInfo,
		EventNameOutputOpened:    astikit.LoggerLevelInfo,
		EventNamePipelineStarted: astikit.LoggerLevelInfo,
		EventNamePipelineStopped: astikit.LoggerLevelInfo,
		EventNameStreamMapped:    astikit.LoggerLevelInfo,
		EventNameWarning:         astikit.LoggerLevelWarn,
	}
	for n, ll := range o.LoggerLevels {
		lls[n] = ll
	}

	// Error
	h.AddForEventName(EventNameError, func(e Event) bool {
		t := targetName(e.Target)
		if len(t) > 0 {
			t = " (" + t + ")"
		}
		l.Writef(lls[e.Name], "%s%s", e.Payload.(error), t)
		return false
	})

	// Warning and info
	for _, n := range []EventName{EventNameInfo, EventNameWarning} {
		h.AddForEventName(n, func(e Event) bool {
			msg := e.Payload.(string)
			if t := targetName(e.Target); t != "" {
				msg = t + ": " + msg
			}
			l.Writef(lls[e.Name], "%s", msg)
			return false
		})
	}

	// Files
	h.AddForEventName(EventNameInputOpened, func(e Event) bool {
		p := e.Payload.(EventInputOpened)
		l.Writef(lls[e.Name], "astitranscoder: input #%d, %s, from '%s' (duration %s)%s", p.Index, p.Format, p.Path, p.Duration, describeStreams(p.Index, p.Streams))
		return false
	})
	h.AddForEventName(EventNameOutputOpened, func(e Event) bool {
		p := e.Payload.(EventOutputOpened)
		l.Writef(lls[e.Name], "astitranscoder: output #%d, %s, to '%s'%s", p.Index, p.Format, p.Path, describeStreams(p.Index, p.Streams))
		return false
	})
	h.AddForEventName(EventNameStreamMapped, func(e Event) bool {
		p := e.Payload.(EventStreamMapped)
		l.Writek(lls[e.Name], "astitranscoder: stream mapped", fmt.Sprintf("astitranscoder: stream %s -> %s (%s)", p.Source, p.Destination, p.Method))
		return false
	})

	// Pipeline
	h.AddForEventName(EventNamePipelineStarted, func(e Event) bool {
		l.Writef(lls[e.Name], "astitranscoder: pipeline is started")
		return false
	})
	h.AddForEventName(EventNamePipelineStopped, func(e Event) bool {
		l.Writef(lls[e.Name], "astitranscoder: pipeline is stopped")
		return false
	})
	return
}

func describeStreams(fileIdx int, ss []EventStreamSummary) string {
	var b strings.Builder
	for _, s := range ss {
		b.WriteString(fmt.Sprintf("\n    stream #%d:%d: %s: %s", fileIdx, s.Index, s.MediaType, s.Codec))
	}
	return b.String()
}
