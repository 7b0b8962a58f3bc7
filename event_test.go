package astitranscoder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockedTarget struct{ name string }

func (t *mockedTarget) TargetName() string { return t.name }

func TestEventHandler(t *testing.T) {
	h := NewEventHandler()
	t1 := &mockedTarget{name: "t1"}
	t2 := &mockedTarget{name: "t2"}

	var all, forName, forTarget, once []EventName
	h.AddForAll(func(e Event) bool {
		all = append(all, e.Name)
		return false
	})
	h.AddForEventName(EventNameWarning, func(e Event) bool {
		forName = append(forName, e.Name)
		return false
	})
	h.AddForTarget(t1, func(e Event) bool {
		forTarget = append(forTarget, e.Name)
		return false
	})
	h.Add(t2, EventNameError, func(e Event) bool {
		once = append(once, e.Name)
		return true
	})

	h.Emit(EventWarning(t1, "warning %d", 1))
	h.Emit(EventError(t2, errors.New("error")))
	h.Emit(EventError(t2, errors.New("error")))
	h.Emit(Event{Name: EventNamePipelineStarted})

	assert.Equal(t, []EventName{EventNameWarning, EventNameError, EventNameError, EventNamePipelineStarted}, all)
	assert.Equal(t, []EventName{EventNameWarning}, forName)
	assert.Equal(t, []EventName{EventNameWarning}, forTarget)
	assert.Equal(t, []EventName{EventNameError}, once)
}

func TestEventHandlerOrder(t *testing.T) {
	h := NewEventHandler()
	var order []int
	h.AddForEventName(EventNameInfo, func(Event) bool {
		order = append(order, 1)
		return false
	})
	h.AddForAll(func(Event) bool {
		order = append(order, 2)
		return false
	})
	h.AddForEventName(EventNameInfo, func(Event) bool {
		order = append(order, 3)
		return false
	})
	h.Emit(EventInfo(nil, "info"))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEventHandlerLog(t *testing.T) {
	ml := newMockedLogger()
	h := NewEventHandler()
	l := h.Log(EventHandlerLogOptions{Logger: ml})
	l.Start(context.Background())
	defer l.Close()

	h.Emit(EventWarning(&mockedTarget{name: "output stream #0:1"}, "%s", "warning"))
	h.Emit(EventError(&mockedTarget{name: "input #0"}, errors.New("astipipeline: error")))
	h.Emit(Event{Name: EventNamePipelineStopped})

	ml.m.Lock()
	defer ml.m.Unlock()
	assert.Equal(t, map[string]int{
		"output stream #0:1: warning":         1,
		"astipipeline: error (input #0)":      1,
		"astitranscoder: pipeline is stopped": 1,
	}, ml.msgs)
}

func TestEventProgress(t *testing.T) {
	p := EventProgress{
		Bitrate: 1536000,
		Frames:  250,
		Size:    2048 * 1024,
		Speed:   1.5,
		Time:    3723500 * time.Millisecond,
	}
	assert.Equal(t, "frame=250 size=2048kB time=01:02:03.50 bitrate=1536.0kbits/s speed=1.5x", p.String())
}
