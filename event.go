package astitranscoder

import (
	"fmt"
	"math"
	"time"
)

// EventName represents an event name
type EventName string

// Default event names
const (
	EventNameError           EventName = "astitranscoder.error"
	EventNameInfo            EventName = "astitranscoder.info"
	EventNameInputOpened     EventName = "astitranscoder.input.opened"
	EventNameOutputOpened    EventName = "astitranscoder.output.opened"
	EventNamePipelineStarted EventName = "astitranscoder.pipeline.started"
	EventNamePipelineStopped EventName = "astitranscoder.pipeline.stopped"
	EventNameProgress        EventName = "astitranscoder.progress"
	EventNameStats           EventName = "astitranscoder.stats"
	EventNameStreamMapped    EventName = "astitranscoder.stream.mapped"
	EventNameWarning         EventName = "astitranscoder.warning"
)

// Event is an event coming out of the transcoder
type Event struct {
	Name    EventName
	Payload interface{}
	Target  interface{}
}

// Target is implemented by objects events can be emitted for
type Target interface {
	TargetName() string
}

// EventError returns an error event
func EventError(target interface{}, err error) Event {
	return Event{
		Name:    EventNameError,
		Payload: err,
		Target:  target,
	}
}

// EventWarning returns a warning event
func EventWarning(target interface{}, format string, args ...interface{}) Event {
	return Event{
		Name:    EventNameWarning,
		Payload: fmt.Sprintf(format, args...),
		Target:  target,
	}
}

// EventInfo returns an info event
func EventInfo(target interface{}, format string, args ...interface{}) Event {
	return Event{
		Name:    EventNameInfo,
		Payload: fmt.Sprintf(format, args...),
		Target:  target,
	}
}

func targetName(t interface{}) (s string) {
	if v, ok := t.(Target); ok {
		s = v.TargetName()
	} else if t != nil {
		s = fmt.Sprintf("%p", t)
	}
	return
}

// EventInputOpened is the payload of EventNameInputOpened
type EventInputOpened struct {
	Duration time.Duration        `json:"duration"`
	Format   string               `json:"format"`
	Index    int                  `json:"index"`
	Path     string               `json:"path"`
	Streams  []EventStreamSummary `json:"streams"`
}

// EventOutputOpened is the payload of EventNameOutputOpened
type EventOutputOpened struct {
	Format  string               `json:"format"`
	Index   int                  `json:"index"`
	Path    string               `json:"path"`
	Streams []EventStreamSummary `json:"streams"`
}

// EventStreamSummary describes a stream in opened events
type EventStreamSummary struct {
	Codec     string `json:"codec"`
	Index     int    `json:"index"`
	MediaType string `json:"media_type"`
}

// EventStreamMapped is the payload of EventNameStreamMapped
type EventStreamMapped struct {
	Destination string `json:"destination"`
	Method      string `json:"method"`
	Source      string `json:"source"`
}

// EventProgress is the payload of EventNameProgress
type EventProgress struct {
	Bitrate float64       `json:"bitrate"`
	Frames  uint64        `json:"frames"`
	Size    int64         `json:"size"`
	Speed   float64       `json:"speed"`
	Time    time.Duration `json:"time"`
}

// String returns an ffmpeg-like progress line
func (p EventProgress) String() string {
	t := p.Time.Round(10 * time.Millisecond)
	return fmt.Sprintf("frame=%d size=%dkB time=%02d:%02d:%05.2f bitrate=%.1fkbits/s speed=%.3gx", p.Frames, p.Size/1024, int(t.Hours()), int(t.Minutes())%60, math.Mod(t.Seconds(), 60), p.Bitrate/1000, p.Speed)
}
