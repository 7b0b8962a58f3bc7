package main

import (
	"bytes"
	"testing"
	"time"

	astitranscoder "github.com/asticode/go-astitranscoder"
	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	eh := astitranscoder.NewEventHandler()
	buf := &bytes.Buffer{}
	newProgress(buf, true, nil).adapt(eh)
	eh.Emit(astitranscoder.Event{Name: astitranscoder.EventNameProgress, Payload: astitranscoder.EventProgress{Frames: 1, Size: 2048, Speed: 1, Time: time.Second}})
	eh.Emit(astitranscoder.Event{Name: astitranscoder.EventNameProgress, Payload: astitranscoder.EventProgress{Frames: 2, Size: 4096, Speed: 1, Time: 2 * time.Second}})
	eh.Emit(astitranscoder.Event{Name: astitranscoder.EventNamePipelineStopped})
	assert.Equal(t, "\rframe=1 size=2kB time=00:00:01.00 bitrate=0.0kbits/s speed=1x\rframe=2 size=4kB time=00:00:02.00 bitrate=0.0kbits/s speed=1x\n", buf.String())
}
