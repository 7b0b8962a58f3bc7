package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/asticode/go-astikit"
	astitranscoder "github.com/asticode/go-astitranscoder"
)

// progress prints progress events on a single line when writing to a terminal and logs them otherwise
type progress struct {
	l        *astitranscoder.EventLogger
	m        *sync.Mutex // Locks w and written
	terminal bool
	w        io.Writer
	written  bool
}

func newProgress(w io.Writer, terminal bool, l *astitranscoder.EventLogger) *progress {
	return &progress{
		l:        l,
		m:        &sync.Mutex{},
		terminal: terminal,
		w:        w,
	}
}

func (p *progress) adapt(eh *astitranscoder.EventHandler) {
	eh.AddForEventName(astitranscoder.EventNameProgress, func(e astitranscoder.Event) bool {
		if v, ok := e.Payload.(astitranscoder.EventProgress); ok {
			p.write(v)
		}
		return false
	})
	eh.AddForEventName(astitranscoder.EventNamePipelineStopped, func(e astitranscoder.Event) bool {
		p.end()
		return false
	})
}

func (p *progress) write(v astitranscoder.EventProgress) {
	// Not a terminal
	if !p.terminal {
		p.l.Writef(astikit.LoggerLevelInfo, "%s", v)
		return
	}

	// Write
	p.m.Lock()
	defer p.m.Unlock()
	fmt.Fprintf(p.w, "\r%s", v)
	p.written = true
}

func (p *progress) end() {
	p.m.Lock()
	defer p.m.Unlock()
	if p.written {
		fmt.Fprintln(p.w)
		p.written = false
	}
}
