package astitranscoder

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
)

// Recording writes events to a csv file. Each line holds the unix timestamp, the event name and the base64
// encoded JSON of the exposed event.
type Recording struct {
	c      *astikit.Chan
	cancel context.CancelFunc
	l      astikit.SeverityLogger
	m      *sync.Mutex // Locks cancel, path and w
	o      RecordingOptions
	path   string
	w      *csv.Writer
}

// RecordingOptions represents recording options
type RecordingOptions struct {
	// A temporary file is created when empty
	Dst    string
	Logger astikit.StdLogger
}

// NewRecording creates a new recording fed by the event handler
func NewRecording(o RecordingOptions, eh *EventHandler) (r *Recording) {
	// Create recording
	r = &Recording{
		c: astikit.NewChan(astikit.ChanOptions{
			ProcessAll: true,
		}),
		l: astikit.AdaptStdLogger(o.Logger),
		m: &sync.Mutex{},
		o: o,
	}

	// Handle events
	eh.AddForAll(func(e Event) bool {
		if err := r.write(string(e.Name), newExposedEvent(e)); err != nil {
			r.l.Error(fmt.Errorf("astitranscoder: writing to recording failed: %w", err))
		}
		return false
	})
	return
}

// Path returns the path of the recording once it has started
func (r *Recording) Path() string {
	r.m.Lock()
	defer r.m.Unlock()
	return r.path
}

// Start starts the recording. It blocks until the context is done or the recording is stopped.
func (r *Recording) Start(ctx context.Context) (err error) {
	// Recording already started
	r.m.Lock()
	if r.cancel != nil {
		r.m.Unlock()
		return
	}

	// Create context
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	// Make sure to reset context
	defer func() {
		cancel()
		r.m.Lock()
		r.cancel = nil
		r.w = nil
		r.m.Unlock()
	}()

	// Create destination
	var f *os.File
	if r.o.Dst != "" {
		if f, err = os.Create(r.o.Dst); err != nil {
			r.m.Unlock()
			err = fmt.Errorf("astitranscoder: creating %s failed: %w", r.o.Dst, err)
			return
		}
	} else {
		if f, err = os.CreateTemp("", "astitranscoder-recording-*.csv"); err != nil {
			r.m.Unlock()
			err = fmt.Errorf("astitranscoder: creating temp file failed: %w", err)
			return
		}
	}
	defer f.Close()

	// Update path
	r.path = f.Name()

	// Create csv writer
	w := csv.NewWriter(f)
	r.w = w
	r.m.Unlock()

	// Start chan
	r.c.Start(ctx)

	// Reset chan
	r.c.Reset()

	// Flush csv
	w.Flush()
	if err = w.Error(); err != nil {
		err = fmt.Errorf("astitranscoder: flushing csv failed: %w", err)
		return
	}
	return
}

func (r *Recording) write(name string, payload interface{}) (err error) {
	// Recording not started
	r.m.Lock()
	w := r.w
	r.m.Unlock()
	if w == nil {
		return
	}

	// Marshal payload
	var b []byte
	if b, err = json.Marshal(payload); err != nil {
		err = fmt.Errorf("astitranscoder: marshaling failed: %w", err)
		return
	}

	// Write
	t := time.Now().UTC().Unix()
	r.c.Add(func() {
		w.Write([]string{strconv.FormatInt(t, 10), name, base64.StdEncoding.EncodeToString(b)}) //nolint:errcheck
		w.Flush()
	})
	return
}

// Stop stops the recording
func (r *Recording) Stop() {
	r.m.Lock()
	defer r.m.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}
