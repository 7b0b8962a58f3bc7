package astitranscoder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
)

// EventLogger writes events to a logger, optionally merging repeated messages
type EventLogger struct {
	cancel               context.CancelFunc
	ctx                  context.Context
	is                   map[string]*eventLoggerItem // Indexed by key
	l                    astikit.CompleteLogger
	m                    *sync.Mutex // Locks is
	messageMergingPeriod time.Duration
	minSeverity          int
}

type eventLoggerItem struct {
	count     int
	createdAt time.Time
	key       string
	l         astikit.LoggerLevel
	msg       string
}

func newEventLoggerItem(key, msg string, l astikit.LoggerLevel) *eventLoggerItem {
	return &eventLoggerItem{
		createdAt: time.Now(),
		key:       key,
		l:         l,
		msg:       msg,
	}
}

// WithMessageMerging merges messages sharing the same key during the provided period
func WithMessageMerging(period time.Duration) EventHandlerLogAdapter {
	return func(_ *EventHandler, l *EventLogger) {
		l.messageMergingPeriod = period
	}
}

var loggerLevelSeverities = map[astikit.LoggerLevel]int{
	astikit.LoggerLevelDebug: 0,
	astikit.LoggerLevelInfo:  1,
	astikit.LoggerLevelWarn:  2,
	astikit.LoggerLevelError: 3,
	astikit.LoggerLevelFatal: 4,
}

// WithMinimumLevel drops messages less severe than the provided level
func WithMinimumLevel(lv astikit.LoggerLevel) EventHandlerLogAdapter {
	return func(_ *EventHandler, l *EventLogger) {
		l.minSeverity = loggerLevelSeverities[lv]
	}
}

func newEventLogger(i astikit.StdLogger) *EventLogger {
	return &EventLogger{
		is: make(map[string]*eventLoggerItem),
		l:  astikit.AdaptStdLogger(i),
		m:  &sync.Mutex{},
	}
}

// Start starts the event logger
func (l *EventLogger) Start(ctx context.Context) *EventLogger {
	// Create context
	l.ctx, l.cancel = context.WithCancel(ctx)

	// Nothing to merge
	if l.messageMergingPeriod == 0 {
		return l
	}

	// Dump merged items periodically
	go func() {
		t := time.NewTicker(200 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				l.tick()
			case <-l.ctx.Done():
				return
			}
		}
	}()
	return l
}

// Close stops the event logger and dumps merged items
func (l *EventLogger) Close() {
	if l.cancel != nil {
		l.cancel()
	}
	l.purge()
}

func (l *EventLogger) tick() {
	// Lock
	l.m.Lock()
	defer l.m.Unlock()

	// Dump items whose period is over
	n := time.Now()
	for k, i := range l.is {
		if n.Sub(i.createdAt) > l.messageMergingPeriod {
			l.dumpItem(k, i)
		}
	}
}

func (l *EventLogger) purge() {
	// Lock
	l.m.Lock()
	defer l.m.Unlock()

	// Dump all items
	for k, i := range l.is {
		l.dumpItem(k, i)
	}
}

func (l *EventLogger) dumpItem(k string, i *eventLoggerItem) {
	if i.count > 1 {
		l.write(i.l, fmt.Sprintf("astitranscoder: pattern repeated %d times: %s", i.count, i.key))
	} else if i.count == 1 {
		l.write(i.l, "astitranscoder: pattern repeated once: "+i.msg)
	}
	delete(l.is, k)
}

func (l *EventLogger) process(lv astikit.LoggerLevel, key, msg string) {
	// Level
	if loggerLevelSeverities[lv] < l.minSeverity {
		return
	}

	// Merge
	if l.messageMergingPeriod > 0 && l.merge(lv, key, msg) {
		return
	}

	// Write
	l.write(lv, msg)
}

func (l *EventLogger) merge(lv astikit.LoggerLevel, key, msg string) (merged bool) {
	// Lock
	l.m.Lock()
	defer l.m.Unlock()

	// Item exists
	k := lv.String() + ":" + key
	if i, ok := l.is[k]; ok {
		i.count++
		return true
	}

	// Create item
	l.is[k] = newEventLoggerItem(key, msg, lv)
	return false
}

func (l *EventLogger) write(lv astikit.LoggerLevel, msg string) {
	switch lv {
	case astikit.LoggerLevelDebug:
		l.l.Debug(msg)
	case astikit.LoggerLevelError:
		l.l.Error(msg)
	case astikit.LoggerLevelWarn:
		l.l.Warn(msg)
	default:
		l.l.Info(msg)
	}
}

// Writef writes a formatted message. The message is its own merging key.
func (l *EventLogger) Writef(lv astikit.LoggerLevel, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.process(lv, msg, msg)
}

// Writek writes a message merged with other messages sharing the same key
func (l *EventLogger) Writek(lv astikit.LoggerLevel, key, msg string) {
	l.process(lv, key, msg)
}
