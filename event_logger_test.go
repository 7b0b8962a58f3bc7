package astitranscoder

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockedLogger struct {
	m    *sync.Mutex
	msgs map[string]int
}

func newMockedLogger() *mockedLogger {
	return &mockedLogger{
		m:    &sync.Mutex{},
		msgs: make(map[string]int),
	}
}

func (l *mockedLogger) Fatal(v ...interface{}) {
	l.m.Lock()
	defer l.m.Unlock()
	l.msgs[fmt.Sprint(v...)]++
	os.Exit(1)
}
func (l *mockedLogger) Fatalf(format string, v ...interface{}) {
	l.m.Lock()
	defer l.m.Unlock()
	l.msgs[fmt.Sprintf(format, v...)]++
	os.Exit(1)
}
func (l *mockedLogger) Print(v ...interface{}) {
	l.m.Lock()
	defer l.m.Unlock()
	l.msgs[fmt.Sprint(v...)]++
}
func (l *mockedLogger) Printf(format string, v ...interface{}) {
	l.m.Lock()
	defer l.m.Unlock()
	l.msgs[fmt.Sprintf(format, v...)]++
}

func (l *mockedLogger) snapshot() map[string]int {
	l.m.Lock()
	defer l.m.Unlock()
	m := make(map[string]int)
	for k, v := range l.msgs {
		m[k] = v
	}
	return m
}

func TestEventLoggerMessageMerging(t *testing.T) {
	ml := newMockedLogger()
	l := newEventLogger(ml)
	WithMessageMerging(time.Hour)(nil, l)
	WithMinimumLevel(astikit.LoggerLevelInfo)(nil, l)

	// Messages sharing a key and a level are written once
	for _, v := range []string{"0.6", "0.7", "0.8"} {
		l.Writek(astikit.LoggerLevelWarn, "astilibav: past duration too large", "astilibav: past duration "+v+" too large")
	}
	l.Writef(astikit.LoggerLevelError, "astipipeline: reading %s failed: boom", "in0")
	l.Writef(astikit.LoggerLevelError, "astipipeline: reading %s failed: boom", "in0")
	l.Writef(astikit.LoggerLevelInfo, "astipipeline: reading %s failed: boom", "in0")
	l.Writef(astikit.LoggerLevelInfo, "astitranscoder: pipeline is started")

	// Dropped messages are not merged
	for i := 0; i < 3; i++ {
		l.Writek(astikit.LoggerLevelDebug, "astilibav: frame", fmt.Sprintf("astilibav: frame %d", i))
	}
	require.Equal(t, map[string]int{
		"astilibav: past duration 0.6 too large": 1,
		"astipipeline: reading in0 failed: boom": 2,
		"astitranscoder: pipeline is started":    1,
	}, ml.snapshot())

	// Closing dumps repeated messages
	l.Close()
	require.Equal(t, map[string]int{
		"astilibav: past duration 0.6 too large":                                        1,
		"astipipeline: reading in0 failed: boom":                                        2,
		"astitranscoder: pattern repeated 2 times: astilibav: past duration too large":  1,
		"astitranscoder: pattern repeated once: astipipeline: reading in0 failed: boom": 1,
		"astitranscoder: pipeline is started":                                           1,
	}, ml.snapshot())

	// Items are dumped only once
	l.Close()
	require.Len(t, ml.snapshot(), 5)
}

func TestEventLoggerMessageMergingPeriod(t *testing.T) {
	ml := newMockedLogger()
	l := newEventLogger(ml)
	WithMessageMerging(50*time.Millisecond)(nil, l)
	l.Start(context.Background())
	defer l.Close()

	for i := 0; i < 3; i++ {
		l.Writef(astikit.LoggerLevelWarn, "astipipeline: non-monotonous DTS")
	}
	require.Eventually(t, func() bool {
		return ml.snapshot()["astitranscoder: pattern repeated 2 times: astipipeline: non-monotonous DTS"] == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ml.snapshot()["astipipeline: non-monotonous DTS"])
}

func TestEventLoggerMinimumLevel(t *testing.T) {
	ml := newMockedLogger()
	l := newEventLogger(ml)
	WithMinimumLevel(astikit.LoggerLevelWarn)(nil, l)
	l.Writef(astikit.LoggerLevelDebug, "debug")
	l.Writef(astikit.LoggerLevelInfo, "info")
	l.Writef(astikit.LoggerLevelWarn, "warn")
	l.Writef(astikit.LoggerLevelError, "error")
	require.Equal(t, map[string]int{
		"error": 1,
		"warn":  1,
	}, ml.msgs)
}
