package astilibav

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/asticode/go-astiav"
	astitranscoder "github.com/asticode/go-astitranscoder"
	"github.com/stretchr/testify/assert"
)

type mockedStdLogger struct{ ss []string }

func newMockedStdLogger() *mockedStdLogger {
	return &mockedStdLogger{
		ss: []string{},
	}
}

func (l *mockedStdLogger) Fatal(v ...interface{}) { l.Print(v...) }

func (l *mockedStdLogger) Fatalf(format string, v ...interface{}) { l.Printf(format, v...) }

func (l *mockedStdLogger) Print(v ...interface{}) { l.ss = append(l.ss, fmt.Sprint(v...)) }

func (l *mockedStdLogger) Printf(format string, v ...interface{}) {
	l.ss = append(l.ss, fmt.Sprintf(format, v...))
}

func TestLog(t *testing.T) {
	l := newMockedStdLogger()
	h := astitranscoder.NewEventHandler()
	c := logEventCallback(LogOptions{
		IgnoredMessages: []*regexp.Regexp{
			regexp.MustCompile("^test2$"),
			regexp.MustCompile(`[\w]+_pattern`),
		},
	}, h.Log(astitranscoder.EventHandlerLogOptions{Logger: l}))
	c(astitranscoder.Event{Payload: EventLog{Level: astiav.LogLevelInfo, Msg: "test1"}})
	c(astitranscoder.Event{Payload: EventLog{Level: astiav.LogLevelInfo, Msg: "test2"}})
	c(astitranscoder.Event{Payload: EventLog{Class: "AVFormatContext", Level: astiav.LogLevelWarning, Msg: "test3\n"}})
	c(astitranscoder.Event{Payload: EventLog{Level: astiav.LogLevelInfo, Msg: "test_pattern"}})
	c(astitranscoder.Event{Payload: EventLog{Level: astiav.LogLevelFatal, Msg: "test4"}})
	c(astitranscoder.Event{Payload: EventLog{Level: astiav.LogLevelInfo, Msg: "  "}})
	assert.Equal(t, []string{"astilibav: test1", "astilibav: test3 (AVFormatContext)", "FATAL! astilibav: test4"}, l.ss)
}

func TestParseLogLevel(t *testing.T) {
	l, err := ParseLogLevel("Warning")
	assert.NoError(t, err)
	assert.Equal(t, astiav.LogLevelWarning, l)
	_, err = ParseLogLevel("loud")
	assert.EqualError(t, err, "astilibav: invalid log level loud")
}
