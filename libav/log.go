package astilibav

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	astitranscoder "github.com/asticode/go-astitranscoder"
)

// EventNameLog is emitted for every libav log message
const EventNameLog astitranscoder.EventName = "astilibav.log"

// EventLog is the payload of EventNameLog
type EventLog struct {
	Class  string
	Format string
	Level  astiav.LogLevel
	Msg    string
}

// LogOptions represents libav log options
type LogOptions struct {
	IgnoredMessages []*regexp.Regexp
	Level           astiav.LogLevel
}

// WithLog forwards libav logs to the event handler and writes them with the event logger
func WithLog(o LogOptions) astitranscoder.EventHandlerLogAdapter {
	return func(h *astitranscoder.EventHandler, l *astitranscoder.EventLogger) {
		// Set log level
		astiav.SetLogLevel(o.Level)

		// Set log callback
		astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, format, msg string) {
			var cl string
			if c != nil {
				if v := c.Class(); v != nil {
					cl = v.Name()
				}
			}
			h.Emit(astitranscoder.Event{
				Name: EventNameLog,
				Payload: EventLog{
					Class:  cl,
					Format: format,
					Level:  level,
					Msg:    msg,
				},
			})
		})

		// Handle log
		h.AddForEventName(EventNameLog, logEventCallback(o, l))
	}
}

func logEventCallback(o LogOptions, l *astitranscoder.EventLogger) astitranscoder.EventCallback {
	return func(e astitranscoder.Event) bool {
		v, ok := e.Payload.(EventLog)
		if !ok {
			return false
		}

		// Sanitize
		format := strings.TrimSpace(v.Format)
		msg := strings.TrimSpace(v.Msg)
		if msg == "" {
			return false
		}

		// Ignore
		for _, r := range o.IgnoredMessages {
			if r.MatchString(msg) {
				return false
			}
		}

		// Add prefix
		format = "astilibav: " + format
		msg = "astilibav: " + msg

		// Add class
		if v.Class != "" {
			msg += " (" + v.Class + ")"
		}

		// Write
		switch v.Level {
		case astiav.LogLevelDebug, astiav.LogLevelVerbose:
			l.Writek(astikit.LoggerLevelDebug, format, msg)
		case astiav.LogLevelInfo:
			l.Writek(astikit.LoggerLevelInfo, format, msg)
		case astiav.LogLevelError, astiav.LogLevelFatal, astiav.LogLevelPanic:
			if v.Level == astiav.LogLevelFatal {
				msg = "FATAL! " + msg
			} else if v.Level == astiav.LogLevelPanic {
				msg = "PANIC! " + msg
			}
			l.Writek(astikit.LoggerLevelError, format, msg)
		case astiav.LogLevelWarning:
			l.Writek(astikit.LoggerLevelWarn, format, msg)
		}
		return false
	}
}

var logLevels = map[string]astiav.LogLevel{
	"debug":   astiav.LogLevelDebug,
	"error":   astiav.LogLevelError,
	"fatal":   astiav.LogLevelFatal,
	"info":    astiav.LogLevelInfo,
	"panic":   astiav.LogLevelPanic,
	"quiet":   astiav.LogLevelQuiet,
	"verbose": astiav.LogLevelVerbose,
	"warning": astiav.LogLevelWarning,
}

// ParseLogLevel parses a libav log level name
func ParseLogLevel(s string) (astiav.LogLevel, error) {
	if l, ok := logLevels[strings.ToLower(s)]; ok {
		return l, nil
	}
	return astiav.LogLevelError, fmt.Errorf("astilibav: invalid log level %s", s)
}
