package astipipeline

import (
	"fmt"
	"os"
)

// Pass flags
const (
	PassFirst  = 1
	PassSecond = 2
)

// PassLogFileName returns the path of the log file used by a multi pass encoding
func PassLogFileName(prefix string, outputStreamIndex int) string {
	if prefix == "" {
		prefix = DefaultPassLogPrefix
	}
	return fmt.Sprintf("%s-%d.log", prefix, outputStreamIndex)
}

// PassLog is the log file written during a first pass
type PassLog struct {
	f    *os.File
	path string
}

// OpenPassLog creates the log file of a first pass, truncating it if it exists
func OpenPassLog(path string) (l *PassLog, err error) {
	l = &PassLog{path: path}
	if l.f, err = os.Create(path); err != nil {
		err = &Error{Err: fmt.Errorf("astipipeline: cannot write log file '%s' for pass-1 encoding: %w", path, err), Kind: KindResource}
		return
	}
	return
}

// Path returns the log file path
func (l *PassLog) Path() string { return l.path }

// Write appends encoder statistics to the log file
func (l *PassLog) Write(stats string) (err error) {
	if stats == "" {
		return
	}
	if _, err = l.f.WriteString(stats); err != nil {
		err = fmt.Errorf("astipipeline: writing to %s failed: %w", l.path, err)
		return
	}
	return
}

// Close closes the log file
func (l *PassLog) Close() error {
	return l.f.Close()
}

// ReadPassLog reads the whole log file written during a first pass
func ReadPassLog(path string) (b []byte, err error) {
	if b, err = os.ReadFile(path); err != nil {
		err = &Error{Err: fmt.Errorf("astipipeline: error reading log file '%s' for pass-2 encoding: %w", path, err), Kind: KindResource}
		return
	}
	return
}

// CheckPassLog makes sure the log file of a first pass can be read by encoders reading it themselves
func CheckPassLog(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &Error{Err: fmt.Errorf("astipipeline: error reading log file '%s' for pass-2 encoding: %w", path, err), Kind: KindResource}
	}
	return f.Close()
}
