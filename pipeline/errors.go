package astipipeline

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrMuxingQueueFull = errors.New("astipipeline: muxing queue is full")
	ErrStreamNotFound  = errors.New("astipipeline: stream not found")
)

// ErrorKind represents an error kind
type ErrorKind int

// Error kinds
const (
	KindConfiguration ErrorKind = iota
	KindResource
	KindOverflow
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindOverflow:
		return "overflow"
	case KindResource:
		return "resource"
	}
	return "unknown"
}

// Error is a fatal pipeline error
type Error struct {
	Err  error
	Kind ErrorKind
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func newError(k ErrorKind, format string, args ...interface{}) error {
	return &Error{
		Err:  fmt.Errorf("astipipeline: "+format, args...),
		Kind: k,
	}
}

func configurationError(format string, args ...interface{}) error {
	return newError(KindConfiguration, format, args...)
}

func resourceError(format string, args ...interface{}) error {
	return newError(KindResource, format, args...)
}

// IsKind checks whether err is a pipeline error of kind k
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
