package astioptions

import (
	"fmt"

	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// SpecifierOpt is an option value attached to a stream specifier
type SpecifierOpt[T any] struct {
	Specifier string
	Value     T
}

// Resolve iterates over all options in declaration order and returns the value of the
// last option whose specifier matches the stream
func Resolve[T any](opts []SpecifierOpt[T], c astispecifier.Container, st astispecifier.Stream) (v T, ok bool, err error) {
	for _, o := range opts {
		// Match
		var m bool
		if m, err = astispecifier.Match(c, st, o.Specifier); err != nil {
			err = fmt.Errorf("astioptions: matching stream #%d against specifier %q failed: %w", st.Index(), o.Specifier, err)
			return
		}

		// Last match wins
		if m {
			v = o.Value
			ok = true
		}
	}
	return
}

// ResolveForMediaType returns the value of the last option whose specifier is exactly the
// media type letter. It is used when no stream exists yet.
func ResolveForMediaType[T any](opts []SpecifierOpt[T], t astispecifier.MediaType) (v T, ok bool) {
	l := t.Letter()
	for _, o := range opts {
		if o.Specifier == l {
			v = o.Value
			ok = true
		}
	}
	return
}

// Last returns the last value whatever its specifier
func Last[T any](opts []SpecifierOpt[T]) (v T, ok bool) {
	if len(opts) == 0 {
		return
	}
	return opts[len(opts)-1].Value, true
}

func resolveAs[T any](opts []SpecifierOpt[Value], c astispecifier.Container, st astispecifier.Stream, fn func(Value) (T, bool)) (v T, ok bool, err error) {
	var r Value
	if r, ok, err = Resolve(opts, c, st); err != nil || !ok {
		return
	}
	if v, ok = fn(r); !ok {
		err = fmt.Errorf("astioptions: value %q is a %s", r, r.Kind())
	}
	return
}

// ResolveString resolves a string option
func ResolveString(opts []SpecifierOpt[Value], c astispecifier.Container, st astispecifier.Stream) (string, bool, error) {
	return resolveAs(opts, c, st, Value.Str)
}

// ResolveInt resolves an int option
func ResolveInt(opts []SpecifierOpt[Value], c astispecifier.Container, st astispecifier.Stream) (int, bool, error) {
	return resolveAs(opts, c, st, Value.Int)
}

// ResolveInt64 resolves an int64 option
func ResolveInt64(opts []SpecifierOpt[Value], c astispecifier.Container, st astispecifier.Stream) (int64, bool, error) {
	return resolveAs(opts, c, st, Value.Int64)
}

// ResolveDouble resolves a double option
func ResolveDouble(opts []SpecifierOpt[Value], c astispecifier.Container, st astispecifier.Stream) (float64, bool, error) {
	return resolveAs(opts, c, st, Value.Double)
}
