package astioptions

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind represents the kind of an option value
type Kind int

// Kinds
const (
	KindString Kind = iota
	KindInt
	KindInt64
	KindDouble
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// Value is an option value. Only the accessor of its kind returns ok.
type Value struct {
	b    bool
	f    float64
	i    int
	i64  int64
	kind Kind
	s    string
}

func StringValue(s string) Value  { return Value{kind: KindString, s: s} }
func IntValue(i int) Value        { return Value{kind: KindInt, i: i} }
func Int64Value(i int64) Value    { return Value{kind: KindInt64, i64: i} }
func DoubleValue(f float64) Value { return Value{kind: KindDouble, f: f} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

func (v Value) Int() (int, bool) { return v.i, v.kind == KindInt }

func (v Value) Int64() (int64, bool) { return v.i64, v.kind == KindInt64 }

func (v Value) Double() (float64, bool) { return v.f, v.kind == KindDouble }

func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.Itoa(v.i)
	case KindInt64:
		return strconv.FormatInt(v.i64, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.s
	}
}

var numberSuffixes = map[string]float64{
	"":   1,
	"k":  1e3,
	"K":  1e3,
	"M":  1e6,
	"G":  1e9,
	"T":  1e12,
	"Ki": 1 << 10,
	"Mi": 1 << 20,
	"Gi": 1 << 30,
	"Ti": 1 << 40,
	"B":  8,
	"KB": 8e3,
	"MB": 8e6,
}

// ParseNumber parses a number that may carry an SI or binary suffix such as "1M", "128k" or "2Ki"
func ParseNumber(s string) (f float64, err error) {
	// Split suffix
	i := len(s)
	for i > 0 && strings.IndexByte("kKMGTiB", s[i-1]) >= 0 {
		i--
	}
	m, ok := numberSuffixes[s[i:]]
	if !ok {
		err = fmt.Errorf("astioptions: invalid suffix in %q", s)
		return
	}

	// Parse number
	if f, err = strconv.ParseFloat(s[:i], 64); err != nil {
		err = fmt.Errorf("astioptions: parsing number %q failed: %w", s, err)
		return
	}
	f *= m
	return
}

// ParseTime parses a duration expressed either as "[-][HH:]MM:SS[.m...]" or as
// "[-]S+[.m...][s|ms|us]" and returns it in microseconds
func ParseTime(s string) (us int64, err error) {
	// Sign
	v := s
	neg := strings.HasPrefix(v, "-")
	if neg {
		v = v[1:]
	}
	if v == "" {
		err = fmt.Errorf("astioptions: invalid duration %q", s)
		return
	}

	var d float64
	if strings.Contains(v, ":") {
		// Sexagesimal
		ps := strings.Split(v, ":")
		if len(ps) > 3 {
			err = fmt.Errorf("astioptions: invalid duration %q", s)
			return
		}
		for idx, p := range ps {
			var f float64
			if f, err = strconv.ParseFloat(p, 64); err != nil || f < 0 {
				err = fmt.Errorf("astioptions: invalid duration %q", s)
				return
			}
			if idx < len(ps)-1 && f != math.Trunc(f) {
				err = fmt.Errorf("astioptions: invalid duration %q", s)
				return
			}
			d = d*60 + f
		}
		d *= float64(time.Second / time.Microsecond)
	} else {
		// Unit
		unit := float64(time.Second / time.Microsecond)
		switch {
		case strings.HasSuffix(v, "ms"):
			unit, v = float64(time.Millisecond/time.Microsecond), strings.TrimSuffix(v, "ms")
		case strings.HasSuffix(v, "us"):
			unit, v = 1, strings.TrimSuffix(v, "us")
		case strings.HasSuffix(v, "s"):
			v = strings.TrimSuffix(v, "s")
		}
		if d, err = strconv.ParseFloat(v, 64); err != nil || d < 0 {
			err = fmt.Errorf("astioptions: invalid duration %q", s)
			return
		}
		d *= unit
	}

	us = int64(math.Round(d))
	if neg {
		us = -us
	}
	return
}
