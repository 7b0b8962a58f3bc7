package astioptions

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// GroupKind represents the kind of a group
type GroupKind int

const (
	GroupKindGlobal GroupKind = iota
	GroupKindInput
	GroupKindOutput
)

func (k GroupKind) String() string {
	switch k {
	case GroupKindInput:
		return "input"
	case GroupKindOutput:
		return "output"
	default:
		return "global"
	}
}

// CodecOption is an option handed to decoders or encoders, with its optional stream specifier
type CodecOption struct {
	Key       string
	Specifier string
	Value     string
}

// FormatOption is an option handed to demuxers or muxers
type FormatOption struct {
	Key   string
	Value string
}

// Classifier tells which layer an option that the orchestrator doesn't understand belongs to
type Classifier interface {
	IsCodecOption(name string) bool
	IsFormatOption(name string) bool
}

// Group is the set of options attached to an input file, an output file or the
// invocation as a whole
type Group struct {
	CodecOptions  []CodecOption
	FormatOptions []FormatOption
	Index         int
	Kind          GroupKind
	Path          string
	opts          map[string][]SpecifierOpt[Value]
}

func newGroup(k GroupKind) *Group {
	return &Group{
		Kind: k,
		opts: make(map[string][]SpecifierOpt[Value]),
	}
}

// NewGroup creates a group outside of the command line parser
func NewGroup(k GroupKind, path string) *Group {
	g := newGroup(k)
	g.Path = path
	return g
}

// Set adds an option to the group and returns an error if the value can't be parsed
func (g *Group) Set(name, specifier, raw string) (err error) {
	d, aliasSpec, ok := FindDef(name)
	if !ok {
		err = fmt.Errorf("astioptions: unknown option %s", name)
		return
	}
	return g.set(d, specifier, aliasSpec, raw)
}

func (g *Group) set(d Def, specifier, aliasSpec, raw string) (err error) {
	// Merge specifiers
	if aliasSpec != "" {
		if specifier != "" {
			specifier = aliasSpec + ":" + specifier
		} else {
			specifier = aliasSpec
		}
	}

	// Specifier not allowed
	if specifier != "" && !d.Flags.Has(FlagPerStream) && !d.Flags.Has(FlagMetadataSpec) {
		err = fmt.Errorf("astioptions: option %s doesn't accept a specifier", d.Name)
		return
	}

	// Parse value
	var v Value
	if v, err = parseValue(d, raw); err != nil {
		err = fmt.Errorf("astioptions: parsing value %q of option %s failed: %w", raw, d.Name, err)
		return
	}

	// Append
	g.opts[d.Name] = append(g.opts[d.Name], SpecifierOpt[Value]{Specifier: specifier, Value: v})
	return
}

func parseValue(d Def, raw string) (v Value, err error) {
	switch d.Kind {
	case KindBool:
		v = BoolValue(true)
		if raw != "" {
			var b bool
			if b, err = strconv.ParseBool(raw); err != nil {
				return
			}
			v = BoolValue(b)
		}
	case KindInt:
		var i int64
		if i, err = strconv.ParseInt(raw, 0, 32); err != nil {
			return
		}
		v = IntValue(int(i))
	case KindInt64:
		var i int64
		switch {
		case d.Flags.Has(FlagTime):
			i, err = ParseTime(raw)
		case d.Flags.Has(FlagNumber):
			var f float64
			if f, err = ParseNumber(raw); err == nil {
				if f > math.MaxInt64 || f < math.MinInt64 {
					err = fmt.Errorf("astioptions: %q is out of range", raw)
				}
				i = int64(f)
			}
		default:
			i, err = strconv.ParseInt(raw, 0, 64)
		}
		if err != nil {
			return
		}
		v = Int64Value(i)
	case KindDouble:
		var f float64
		if f, err = strconv.ParseFloat(raw, 64); err != nil {
			return
		}
		v = DoubleValue(f)
	default:
		v = StringValue(raw)
	}
	return
}

// Has returns whether the option has been set at least once
func (g *Group) Has(name string) bool { return len(g.opts[name]) > 0 }

// Opts returns the ordered values of an option
func (g *Group) Opts(name string) []SpecifierOpt[Value] { return g.opts[name] }

// Names returns the names of the options that have been set
func (g *Group) Names() (ns []string) {
	for n := range g.opts {
		ns = append(ns, n)
	}
	return
}

// LastString returns the last value of a file-level string option
func (g *Group) LastString(name string) (s string, ok bool) {
	var v Value
	if v, ok = Last(g.opts[name]); ok {
		s, ok = v.Str()
	}
	return
}

// LastInt returns the last value of a file-level int option
func (g *Group) LastInt(name string) (i int, ok bool) {
	var v Value
	if v, ok = Last(g.opts[name]); ok {
		i, ok = v.Int()
	}
	return
}

// LastInt64 returns the last value of a file-level int64 option
func (g *Group) LastInt64(name string) (i int64, ok bool) {
	var v Value
	if v, ok = Last(g.opts[name]); ok {
		i, ok = v.Int64()
	}
	return
}

// Bool returns the last value of a bool option, false if unset
func (g *Group) Bool(name string) bool {
	v, ok := Last(g.opts[name])
	if !ok {
		return false
	}
	b, _ := v.Bool()
	return b
}

// FormatOptionsMap returns format options as a map, later values overriding earlier ones
func (g *Group) FormatOptionsMap() map[string]string {
	m := make(map[string]string)
	for _, o := range g.FormatOptions {
		m[o.Key] = o.Value
	}
	return m
}

// Args is the result of parsing a command line
type Args struct {
	Global   *Group
	Inputs   []*Group
	Outputs  []*Group
	Warnings []string
}

type pendingOpt struct {
	aliasSpec string
	d         Def
	name      string
	raw       string
	specifier string
}

// ParseArgs parses an ffmpeg-like command line. Options apply to the next input
// ("-i <path>") or output (positional path) that follows them.
func ParseArgs(args []string, c Classifier) (a *Args, err error) {
	a = &Args{Global: newGroup(GroupKindGlobal)}
	var pending []pendingOpt
	cur := newGroup(GroupKindOutput)

	// Close group
	closeGroup := func(k GroupKind, path string) (err error) {
		cur.Kind = k
		cur.Path = path
		for _, p := range pending {
			// Check direction
			if (k == GroupKindInput && !p.d.Flags.Has(FlagInput)) || (k == GroupKindOutput && !p.d.Flags.Has(FlagOutput)) {
				err = fmt.Errorf("astioptions: option %s cannot be applied to %s url %s -- you are trying to apply an input option to an output file or vice versa. Move this option before the file it belongs to", p.name, k, path)
				return
			}

			// Set
			if err = cur.set(p.d, p.specifier, p.aliasSpec, p.raw); err != nil {
				return
			}
		}
		if k == GroupKindInput {
			cur.Index = len(a.Inputs)
			a.Inputs = append(a.Inputs, cur)
		} else {
			cur.Index = len(a.Outputs)
			a.Outputs = append(a.Outputs, cur)
		}
		pending = nil
		cur = newGroup(GroupKindOutput)
		return
	}

	for idx := 0; idx < len(args); idx++ {
		arg := args[idx]

		// Output path
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			if err = closeGroup(GroupKindOutput, arg); err != nil {
				return
			}
			continue
		}

		// Get next arg
		next := func() (string, error) {
			if idx+1 >= len(args) {
				return "", fmt.Errorf("astioptions: missing argument for option %s", arg)
			}
			idx++
			return args[idx], nil
		}

		// Input path
		if arg == "-i" {
			var p string
			if p, err = next(); err != nil {
				return
			}
			if err = closeGroup(GroupKindInput, p); err != nil {
				return
			}
			continue
		}

		// Split name and specifier
		name, specifier := arg[1:], ""
		if i := strings.Index(name, ":"); i >= 0 {
			name, specifier = name[:i], name[i+1:]
		}

		// Known option
		if d, aliasSpec, ok := FindDef(name); ok {
			var raw string
			if d.Kind != KindBool {
				if raw, err = next(); err != nil {
					return
				}
			}

			// Global
			if d.Flags.Has(FlagGlobal) {
				if err = a.Global.set(d, specifier, aliasSpec, raw); err != nil {
					return
				}
				continue
			}

			// Pending
			pending = append(pending, pendingOpt{aliasSpec: aliasSpec, d: d, name: name, raw: raw, specifier: specifier})
			continue
		}

		// Codec or format option
		isCodec := c != nil && c.IsCodecOption(name)
		isFormat := c != nil && specifier == "" && c.IsFormatOption(name)
		if !isCodec && !isFormat {
			err = fmt.Errorf("astioptions: unrecognized option '%s'", arg[1:])
			return
		}
		var raw string
		if raw, err = next(); err != nil {
			return
		}
		if isCodec {
			cur.CodecOptions = append(cur.CodecOptions, CodecOption{Key: name, Specifier: specifier, Value: raw})
		}
		if isFormat {
			cur.FormatOptions = append(cur.FormatOptions, FormatOption{Key: name, Value: raw})
		}
	}

	// Trailing options
	if len(pending) > 0 || len(cur.CodecOptions) > 0 || len(cur.FormatOptions) > 0 {
		a.Warnings = append(a.Warnings, "astioptions: trailing options were found on the command line")
	}
	return
}
