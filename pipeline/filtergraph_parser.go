package astipipeline

import (
	"fmt"
	"strconv"
	"strings"

	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

const filterWhitespaces = " \n\t\r"

// graphFilter is a filter instance of a parsed description
type graphFilter struct {
	args    string
	info    FilterInfo
	inputs  []string
	name    string
	outputs []string
	rawArgs string
}

// graphPad is a pad left open by a description
type graphPad struct {
	filter int
	label  string
	pad    int
}

// parsedGraph is a parsed filter graph description where every link has been resolved
type parsedGraph struct {
	filters  []*graphFilter
	inputs   []graphPad
	links    int
	outputs  []graphPad
	swsFlags string
}

type filterInfoFunc func(name, args string) (FilterInfo, bool)

// parseFilterGraph parses a description made of chains separated by ";", each chain being made of
// filters separated by "," and optionally surrounded by "[label]" link labels. Labels shared by an
// output and an input are linked, other labels and unlabelled pads are left open.
func parseFilterGraph(desc string, fn filterInfoFunc) (g *parsedGraph, err error) {
	g = &parsedGraph{}
	s := desc

	// Scaler flags
	s = strings.TrimLeft(s, filterWhitespaces)
	if strings.HasPrefix(s, "sws_flags=") {
		i := strings.IndexByte(s, ';')
		if i < 0 {
			err = fmt.Errorf("astipipeline: invalid sws_flags in %s", desc)
			return
		}
		g.swsFlags = s[len("sws_flags="):i]
		s = s[i+1:]
	}

	// Loop through filters
	var curr []graphPad
	for {
		// Input labels
		s = strings.TrimLeft(s, filterWhitespaces)
		for strings.HasPrefix(s, "[") {
			var l string
			if l, s, err = parseLinkLabel(s); err != nil {
				return
			}

			// Label of a previous output
			if i := findGraphPad(g.outputs, l); i >= 0 {
				curr = append(curr, g.outputs[i])
				g.outputs = append(g.outputs[:i], g.outputs[i+1:]...)
			} else {
				curr = append(curr, graphPad{filter: -1, label: l})
			}
			s = strings.TrimLeft(s, filterWhitespaces)
		}

		// Filter
		f := &graphFilter{}
		var raw string
		f.name, _, s = getFilterToken(s, "=,;[")
		if f.name == "" {
			err = fmt.Errorf("astipipeline: no filter name found in %s", desc)
			return
		}
		if strings.HasPrefix(s, "=") {
			f.args, raw, s = getFilterToken(s[1:], "[],;")
			f.rawArgs = raw
		}
		name := f.name
		if i := strings.IndexByte(name, '@'); i >= 0 {
			name = name[:i]
		}
		var ok bool
		if f.info, ok = fn(name, f.args); !ok {
			err = fmt.Errorf("astipipeline: no such filter: '%s'", name)
			return
		}
		f.inputs = make([]string, len(f.info.Inputs))
		f.outputs = make([]string, len(f.info.Outputs))
		idx := len(g.filters)
		g.filters = append(g.filters, f)

		// Link inputs
		if len(curr) > len(f.info.Inputs) {
			err = fmt.Errorf("astipipeline: too many inputs specified for the %s filter", f.name)
			return
		}
		for i := range f.info.Inputs {
			if i >= len(curr) {
				g.inputs = append(g.inputs, graphPad{filter: idx, pad: i})
				continue
			}
			if c := curr[i]; c.filter >= 0 {
				if err = g.link(c, graphPad{filter: idx, pad: i}); err != nil {
					return
				}
			} else {
				g.inputs = append(g.inputs, graphPad{filter: idx, label: c.label, pad: i})
			}
		}

		// Outputs become the inputs of the next filter
		curr = nil
		for i := range f.info.Outputs {
			curr = append(curr, graphPad{filter: idx, pad: i})
		}

		// Output labels
		s = strings.TrimLeft(s, filterWhitespaces)
		for strings.HasPrefix(s, "[") {
			var l string
			if l, s, err = parseLinkLabel(s); err != nil {
				return
			}
			if len(curr) == 0 {
				err = fmt.Errorf("astipipeline: no output pad can be associated to link label '%s'", l)
				return
			}
			o := curr[0]
			curr = curr[1:]

			// Label of a previous input
			if i := findGraphPad(g.inputs, l); i >= 0 {
				in := g.inputs[i]
				g.inputs = append(g.inputs[:i], g.inputs[i+1:]...)
				if err = g.link(o, in); err != nil {
					return
				}
			} else {
				o.label = l
				g.outputs = append(g.outputs, o)
			}
			s = strings.TrimLeft(s, filterWhitespaces)
		}

		// Separator
		if s == "" {
			break
		}
		switch s[0] {
		case ',':
		case ';':
			g.outputs = append(g.outputs, curr...)
			curr = nil
		default:
			err = fmt.Errorf("astipipeline: unable to parse graph description substring: \"%s\"", s)
			return
		}
		s = s[1:]
	}
	g.outputs = append(g.outputs, curr...)
	return
}

func findGraphPad(ps []graphPad, label string) int {
	for i, p := range ps {
		if p.label == label {
			return i
		}
	}
	return -1
}

func (g *parsedGraph) link(o, i graphPad) error {
	ot := g.filters[o.filter].info.Outputs[o.pad]
	it := g.filters[i.filter].info.Inputs[i.pad]
	if ot != it {
		return fmt.Errorf("astipipeline: media type mismatch between the '%s' filter output pad %d (%s) and the '%s' filter input pad %d (%s)", g.filters[o.filter].name, o.pad, ot, g.filters[i.filter].name, i.pad, it)
	}
	l := "astipipeline_link" + strconv.Itoa(g.links)
	g.links++
	g.filters[o.filter].outputs[o.pad] = l
	g.filters[i.filter].inputs[i.pad] = l
	return nil
}

func (g *parsedGraph) inputMediaType(p graphPad) astispecifier.MediaType {
	return g.filters[p.filter].info.Inputs[p.pad]
}

func (g *parsedGraph) outputMediaType(p graphPad) astispecifier.MediaType {
	return g.filters[p.filter].info.Outputs[p.pad]
}

// padName describes a pad for error messages
func (g *parsedGraph) padName(p graphPad, input bool) string {
	f := g.filters[p.filter]
	n := len(f.info.Outputs)
	if input {
		n = len(f.info.Inputs)
	}
	if n > 1 {
		return fmt.Sprintf("%s:%d", f.name, p.pad)
	}
	return f.name
}

// serialize returns a description where every pad is labelled. Open pads are labelled with
// the provided labels.
func (g *parsedGraph) serialize(inputs, outputs []string) string {
	// Label open pads
	for i, p := range g.inputs {
		g.filters[p.filter].inputs[p.pad] = inputs[i]
	}
	for i, p := range g.outputs {
		g.filters[p.filter].outputs[p.pad] = outputs[i]
	}

	// Write
	var cs []string
	if g.swsFlags != "" {
		cs = append(cs, "sws_flags="+g.swsFlags)
	}
	for _, f := range g.filters {
		b := &strings.Builder{}
		for _, l := range f.inputs {
			b.WriteString("[" + l + "]")
		}
		b.WriteString(f.name)
		if f.rawArgs != "" {
			b.WriteString("=" + f.rawArgs)
		}
		for _, l := range f.outputs {
			b.WriteString("[" + l + "]")
		}
		cs = append(cs, b.String())
	}
	return strings.Join(cs, ";")
}

func parseLinkLabel(s string) (l, rest string, err error) {
	i := strings.IndexByte(s, ']')
	if i < 0 {
		err = fmt.Errorf("astipipeline: mismatched '[' found in the following: %s", s)
		return
	}
	if l = s[1:i]; l == "" {
		err = fmt.Errorf("astipipeline: bad (empty?) label found in the following: %s", s)
		return
	}
	rest = s[i+1:]
	return
}

// getFilterToken reads a token until one of the terminating characters, handling "\" escapes and
// "'" quotes. It returns both the unescaped token and the raw text it has been read from.
func getFilterToken(s, term string) (token, raw, rest string) {
	s = strings.TrimLeft(s, filterWhitespaces)
	b := &strings.Builder{}
	end, rawEnd := 0, 0
	i := 0
	for i < len(s) && !strings.ContainsRune(term, rune(s[i])) {
		c := s[i]
		i++
		switch {
		case c == '\\' && i < len(s):
			b.WriteByte(s[i])
			i++
			end, rawEnd = b.Len(), i
		case c == '\'':
			for i < len(s) && s[i] != '\'' {
				b.WriteByte(s[i])
				i++
			}
			if i < len(s) {
				i++
				end, rawEnd = b.Len(), i
			}
		default:
			b.WriteByte(c)
			if !strings.ContainsRune(filterWhitespaces, rune(c)) {
				end, rawEnd = b.Len(), i
			}
		}
	}
	token = b.String()
	if len(strings.TrimRight(token, filterWhitespaces)) > end {
		end = len(strings.TrimRight(token, filterWhitespaces))
	}
	token = token[:end]
	raw = s[:rawEnd]
	if len(strings.TrimRight(s[:i], filterWhitespaces)) > rawEnd {
		raw = strings.TrimRight(s[:i], filterWhitespaces)
	}
	rest = s[i:]
	return
}
