package astipipeline

import (
	"fmt"
	"strconv"
	"strings"

	astioptions "github.com/asticode/go-astitranscoder/options"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// FilterGraph is either a complex filter graph declared globally or a simple filter graph
// connecting one decoder to one encoder
type FilterGraph struct {
	Description string
	Index       int
	Inputs      []*InputFilter
	Outputs     []*OutputFilter

	// Runtime
	graph  FilterGraphInstance
	parsed *parsedGraph
}

// TargetName implements the astitranscoder.Target interface
func (g *FilterGraph) TargetName() string { return fmt.Sprintf("filter graph #%d", g.Index) }

// IsSimple returns whether the graph connects one decoder to one encoder
func (g *FilterGraph) IsSimple() bool {
	return len(g.Outputs) == 1 && g.Outputs[0].Stream != nil && g.Outputs[0].Stream.simpleGraph == g
}

// InputFilter is an open input of a filter graph
type InputFilter struct {
	Graph     *FilterGraph
	Label     string
	MediaType astispecifier.MediaType
	Name      string
	Stream    *InputStream
	UserLabel string

	// Runtime
	eof          bool
	format       FrameParameters
	formatKnown  bool
	frames       []*Frame
	framesPushed int
	index        int
}

// OutputFilter is an open output of a filter graph
type OutputFilter struct {
	ChannelLayout  string
	ChannelLayouts []string
	FrameRate      Rational
	Graph          *FilterGraph
	Height         int
	Label          string
	MediaType      astispecifier.MediaType
	Name           string
	PixelFormat    string
	PixelFormats   []string
	SampleFormat   string
	SampleFormats  []string
	SampleRate     int
	SampleRates    []int
	Stream         *OutputStream
	UserLabel      string
	Width          int

	// Runtime
	eof   bool
	index int
}

// AddComplexFilterGraph parses a complex filter graph description and binds its open inputs
// to input streams. Open outputs are bound later on, when output files are opened.
func (p *Pipeline) AddComplexFilterGraph(desc string) (g *FilterGraph, err error) {
	// Create graph
	g = &FilterGraph{
		Description: desc,
		Index:       len(p.filterGraphs),
	}

	// Parse
	if g.parsed, err = parseFilterGraph(desc, p.o.Filters.FilterInfo); err != nil {
		err = &Error{Err: fmt.Errorf("astipipeline: parsing filter graph '%s' failed: %w", desc, err), Kind: KindConfiguration}
		return
	}

	// Inputs
	for i, pad := range g.parsed.inputs {
		in := &InputFilter{
			Graph:     g,
			Label:     "astipipeline_in" + strconv.Itoa(i),
			MediaType: g.parsed.inputMediaType(pad),
			Name:      g.parsed.padName(pad, true),
			UserLabel: pad.label,
			index:     i,
		}
		g.Inputs = append(g.Inputs, in)
		if err = p.bindInputFilter(g, in); err != nil {
			return
		}
	}

	// Outputs
	for i, pad := range g.parsed.outputs {
		g.Outputs = append(g.Outputs, &OutputFilter{
			Graph:     g,
			Label:     "astipipeline_out" + strconv.Itoa(i),
			MediaType: g.parsed.outputMediaType(pad),
			Name:      g.parsed.padName(pad, false),
			UserLabel: pad.label,
			index:     i,
		})
	}
	p.filterGraphs = append(p.filterGraphs, g)
	return
}

func (p *Pipeline) bindInputFilter(g *FilterGraph, in *InputFilter) (err error) {
	// Only video and audio
	if in.MediaType != astispecifier.MediaTypeVideo && in.MediaType != astispecifier.MediaTypeAudio {
		return configurationError("only video and audio filters supported currently")
	}

	// Find stream
	var ist *InputStream
	if in.UserLabel != "" {
		// Input file
		fileIndex, rest, ok := parseLeadingInt(in.UserLabel)
		if !ok || fileIndex < 0 || fileIndex >= len(p.inputFiles) {
			return configurationError("invalid file index %d in filtergraph description %s", fileIndex, g.Description)
		}
		f := p.inputFiles[fileIndex]

		// Stream
		var s astispecifier.Specifier
		if s, err = astispecifier.Parse(strings.TrimPrefix(rest, ":")); err != nil {
			return configurationError("parsing stream specifier '%s' in filtergraph description %s failed: %w", in.UserLabel, g.Description, err)
		}
		for _, v := range f.streams {
			if v.MediaType() == in.MediaType && s.Match(f, v) {
				ist = v
				break
			}
		}
		if ist == nil {
			return configurationError("stream specifier '%s' in filtergraph description %s matches no streams", in.UserLabel, g.Description)
		}
		if ist.userDiscarded() {
			return configurationError("stream specifier '%s' in filtergraph description %s matches a disabled input stream", in.UserLabel, g.Description)
		}
	} else {
		// First unused stream of the matching type
		for _, v := range p.inputStreams {
			if v.MediaType() == in.MediaType && v.Discard && !v.userDiscarded() {
				ist = v
				break
			}
		}
		if ist == nil {
			return configurationError("cannot find a matching stream for unlabeled input pad %d on filter %s", in.index, in.Name)
		}
	}

	// Bind
	ist.Discard = false
	ist.DecodingNeeded |= DecodingForFilter
	ist.filters = append(ist.filters, in)
	in.Stream = ist
	return
}

// addSimpleFilterGraph connects an input stream to an output stream
func (p *Pipeline) addSimpleFilterGraph(ist *InputStream, ost *OutputStream) *FilterGraph {
	g := &FilterGraph{
		Description: ost.FilterDescription,
		Index:       len(p.filterGraphs),
	}
	in := &InputFilter{
		Graph:     g,
		Label:     "astipipeline_in0",
		MediaType: ist.MediaType(),
		Name:      ist.TargetName(),
		Stream:    ist,
	}
	out := &OutputFilter{
		Graph:     g,
		Label:     "astipipeline_out0",
		MediaType: ost.mediaType,
		Name:      ost.TargetName(),
		Stream:    ost,
	}
	g.Inputs = []*InputFilter{in}
	g.Outputs = []*OutputFilter{out}
	ist.filters = append(ist.filters, in)
	ost.Filter = out
	ost.simpleGraph = g
	p.filterGraphs = append(p.filterGraphs, g)
	return g
}

// bindOutputFilter connects an open output of a complex filter graph to a new output stream
func (p *Pipeline) bindOutputFilter(of *OutputFile, g *astioptions.Group, ofilter *OutputFilter) (ost *OutputStream, err error) {
	// Create stream
	switch ofilter.MediaType {
	case astispecifier.MediaTypeVideo, astispecifier.MediaTypeAudio:
		if ost, err = p.newOutputStream(of, g, ofilter.MediaType, nil); err != nil {
			return
		}
	default:
		err = configurationError("only video and audio filters are supported currently")
		return
	}

	// Stream copy is not possible
	if ost.StreamCopy {
		err = configurationError("streamcopy requested for output stream %d:%d, which is fed from a complex filtergraph. Filtering and streamcopy cannot be used together", of.Index, ost.index)
		return
	}

	// Per stream filters are not possible
	if ost.FilterDescription != "" && ost.userFilter {
		err = configurationError("%s '%s' was specified through the -filter or -filter_script option for output stream %d:%d, which is fed from a complex filtergraph. -filter and -filter_complex cannot be used together for the same stream", map[bool]string{true: "filter script", false: "filtergraph"}[ost.filterFromScript], ost.FilterDescription, of.Index, ost.index)
		return
	}

	// Bind
	ost.Filter = ofilter
	ofilter.Stream = ost
	return
}

// BindFilterGraphs makes sure every filter graph is fully connected
func (p *Pipeline) BindFilterGraphs() (err error) {
	for _, g := range p.filterGraphs {
		// Simple graphs are parsed only now
		if g.parsed == nil {
			if err = p.parseSimpleFilterGraph(g); err != nil {
				return
			}
			continue
		}

		// Check outputs
		for _, o := range g.Outputs {
			if o.Stream == nil {
				return configurationError("filter %s has an unconnected output", o.Name)
			}
		}
	}
	return
}

func (p *Pipeline) parseSimpleFilterGraph(g *FilterGraph) (err error) {
	// Parse
	if g.parsed, err = parseFilterGraph(g.Description, p.o.Filters.FilterInfo); err != nil {
		return &Error{Err: fmt.Errorf("astipipeline: parsing filter graph '%s' failed: %w", g.Description, err), Kind: KindConfiguration}
	}

	// Exactly one input and one output
	if len(g.parsed.inputs) != 1 || len(g.parsed.outputs) != 1 {
		return configurationError("simple filtergraph '%s' was expected to have exactly 1 input and 1 output. However, it had %d input(s) and %d output(s). Please adjust, or use a complex filtergraph (-filter_complex) instead", g.Description, len(g.parsed.inputs), len(g.parsed.outputs))
	}

	// Media types
	if t := g.parsed.inputMediaType(g.parsed.inputs[0]); t != g.Inputs[0].MediaType {
		return configurationError("simple filtergraph '%s' has a %s input but is fed by a %s stream", g.Description, t, g.Inputs[0].MediaType)
	}
	if t := g.parsed.outputMediaType(g.parsed.outputs[0]); t != g.Outputs[0].MediaType {
		return configurationError("simple filtergraph '%s' has a %s output but feeds a %s stream", g.Description, t, g.Outputs[0].MediaType)
	}
	return
}

// description returns the description handed to the backend. Every open pad is labelled and
// output constraints are appended.
func (g *FilterGraph) description() string {
	// Label pads
	var ins, outs []string
	for _, in := range g.Inputs {
		ins = append(ins, in.Label)
	}
	var constraints []string
	for _, o := range g.Outputs {
		c := o.constraints()
		if c == "" {
			outs = append(outs, o.Label)
			continue
		}
		l := o.Label + "_unconstrained"
		outs = append(outs, l)
		constraints = append(constraints, "["+l+"]"+c+"["+o.Label+"]")
	}

	// Serialize
	d := g.parsed.serialize(ins, outs)
	if len(constraints) > 0 {
		d += ";" + strings.Join(constraints, ";")
	}
	return d
}

// constraints returns the filter chain forcing the output to what the encoder supports
func (o *OutputFilter) constraints() string {
	var fs []string
	switch o.MediaType {
	case astispecifier.MediaTypeVideo:
		if o.Width > 0 || o.Height > 0 {
			fs = append(fs, fmt.Sprintf("scale=%d:%d", o.Width, o.Height))
		}
		if o.PixelFormat != "" {
			fs = append(fs, "format=pix_fmts="+o.PixelFormat)
		} else if len(o.PixelFormats) > 0 {
			fs = append(fs, "format=pix_fmts="+strings.Join(o.PixelFormats, "|"))
		}
	case astispecifier.MediaTypeAudio:
		var args []string
		if o.SampleFormat != "" {
			args = append(args, "sample_fmts="+o.SampleFormat)
		} else if len(o.SampleFormats) > 0 {
			args = append(args, "sample_fmts="+strings.Join(o.SampleFormats, "|"))
		}
		if o.SampleRate > 0 {
			args = append(args, "sample_rates="+strconv.Itoa(o.SampleRate))
		} else if len(o.SampleRates) > 0 {
			var ss []string
			for _, r := range o.SampleRates {
				ss = append(ss, strconv.Itoa(r))
			}
			args = append(args, "sample_rates="+strings.Join(ss, "|"))
		}
		if o.ChannelLayout != "" {
			args = append(args, "channel_layouts="+o.ChannelLayout)
		} else if len(o.ChannelLayouts) > 0 {
			args = append(args, "channel_layouts="+strings.Join(o.ChannelLayouts, "|"))
		}
		if len(args) > 0 {
			fs = append(fs, "aformat="+strings.Join(args, ":"))
		}
	}
	return strings.Join(fs, ",")
}

// inputsReady returns whether the format of every input is known
func (g *FilterGraph) inputsReady() bool {
	for _, in := range g.Inputs {
		if !in.formatKnown {
			return false
		}
	}
	return true
}

// configure creates the backend filter graph
func (p *Pipeline) configureFilterGraph(g *FilterGraph) (err error) {
	// Options
	o := FilterGraphOptions{Description: g.description()}
	for _, in := range g.Inputs {
		o.Inputs = append(o.Inputs, FilterGraphInput{
			FrameParameters: in.format,
			Label:           in.Label,
			MediaType:       in.MediaType,
		})
	}
	for _, out := range g.Outputs {
		o.Outputs = append(o.Outputs, FilterGraphOutput{
			Label:     out.Label,
			MediaType: out.MediaType,
		})
	}

	// Create graph
	if g.graph, err = p.o.Filters.NewFilterGraph(o); err != nil {
		return resourceError("creating filter graph '%s' failed: %w", o.Description, err)
	}
	p.c.AddWithError(g.graph.Close)
	return
}
