package astilibav

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// FilterInfo implements the astipipeline.FilterGraphFactory interface
func (s *SDK) FilterInfo(name, args string) (i astipipeline.FilterInfo, ok bool) {
	// Find filter
	f := astiav.FindFilterByName(name)
	if f == nil {
		return
	}

	// Filters with dynamic pads
	if i, ok = dynamicFilterPads(name, args); ok {
		return
	}

	// Static pads
	for _, p := range f.Inputs() {
		i.Inputs = append(i.Inputs, mediaTypeFromLibav(p.MediaType()))
	}
	for _, p := range f.Outputs() {
		i.Outputs = append(i.Outputs, mediaTypeFromLibav(p.MediaType()))
	}
	return i, true
}

// filterArg returns the value of a filter option provided either by name or by position
func filterArg(args, name string, position int) (string, bool) {
	if args == "" {
		return "", false
	}
	named := false
	for idx, item := range strings.Split(args, ":") {
		if k, v, found := strings.Cut(item, "="); found {
			named = true
			if k == name {
				return v, true
			}
		} else if !named && idx == position {
			return item, true
		}
	}
	return "", false
}

func filterArgInt(args, name string, position, def int) int {
	if v, ok := filterArg(args, name, position); ok {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func repeatMediaType(t astispecifier.MediaType, n int) (ts []astispecifier.MediaType) {
	for idx := 0; idx < n; idx++ {
		ts = append(ts, t)
	}
	return
}

// dynamicFilterPads computes the pads of filters whose pads depend on their options
func dynamicFilterPads(name, args string) (i astipipeline.FilterInfo, ok bool) {
	ok = true
	switch name {
	case "split", "select":
		i.Inputs = []astispecifier.MediaType{astispecifier.MediaTypeVideo}
		i.Outputs = repeatMediaType(astispecifier.MediaTypeVideo, filterArgInt(args, "outputs", 0, map[string]int{"select": 1, "split": 2}[name]))
	case "asplit", "aselect":
		i.Inputs = []astispecifier.MediaType{astispecifier.MediaTypeAudio}
		i.Outputs = repeatMediaType(astispecifier.MediaTypeAudio, filterArgInt(args, "outputs", 0, map[string]int{"aselect": 1, "asplit": 2}[name]))
	case "amix", "amerge", "join":
		i.Inputs = repeatMediaType(astispecifier.MediaTypeAudio, filterArgInt(args, "inputs", 0, 2))
		i.Outputs = []astispecifier.MediaType{astispecifier.MediaTypeAudio}
	case "hstack", "vstack", "xstack", "mix":
		i.Inputs = repeatMediaType(astispecifier.MediaTypeVideo, filterArgInt(args, "inputs", 0, 2))
		i.Outputs = []astispecifier.MediaType{astispecifier.MediaTypeVideo}
	case "interleave":
		i.Inputs = repeatMediaType(astispecifier.MediaTypeVideo, filterArgInt(args, "nb_inputs", 0, 2))
		i.Outputs = []astispecifier.MediaType{astispecifier.MediaTypeVideo}
	case "ainterleave":
		i.Inputs = repeatMediaType(astispecifier.MediaTypeAudio, filterArgInt(args, "nb_inputs", 0, 2))
		i.Outputs = []astispecifier.MediaType{astispecifier.MediaTypeAudio}
	case "concat":
		n := filterArgInt(args, "n", 0, 2)
		v, a := 1, 0
		if s, found := filterArg(args, "v", 1); found {
			v, _ = strconv.Atoi(s)
		}
		if s, found := filterArg(args, "a", 2); found {
			a, _ = strconv.Atoi(s)
		}
		segment := append(repeatMediaType(astispecifier.MediaTypeVideo, v), repeatMediaType(astispecifier.MediaTypeAudio, a)...)
		for idx := 0; idx < n; idx++ {
			i.Inputs = append(i.Inputs, segment...)
		}
		i.Outputs = segment
	default:
		ok = false
	}
	return
}

type filterGraph struct {
	fg      *astiav.FilterGraph
	inputs  []*filterGraphInput
	outputs []*filterGraphOutput
	s       *SDK
}

type filterGraphInput struct {
	bfc       *astiav.BuffersrcFilterContext
	mediaType astispecifier.MediaType
}

type filterGraphOutput struct {
	bfc       *astiav.BuffersinkFilterContext
	mediaType astispecifier.MediaType
	params    astipipeline.FrameParameters
}

func bufferFilterArgs(i astipipeline.FilterGraphInput) (args astiav.FilterArgs, err error) {
	switch i.MediaType {
	case astispecifier.MediaTypeAudio:
		sf, ok := sampleFormatFromName(i.SampleFormat)
		if !ok {
			err = fmt.Errorf("astilibav: unknown sample format %s", i.SampleFormat)
			return
		}
		cl := i.ChannelLayout
		if cl == "" {
			cl = strconv.Itoa(i.Channels) + "c"
		}
		args = astiav.FilterArgs{
			"channel_layout": cl,
			"sample_fmt":     sf.String(),
			"sample_rate":    strconv.Itoa(i.SampleRate),
			"time_base":      rationalToLibav(i.TimeBase).String(),
		}
	case astispecifier.MediaTypeVideo:
		pf, ok := pixelFormatFromName(i.PixelFormat)
		if !ok {
			err = fmt.Errorf("astilibav: unknown pixel format %s", i.PixelFormat)
			return
		}
		sar := i.SampleAspectRatio
		if sar.Num <= 0 || sar.Den <= 0 {
			sar = astipipeline.Rational{Num: 0, Den: 1}
		}
		args = astiav.FilterArgs{
			"height":    strconv.Itoa(i.Height),
			"pix_fmt":   strconv.Itoa(int(pf)),
			"sar":       rationalToLibav(sar).String(),
			"time_base": rationalToLibav(i.TimeBase).String(),
			"width":     strconv.Itoa(i.Width),
		}
		if i.FrameRate.Num > 0 && i.FrameRate.Den > 0 {
			args["frame_rate"] = rationalToLibav(i.FrameRate).String()
		}
	default:
		err = fmt.Errorf("astilibav: media type %s is not handled by filter graphs", i.MediaType)
	}
	return
}

// NewFilterGraph implements the astipipeline.FilterGraphFactory interface
func (s *SDK) NewFilterGraph(o astipipeline.FilterGraphOptions) (_ astipipeline.FilterGraphInstance, err error) {
	// Create graph
	g := &filterGraph{s: s}
	if g.fg = astiav.AllocFilterGraph(); g.fg == nil {
		err = fmt.Errorf("astilibav: allocating filter graph failed")
		return
	}

	// Make sure the graph is closed on error
	defer func() {
		if err != nil {
			g.Close()
		}
	}()

	// Create outputs
	var outputs *astiav.FilterInOut
	defer func() {
		if outputs != nil {
			outputs.Free()
		}
	}()

	// Loop through graph inputs
	for idx, i := range o.Inputs {
		// Create args
		var args astiav.FilterArgs
		if args, err = bufferFilterArgs(i); err != nil {
			err = fmt.Errorf("astilibav: creating args of input %s failed: %w", i.Label, err)
			return
		}

		// Find filter
		n := "buffer"
		if i.MediaType == astispecifier.MediaTypeAudio {
			n = "abuffer"
		}
		f := astiav.FindFilterByName(n)
		if f == nil {
			err = fmt.Errorf("astilibav: filter %s not found", n)
			return
		}

		// Create buffersrc context
		var bfc *astiav.BuffersrcFilterContext
		if bfc, err = g.fg.NewBuffersrcFilterContext(f, fmt.Sprintf("in_%d", idx), args); err != nil {
			err = fmt.Errorf("astilibav: creating buffersrc context of input %s failed: %w", i.Label, err)
			return
		}
		g.inputs = append(g.inputs, &filterGraphInput{
			bfc:       bfc,
			mediaType: i.MediaType,
		})

		// Create inout
		io := astiav.AllocFilterInOut()
		io.SetName(i.Label)
		io.SetFilterContext(bfc.FilterContext())
		io.SetPadIdx(0)
		io.SetNext(outputs)
		outputs = io
	}

	// Create inputs
	var inputs *astiav.FilterInOut
	defer func() {
		if inputs != nil {
			inputs.Free()
		}
	}()

	// Loop through graph outputs
	for idx, o := range o.Outputs {
		// Find filter
		n := "buffersink"
		if o.MediaType == astispecifier.MediaTypeAudio {
			n = "abuffersink"
		}
		f := astiav.FindFilterByName(n)
		if f == nil {
			err = fmt.Errorf("astilibav: filter %s not found", n)
			return
		}

		// Create buffersink context
		var bfc *astiav.BuffersinkFilterContext
		if bfc, err = g.fg.NewBuffersinkFilterContext(f, fmt.Sprintf("out_%d", idx), nil); err != nil {
			err = fmt.Errorf("astilibav: creating buffersink context of output %s failed: %w", o.Label, err)
			return
		}
		g.outputs = append(g.outputs, &filterGraphOutput{
			bfc:       bfc,
			mediaType: o.MediaType,
		})

		// Create inout
		io := astiav.AllocFilterInOut()
		io.SetName(o.Label)
		io.SetFilterContext(bfc.FilterContext())
		io.SetPadIdx(0)
		io.SetNext(inputs)
		inputs = io
	}

	// Parse
	if err = g.fg.Parse(o.Description, inputs, outputs); err != nil {
		err = fmt.Errorf("astilibav: parsing filter graph failed: %w", err)
		return
	}

	// Configure
	if err = g.fg.Configure(); err != nil {
		err = fmt.Errorf("astilibav: configuring filter graph failed: %w", err)
		return
	}

	// Output parameters
	for _, o := range g.outputs {
		o.params = buffersinkParameters(o.bfc, o.mediaType)
	}
	return g, nil
}

func buffersinkParameters(bfc *astiav.BuffersinkFilterContext, t astispecifier.MediaType) (p astipipeline.FrameParameters) {
	p.TimeBase = rationalFromLibav(bfc.TimeBase())
	switch t {
	case astispecifier.MediaTypeVideo:
		p.FrameRate = rationalFromLibav(bfc.FrameRate())
		p.Height = bfc.Height()
		p.PixelFormat = pixelFormatName(bfc.PixelFormat())
		p.SampleAspectRatio = rationalFromLibav(bfc.SampleAspectRatio())
		p.Width = bfc.Width()
	case astispecifier.MediaTypeAudio:
		p.ChannelLayout = channelLayoutName(bfc.ChannelLayout())
		p.Channels = bfc.ChannelLayout().NbChannels()
		p.SampleFormat = sampleFormatName(bfc.SampleFormat())
		p.SampleRate = bfc.SampleRate()
	}
	return
}

// Close implements the astipipeline.FilterGraphInstance interface
func (g *filterGraph) Close() error {
	// Filter contexts are freed with the graph
	if g.fg != nil {
		g.fg.Free()
		g.fg = nil
	}
	return nil
}

// OutputParameters implements the astipipeline.FilterGraphInstance interface
func (g *filterGraph) OutputParameters(output int) astipipeline.FrameParameters {
	if output < 0 || output >= len(g.outputs) {
		return astipipeline.FrameParameters{}
	}
	return g.outputs[output].params
}

// Push implements the astipipeline.FilterGraphInstance interface
func (g *filterGraph) Push(input int, f *astipipeline.Frame) (err error) {
	// Get input
	if input < 0 || input >= len(g.inputs) {
		return fmt.Errorf("astilibav: invalid filter graph input %d", input)
	}
	i := g.inputs[input]

	// Get frame
	var fr *astiav.Frame
	if f != nil {
		if fr, err = libavFrame(f); err != nil {
			return
		}
	}

	// Add frame
	if err = i.bfc.AddFrame(fr, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		err = fmt.Errorf("astilibav: adding frame to buffersrc failed: %w", err)
		return
	}
	return
}

// Pull implements the astipipeline.FilterGraphInstance interface
func (g *filterGraph) Pull(output int) (_ *astipipeline.Frame, err error) {
	// Get output
	if output < 0 || output >= len(g.outputs) {
		err = fmt.Errorf("astilibav: invalid filter graph output %d", output)
		return
	}
	o := g.outputs[output]

	// Get frame
	f := g.s.fp.get()
	if err = o.bfc.GetFrame(f, astiav.NewBuffersinkFlags()); err != nil {
		g.s.fp.put(f)
		err = convertError(err)
		return
	}
	return g.s.fp.newFrame(f, o.mediaType, o.bfc.TimeBase(), o.bfc.FrameRate()), nil
}
