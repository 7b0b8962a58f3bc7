package astipipeline

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	astitranscoder "github.com/asticode/go-astitranscoder"
	astioptions "github.com/asticode/go-astitranscoder/options"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// DecodingFlags indicates why an input stream is decoded
type DecodingFlags int

// Decoding flags
const (
	DecodingForOutputStream DecodingFlags = 1 << iota
	DecodingForFilter
)

// Discard policies
const (
	DiscardAll     = "all"
	DiscardBidir   = "bidir"
	DiscardDefault = "default"
	DiscardNoKey   = "nokey"
	DiscardNone    = "none"
	DiscardNoRef   = "noref"
)

var discardPolicies = map[string]bool{
	DiscardAll:     true,
	DiscardBidir:   true,
	DiscardDefault: true,
	DiscardNoKey:   true,
	DiscardNone:    true,
	DiscardNoRef:   true,
}

// Channel layouts guessed from the number of channels
var defaultChannelLayouts = map[int]string{
	1: "mono",
	2: "stereo",
	3: "2.1",
	4: "4.0",
	5: "5.0",
	6: "5.1",
	7: "6.1",
	8: "7.1",
}

// InputFile represents an opened input
type InputFile struct {
	Container       InputContainer
	Index           int
	InputTSOffset   int64
	Loop            int
	Path            string
	RateEmulation   bool
	RecordingTime   int64
	StartTime       int64
	StreamStart     int
	ThreadQueueSize int
	TSOffset        int64

	// Runtime
	duration int64
	eof      bool
	packets  chan demuxResult
	restart  chan struct{}
	streams  []*InputStream
}

// TargetName implements the astitranscoder.Target interface
func (f *InputFile) TargetName() string { return fmt.Sprintf("input #%d (%s)", f.Index, f.Path) }

// Programs implements the astispecifier.Container interface
func (f *InputFile) Programs() []astispecifier.Program { return f.Container.Programs() }

// Stream implements the astispecifier.Container interface
func (f *InputFile) Stream(idx int) astispecifier.Stream { return f.streams[idx] }

// StreamCount implements the astispecifier.Container interface
func (f *InputFile) StreamCount() int { return len(f.streams) }

// Streams returns the file's streams
func (f *InputFile) Streams() []*InputStream { return f.streams }

// InputStream represents a demuxed elementary stream
type InputStream struct {
	Codec                     Codec
	DecoderFound              bool
	DecoderOptions            map[string]string
	DecodingNeeded            DecodingFlags
	Discard                   bool
	FileIndex                 int
	FrameRate                 Rational
	GlobalIndex               int
	GuessLayoutMax            int
	HardwareAccel             string
	HardwareAccelDevice       string
	HardwareAccelOutputFormat string
	Info                      StreamInfo
	TSScale                   float64
	UserSetDiscard            string

	// Runtime
	cfrNextPTS    int64
	decoder       Decoder
	dts           int64
	filters       []*InputFilter
	framesDecoded uint64
	gotOutput     bool
	hardwareAccel HardwareAccelerator
	hardwareDev   HardwareDevice
	maxPTS        int64
	minPTS        int64
	nbSamples     int
	nextDTS       int64
	nextPTS       int64
	packetsRead   uint64
	pts           int64
	sawFirstTS    bool
}

// TargetName implements the astitranscoder.Target interface
func (s *InputStream) TargetName() string {
	return fmt.Sprintf("input stream #%d:%d", s.FileIndex, s.Info.Index)
}

// AttachedPic implements the astispecifier.Stream interface
func (s *InputStream) AttachedPic() bool { return s.Info.HasDisposition(DispositionAttachedPic) }

// Dispositions implements the astispecifier.Stream interface
func (s *InputStream) Dispositions() []string { return s.Info.Dispositions }

// ID implements the astispecifier.Stream interface
func (s *InputStream) ID() int { return s.Info.ID }

// Index implements the astispecifier.Stream interface
func (s *InputStream) Index() int { return s.Info.Index }

// MediaType implements the astispecifier.Stream interface
func (s *InputStream) MediaType() astispecifier.MediaType { return s.Info.CodecParameters.MediaType }

// Metadata implements the astispecifier.Stream interface
func (s *InputStream) Metadata() map[string]string { return s.Info.Metadata }

// Usable implements the astispecifier.Stream interface
func (s *InputStream) Usable() bool { return s.Info.CodecParameters.Usable() }

func (s *InputStream) userDiscarded() bool { return s.UserSetDiscard == DiscardAll }

// OpenInputFile opens an input and registers its streams, every stream being discarded until an output
// stream or a filter graph claims it
func (p *Pipeline) OpenInputFile(ctx context.Context, g *astioptions.Group) (f *InputFile, err error) {
	// Recording time
	recordingTime, stopTime, startTime := int64(math.MaxInt64), int64(math.MaxInt64), NoPTS
	if v, ok := g.LastInt64("t"); ok {
		recordingTime = v
	}
	if v, ok := g.LastInt64("to"); ok {
		stopTime = v
	}
	if v, ok := g.LastInt64("ss"); ok {
		startTime = v
	}
	if recordingTime, err = p.recordingTime(nil, recordingTime, stopTime, startTime); err != nil {
		return
	}

	// Format
	format, _ := g.LastString("f")
	if format != "" && !p.o.Demuxer.FormatExists(format) {
		err = configurationError("unknown input format '%s'", format)
		return
	}

	// Path
	path := g.Path
	if path == "-" {
		path = "pipe:"
	}

	// Forced format options are only set when the demuxer has them
	fo := g.FormatOptionsMap()
	if format != "" {
		for _, v := range []struct{ name, option string }{
			{name: "ac", option: "channels"},
			{name: "ar", option: "sample_rate"},
			{name: "pix_fmt", option: "pixel_format"},
			{name: "r", option: "framerate"},
			{name: "s", option: "video_size"},
		} {
			opts := g.Opts(v.name)
			if len(opts) == 0 || !p.o.Demuxer.FormatHasOption(format, v.option) {
				continue
			}
			fo[v.option] = opts[len(opts)-1].Value.String()
		}
	}

	// Open
	var c InputContainer
	if c, err = p.o.Demuxer.OpenInput(ctx, path, format, fo); err != nil {
		err = resourceError("opening %s failed: %w", path, err)
		return
	}
	p.c.AddWithError(c.Close)

	// Seek from the end
	if v, ok := g.LastInt64("sseof"); ok {
		if v >= 0 {
			err = configurationError("-sseof value must be negative")
			return
		}
		if d := c.Duration(); d > 0 && d != NoPTS {
			if startTime = v + d; startTime < 0 {
				p.warn(nil, "-sseof value seeks to before start of file %s, ignored", path)
				startTime = NoPTS
			}
		} else {
			p.warn(nil, "cannot use -sseof, duration of %s not known", path)
		}
	}

	// Seek
	timestamp := int64(0)
	if startTime != NoPTS {
		timestamp = startTime
	}
	if v := c.StartTime(); v != NoPTS {
		timestamp += v
	}
	if startTime != NoPTS {
		seekTimestamp := timestamp
		if !c.Flags().SeekToPTS {
			// Decoders with a delay output frames whose pts is before the dts of the packet sought
			for _, s := range c.Streams() {
				if s.CodecParameters.VideoDelay > 0 {
					seekTimestamp -= int64(3*TimeBaseQ.Den) / 23
					break
				}
			}
		}
		if err := c.Seek(ctx, seekTimestamp); err != nil {
			p.warn(nil, "%s: could not seek to position %0.3f: %s", path, float64(timestamp)/float64(TimeBaseQ.Den), err)
		}
	}

	// Create file
	f = &InputFile{
		Container:       c,
		Index:           len(p.inputFiles),
		Path:            g.Path,
		RecordingTime:   recordingTime,
		StartTime:       startTime,
		StreamStart:     len(p.inputStreams),
		ThreadQueueSize: p.o.ThreadQueueSize,
	}
	if v, ok := g.LastInt64("itsoffset"); ok {
		f.InputTSOffset = v
	}
	f.TSOffset = f.InputTSOffset - timestamp
	if v, ok := g.LastInt("stream_loop"); ok {
		f.Loop = v
	}
	f.RateEmulation = g.Bool("re")
	if v, ok := g.LastInt("thread_queue_size"); ok && v > 0 {
		f.ThreadQueueSize = v
	}
	p.inputFiles = append(p.inputFiles, f)

	// Add streams
	if err = p.addInputStreams(f, g); err != nil {
		err = fmt.Errorf("astipipeline: adding input streams failed: %w", err)
		return
	}

	// Check unused codec options
	used := make(map[string]bool)
	for _, ist := range f.streams {
		for k := range ist.DecoderOptions {
			used[k] = true
		}
	}
	var ws []string
	if ws, err = astioptions.CheckUnusedCodecOptions(g.CodecOptions, used, p.o.Codecs, g); err != nil {
		err = &Error{Err: err, Kind: KindConfiguration}
		return
	}
	for _, w := range ws {
		p.warn(f, "%s", w)
	}

	// Emit
	e := astitranscoder.EventInputOpened{
		Duration: durationFromTimeBaseQ(c.Duration()),
		Format:   c.FormatName(),
		Index:    f.Index,
		Path:     f.Path,
	}
	for _, ist := range f.streams {
		e.Streams = append(e.Streams, astitranscoder.EventStreamSummary{
			Codec:     ist.Info.CodecParameters.CodecName,
			Index:     ist.Index(),
			MediaType: ist.MediaType().String(),
		})
	}
	p.emit(astitranscoder.Event{
		Name:    astitranscoder.EventNameInputOpened,
		Payload: e,
		Target:  f,
	})
	return
}

// recordingTime merges -t and -to
func (p *Pipeline) recordingTime(target interface{}, recordingTime, stopTime, startTime int64) (int64, error) {
	if stopTime != math.MaxInt64 && recordingTime != math.MaxInt64 {
		stopTime = math.MaxInt64
		p.warn(target, "-t and -to cannot be used together, using -t")
	}
	if stopTime != math.MaxInt64 && recordingTime == math.MaxInt64 {
		s := int64(0)
		if startTime != NoPTS {
			s = startTime
		}
		if stopTime <= s {
			return 0, configurationError("-to value smaller than -ss, aborting")
		}
		recordingTime = stopTime - s
	}
	return recordingTime, nil
}

func (p *Pipeline) addInputStreams(f *InputFile, g *astioptions.Group) (err error) {
	// Register streams first so that specifiers can look at every stream of the file
	for _, info := range f.Container.Streams() {
		ist := &InputStream{
			Discard:        true,
			dts:            NoPTS,
			FileIndex:      f.Index,
			GlobalIndex:    len(p.inputStreams),
			GuessLayoutMax: math.MaxInt,
			Info:           info,
			maxPTS:         math.MinInt64,
			minPTS:         math.MaxInt64,
			nextDTS:        NoPTS,
			nextPTS:        NoPTS,
			pts:            NoPTS,
			TSScale:        1,
			UserSetDiscard: DiscardNone,
		}
		p.inputStreams = append(p.inputStreams, ist)
		f.streams = append(f.streams, ist)
	}

	// Configure streams
	for _, ist := range f.streams {
		if err = p.configureInputStream(f, g, ist); err != nil {
			err = fmt.Errorf("astipipeline: configuring %s failed: %w", ist.TargetName(), err)
			return
		}
	}
	return
}

func (p *Pipeline) configureInputStream(f *InputFile, g *astioptions.Group, ist *InputStream) (err error) {
	// Timestamp scale
	if v, ok, err := astioptions.ResolveDouble(g.Opts("itsscale"), f, ist); err != nil {
		return configurationError("resolving itsscale failed: %w", err)
	} else if ok {
		ist.TSScale = v
	}

	// Codec tag
	if v, ok, err := astioptions.ResolveString(g.Opts("tag"), f, ist); err != nil {
		return configurationError("resolving tag failed: %w", err)
	} else if ok {
		ist.Info.CodecParameters.CodecTag = parseCodecTag(v)
	}

	// Decoder
	if err = p.chooseDecoder(f, g, ist); err != nil {
		return
	}
	var hasPrivateOption func(string) bool
	if ist.DecoderFound {
		hasPrivateOption = ist.Codec.HasPrivateOption
	}
	if ist.DecoderOptions, err = astioptions.FilterCodecOptions(g.CodecOptions, p.o.Codecs, false, hasPrivateOption, f, ist); err != nil {
		return configurationError("filtering codec options failed: %w", err)
	}

	// Discard
	switch ist.MediaType() {
	case astispecifier.MediaTypeVideo:
		if g.Bool("vn") {
			ist.UserSetDiscard = DiscardAll
		}
	case astispecifier.MediaTypeAudio:
		if g.Bool("an") {
			ist.UserSetDiscard = DiscardAll
		}
	case astispecifier.MediaTypeSubtitle:
		if g.Bool("sn") {
			ist.UserSetDiscard = DiscardAll
		}
	case astispecifier.MediaTypeData:
		if g.Bool("dn") {
			ist.UserSetDiscard = DiscardAll
		}
	}
	if v, ok, err := astioptions.ResolveString(g.Opts("discard"), f, ist); err != nil {
		return configurationError("resolving discard failed: %w", err)
	} else if ok {
		if !discardPolicies[v] {
			return configurationError("error parsing discard %s", v)
		}
		ist.UserSetDiscard = v
	}

	switch ist.MediaType() {
	case astispecifier.MediaTypeVideo:
		// Frame rate
		if v, ok, err := astioptions.ResolveString(g.Opts("r"), f, ist); err != nil {
			return configurationError("resolving r failed: %w", err)
		} else if ok {
			if ist.FrameRate, err = ParseVideoRate(v); err != nil {
				return configurationError("error parsing framerate %s: %w", v, err)
			}
		}

		// Hardware acceleration
		if v, ok, err := astioptions.ResolveString(g.Opts("hwaccel"), f, ist); err != nil {
			return configurationError("resolving hwaccel failed: %w", err)
		} else if ok {
			if v != HardwareAcceleratorNone && v != HardwareAcceleratorAuto {
				if _, ok := p.o.HardwareAccelerators.Lookup(v); !ok {
					return configurationError("unrecognized hwaccel: %s. Supported hwaccels: %s", v, strings.Join(p.o.HardwareAccelerators.Names(), " "))
				}
			}
			ist.HardwareAccel = v
		}
		if v, ok, err := astioptions.ResolveString(g.Opts("hwaccel_device"), f, ist); err != nil {
			return configurationError("resolving hwaccel_device failed: %w", err)
		} else if ok {
			ist.HardwareAccelDevice = v
		}
		if v, ok, err := astioptions.ResolveString(g.Opts("hwaccel_output_format"), f, ist); err != nil {
			return configurationError("resolving hwaccel_output_format failed: %w", err)
		} else if ok {
			if p.o.Codecs.IsPixelFormat(v) {
				ist.HardwareAccelOutputFormat = v
			} else {
				p.warn(ist, "unrecognized hwaccel output format %s, ignored", v)
			}
		}
	case astispecifier.MediaTypeAudio:
		// Channel layout
		if v, ok, err := astioptions.ResolveInt(g.Opts("guess_layout_max"), f, ist); err != nil {
			return configurationError("resolving guess_layout_max failed: %w", err)
		} else if ok {
			ist.GuessLayoutMax = v
		}
		p.guessInputChannelLayout(ist)
	}
	return
}

func (p *Pipeline) chooseDecoder(f *InputFile, g *astioptions.Group, ist *InputStream) (err error) {
	// Explicit codec
	name, ok, err := astioptions.ResolveString(g.Opts("c"), f, ist)
	if err != nil {
		return configurationError("resolving codec failed: %w", err)
	}
	if ok {
		if ist.Codec, err = p.findCodecOrDie(name, ist.MediaType(), false); err != nil {
			return
		}
		ist.DecoderFound = true
		ist.Info.CodecParameters.CodecName = ist.Codec.CodecName
		return
	}

	// Codec reported by the container
	ist.Codec, ist.DecoderFound = p.o.Codecs.FindDecoder(ist.Info.CodecParameters.CodecName)
	return
}

func (p *Pipeline) findCodecOrDie(name string, t astispecifier.MediaType, encoder bool) (c Codec, err error) {
	// Get functions
	kind, byName, byCodecName := "decoder", p.o.Codecs.FindDecoderByName, p.o.Codecs.FindDecoder
	if encoder {
		kind, byName, byCodecName = "encoder", p.o.Codecs.FindEncoderByName, p.o.Codecs.FindEncoder
	}

	// Find codec, falling back to the codec descriptor
	c, ok := byName(name)
	if !ok {
		if d, found := p.o.Codecs.DescriptorByName(name); found {
			if c, ok = byCodecName(d.Name); ok {
				p.info(nil, "matched %s '%s' for codec '%s'", kind, c.Name, d.Name)
			}
		}
	}
	if !ok {
		err = configurationError("unknown %s '%s'", kind, name)
		return
	}
	if c.MediaType != t {
		err = configurationError("invalid %s type '%s'", kind, name)
		return
	}
	return
}

func (p *Pipeline) guessInputChannelLayout(ist *InputStream) bool {
	cp := &ist.Info.CodecParameters
	if cp.ChannelLayout != "" {
		return true
	}
	if cp.Channels > ist.GuessLayoutMax {
		return false
	}
	l, ok := defaultChannelLayouts[cp.Channels]
	if !ok {
		return false
	}
	cp.ChannelLayout = l
	p.warn(ist, "guessed channel layout for input stream #%d.%d: %s", ist.FileIndex, ist.Index(), l)
	return true
}

// parseCodecTag parses a number, or a fourcc stored little endian
func parseCodecTag(s string) uint32 {
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return uint32(v)
	}
	var b [4]byte
	copy(b[:], s)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
