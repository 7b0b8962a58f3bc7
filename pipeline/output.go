package astipipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	astitranscoder "github.com/asticode/go-astitranscoder"
	astioptions "github.com/asticode/go-astitranscoder/options"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// OutputFile represents an output being muxed
type OutputFile struct {
	Container     OutputContainer
	Format        OutputFormat
	Index         int
	LimitFileSize int64
	Options       map[string]string
	Path          string
	RecordingTime int64
	Shortest      bool
	StartTime     int64

	chapters               []Chapter
	metadata               map[string]string
	metadataChaptersManual bool
	metadataGlobalManual   bool
	metadataStreamsManual  bool
	streamMaps             []StreamMap
	streams                []*OutputStream

	// Runtime
	headerWritten bool
}

// TargetName implements the astitranscoder.Target interface
func (f *OutputFile) TargetName() string { return fmt.Sprintf("output #%d (%s)", f.Index, f.Path) }

// Programs implements the astispecifier.Container interface
func (f *OutputFile) Programs() []astispecifier.Program { return nil }

// Stream implements the astispecifier.Container interface
func (f *OutputFile) Stream(idx int) astispecifier.Stream {
	if idx < 0 || idx >= len(f.streams) {
		return nil
	}
	return f.streams[idx]
}

// StreamCount implements the astispecifier.Container interface
func (f *OutputFile) StreamCount() int { return len(f.streams) }

// Streams returns the file's streams
func (f *OutputFile) Streams() []*OutputStream { return f.streams }

// StreamMaps returns the stream maps parsed for the file
func (f *OutputFile) StreamMaps() []StreamMap { return f.streamMaps }

// Metadata returns the file's global metadata
func (f *OutputFile) Metadata() map[string]string { return f.metadata }

// Chapters returns the file's chapters
func (f *OutputFile) Chapters() []Chapter { return f.chapters }

// OutputStream represents an elementary stream being muxed
type OutputStream struct {
	BitstreamFilters   string
	Channels           int
	Codec              Codec
	CodecTag           uint32
	Disposition        string
	EncoderOptions     map[string]string
	FileIndex          int
	Filter             *OutputFilter
	FilterDescription  string
	ForceKeyFrames     string
	FrameRate          Rational
	FrameRateState     FrameRateState
	GlobalIndex        int
	Height             int
	KeepPixelFormat    bool
	MaxFrames          int64
	MaxMuxingQueueSize int
	Pass               int
	PassLogFile        string
	PixelFormat        string
	Qscale             float64
	SampleFormat       string
	SampleRate         int
	Source             *InputStream
	StatsIn            []byte
	StreamCopy         bool
	Sync               *InputStream
	TimeBase           Rational
	Width              int

	filterFromScript bool
	globalHeader     bool
	index            int
	mediaType        astispecifier.MediaType
	metadata         map[string]string
	simpleGraph      *FilterGraph
	userFilter       bool

	// Runtime
	dataSize            uint64
	encoder             Encoder
	encoderTB           Rational
	finished            bool
	forcedKeyFrameIndex int
	forcedKeyFrames     []int64
	framesDropped       uint64
	framesDuplicated    uint64
	framesEncoded       int64
	initialized         bool
	inputsDone          bool
	lastMuxDTS          int64
	muxTimeBase         Rational
	packetsWritten      uint64
	passLog             *PassLog
	queue               *MuxingQueue
	streamTB            Rational
	syncOpts            int64
	vsync               VSyncMethod
}

// TargetName implements the astitranscoder.Target interface
func (s *OutputStream) TargetName() string {
	return fmt.Sprintf("output stream #%d:%d", s.FileIndex, s.index)
}

// AttachedPic implements the astispecifier.Stream interface
func (s *OutputStream) AttachedPic() bool {
	return s.Source != nil && s.Source.AttachedPic()
}

// Dispositions implements the astispecifier.Stream interface. A disposition set with -disposition
// replaces the one of the source.
func (s *OutputStream) Dispositions() []string {
	if s.Disposition != "" {
		return strings.Split(s.Disposition, "+")
	}
	if s.Source != nil {
		return s.Source.Dispositions()
	}
	return nil
}

// ID implements the astispecifier.Stream interface
func (s *OutputStream) ID() int { return s.index }

// Index implements the astispecifier.Stream interface
func (s *OutputStream) Index() int { return s.index }

// MediaType implements the astispecifier.Stream interface
func (s *OutputStream) MediaType() astispecifier.MediaType { return s.mediaType }

// Metadata implements the astispecifier.Stream interface
func (s *OutputStream) Metadata() map[string]string { return s.metadata }

// Usable implements the astispecifier.Stream interface
func (s *OutputStream) Usable() bool { return true }

// EncodingNeeded returns whether the stream is encoded
func (s *OutputStream) EncodingNeeded() bool { return !s.StreamCopy }

// OpenOutputFile creates an output and its streams, either from the stream maps or by selecting
// the best input stream of each media type
func (p *Pipeline) OpenOutputFile(ctx context.Context, g *astioptions.Group) (of *OutputFile, err error) {
	// Create file
	of = &OutputFile{
		Index:         len(p.outputFiles),
		LimitFileSize: math.MaxInt64,
		Options:       g.FormatOptionsMap(),
		Path:          g.Path,
		RecordingTime: math.MaxInt64,
		Shortest:      g.Bool("shortest"),
		StartTime:     NoPTS,
		metadata:      make(map[string]string),
	}
	if of.Path == "-" {
		of.Path = "pipe:"
	}

	// Times
	stopTime := int64(math.MaxInt64)
	if v, ok := g.LastInt64("t"); ok {
		of.RecordingTime = v
	}
	if v, ok := g.LastInt64("to"); ok {
		stopTime = v
	}
	if v, ok := g.LastInt64("ss"); ok {
		of.StartTime = v
	}
	if of.RecordingTime, err = p.recordingTime(of, of.RecordingTime, stopTime, of.StartTime); err != nil {
		return
	}
	if v, ok := g.LastInt64("fs"); ok {
		of.LimitFileSize = v
	}

	// Create container
	format, _ := g.LastString("f")
	if of.Container, err = p.o.Muxer.CreateOutput(ctx, of.Path, format); err != nil {
		err = resourceError("creating output %s failed: %w", of.Path, err)
		return
	}
	p.c.AddWithError(of.Container.Close)
	of.Format = of.Container.Format()
	p.outputFiles = append(p.outputFiles, of)

	// Parse maps
	for _, o := range g.Opts("map") {
		v, _ := o.Value.Str()
		if of.streamMaps, err = p.ParseMap(of.streamMaps, v); err != nil {
			return
		}
	}

	// Create streams for unlabelled outputs of complex filter graphs
	videoDisabled, audioDisabled := g.Bool("vn"), g.Bool("an")
	subtitleDisabled, dataDisabled := g.Bool("sn"), g.Bool("dn")
	for _, fg := range p.filterGraphs {
		for _, o := range fg.Outputs {
			if o.Stream != nil || o.UserLabel != "" {
				continue
			}
			switch o.MediaType {
			case astispecifier.MediaTypeVideo:
				videoDisabled = true
			case astispecifier.MediaTypeAudio:
				audioDisabled = true
			case astispecifier.MediaTypeSubtitle:
				subtitleDisabled = true
			}
			if _, err = p.bindOutputFilter(of, g, o); err != nil {
				return
			}
		}
	}

	// Create streams
	if len(of.streamMaps) == 0 {
		if err = p.selectOutputStreams(of, g, videoDisabled, audioDisabled, subtitleDisabled, dataDisabled); err != nil {
			return
		}
	} else {
		if err = p.mapOutputStreams(of, g, videoDisabled, audioDisabled, subtitleDisabled, dataDisabled); err != nil {
			return
		}
	}

	// No streams
	if len(of.streams) == 0 && !of.Format.Flags.NoStreams {
		err = configurationError("output file #%d does not contain any stream", of.Index)
		return
	}

	// Check unused codec options
	used := make(map[string]bool)
	for _, ost := range of.streams {
		for k := range ost.EncoderOptions {
			used[k] = true
		}
	}
	var ws []string
	if ws, err = astioptions.CheckUnusedCodecOptions(g.CodecOptions, used, p.o.Codecs, g); err != nil {
		err = &Error{Err: err, Kind: KindConfiguration}
		return
	}
	for _, w := range ws {
		p.warn(of, "%s", w)
	}

	// Decoders and simple filter graphs
	for _, ost := range of.streams {
		if ost.StreamCopy || ost.Source == nil {
			continue
		}
		ost.Source.DecodingNeeded |= DecodingForOutputStream
		if ost.mediaType == astispecifier.MediaTypeVideo || ost.mediaType == astispecifier.MediaTypeAudio {
			p.addSimpleFilterGraph(ost.Source, ost)
		}
	}

	// Filter constraints
	for _, ost := range of.streams {
		if ost.Filter != nil && !ost.StreamCopy {
			p.setOutputFilterConstraints(ost)
		}
	}

	// Open file
	if !of.Format.Flags.NoFile {
		if err = p.checkOverwrite(of.Path); err != nil {
			return
		}
		if err = of.Container.Open(of.Options); err != nil {
			err = resourceError("opening output %s failed: %w", of.Path, err)
			return
		}
	}

	// Metadata
	for _, o := range g.Opts("map_metadata") {
		v, _ := o.Value.Str()
		if err = p.copyMetadata(of, o.Specifier, v); err != nil {
			return
		}
	}
	if err = p.copyAutomaticMetadata(of, g); err != nil {
		return
	}
	if err = p.applyManualMetadata(of, g); err != nil {
		return
	}

	// Emit
	e := astitranscoder.EventOutputOpened{
		Format: of.Format.Name,
		Index:  of.Index,
		Path:   of.Path,
	}
	for _, ost := range of.streams {
		codec := ost.Codec.Name
		if ost.StreamCopy {
			codec = "copy"
		}
		e.Streams = append(e.Streams, astitranscoder.EventStreamSummary{
			Codec:     codec,
			Index:     ost.index,
			MediaType: ost.mediaType.String(),
		})
	}
	p.emit(astitranscoder.Event{
		Name:    astitranscoder.EventNameOutputOpened,
		Payload: e,
		Target:  of,
	})
	for _, ost := range of.streams {
		p.emitStreamMapped(ost)
	}
	return
}

func (p *Pipeline) selectOutputStreams(of *OutputFile, g *astioptions.Group, videoDisabled, audioDisabled, subtitleDisabled, dataDisabled bool) (err error) {
	// Video
	if !videoDisabled && of.Format.VideoCodec != "" {
		var best *InputStream
		area := 0
		for _, ist := range p.inputStreams {
			if ist.userDiscarded() || ist.MediaType() != astispecifier.MediaTypeVideo {
				continue
			}
			if of.Format.SupportsAttachedPic && !ist.AttachedPic() {
				continue
			}
			newArea := ist.Info.CodecParameters.Width*ist.Info.CodecParameters.Height + streamScoreBonus(ist)
			if !of.Format.SupportsAttachedPic && ist.AttachedPic() {
				newArea = 1
			}
			if newArea > area {
				area, best = newArea, ist
			}
		}
		if best != nil {
			if _, err = p.newOutputStream(of, g, astispecifier.MediaTypeVideo, best); err != nil {
				return
			}
		}
	}

	// Audio
	if !audioDisabled && of.Format.AudioCodec != "" {
		var best *InputStream
		score := 0
		for _, ist := range p.inputStreams {
			if ist.userDiscarded() || ist.MediaType() != astispecifier.MediaTypeAudio {
				continue
			}
			if s := ist.Info.CodecParameters.Channels + streamScoreBonus(ist); s > score {
				score, best = s, ist
			}
		}
		if best != nil {
			if _, err = p.newOutputStream(of, g, astispecifier.MediaTypeAudio, best); err != nil {
				return
			}
		}
	}

	// Subtitle
	_, hasCodecName := astioptions.ResolveForMediaType(g.Opts("c"), astispecifier.MediaTypeSubtitle)
	outputCodec, hasOutputCodec := p.o.Codecs.FindEncoder(of.Format.SubtitleCodec)
	if !subtitleDisabled && (hasOutputCodec || hasCodecName) {
		var out Descriptor
		hasOut := false
		if hasOutputCodec {
			out, hasOut = p.o.Codecs.DescriptorByName(outputCodec.CodecName)
		}
		for _, ist := range p.inputStreams {
			if ist.MediaType() != astispecifier.MediaTypeSubtitle || ist.userDiscarded() {
				continue
			}
			in, hasIn := p.o.Codecs.DescriptorByName(ist.Info.CodecParameters.CodecName)
			propsMatch := hasIn && hasOut && ((in.TextSubtitle && out.TextSubtitle) || (in.BitmapSubtitle && out.BitmapSubtitle))
			// Codecs without properties, such as teletext, go to any subtitle encoder
			noProps := hasIn && hasOut && (in.NoProperties || out.NoProperties)
			if hasCodecName || propsMatch || noProps {
				if _, err = p.newOutputStream(of, g, astispecifier.MediaTypeSubtitle, ist); err != nil {
					return
				}
				break
			}
		}
	}

	// Data
	if !dataDisabled && of.Format.DataCodec != "" {
		for _, ist := range p.inputStreams {
			if ist.userDiscarded() || ist.MediaType() != astispecifier.MediaTypeData || ist.Info.CodecParameters.CodecName != of.Format.DataCodec {
				continue
			}
			if _, err = p.newOutputStream(of, g, astispecifier.MediaTypeData, ist); err != nil {
				return
			}
		}
	}
	return
}

// streamScoreBonus favors streams whose frames have been decoded while probing and default streams
func streamScoreBonus(ist *InputStream) (b int) {
	if ist.Info.CodecInfoFrames > 0 {
		b += 100000000
	}
	if ist.Info.HasDisposition(DispositionDefault) {
		b += 5000000
	}
	return
}

func (p *Pipeline) mapOutputStreams(of *OutputFile, g *astioptions.Group, videoDisabled, audioDisabled, subtitleDisabled, dataDisabled bool) (err error) {
	for _, m := range of.streamMaps {
		// Disabled
		if m.Disabled {
			continue
		}

		// Filter graph output
		if m.LinkLabel != "" {
			var o *OutputFilter
			for _, fg := range p.filterGraphs {
				for _, v := range fg.Outputs {
					if v.Stream == nil && v.UserLabel == m.LinkLabel {
						o = v
						break
					}
				}
				if o != nil {
					break
				}
			}
			if o == nil {
				return configurationError("output with label '%s' does not exist in any defined filter graph, or was already used elsewhere", m.LinkLabel)
			}
			if _, err = p.bindOutputFilter(of, g, o); err != nil {
				return
			}
			continue
		}

		// Input stream
		ist := p.inputFiles[m.FileIndex].streams[m.StreamIndex]
		if ist.userDiscarded() {
			return configurationError("stream #%d:%d is disabled and cannot be mapped", m.FileIndex, m.StreamIndex)
		}
		t := ist.MediaType()
		switch {
		case t == astispecifier.MediaTypeVideo && videoDisabled,
			t == astispecifier.MediaTypeAudio && audioDisabled,
			t == astispecifier.MediaTypeSubtitle && subtitleDisabled,
			t == astispecifier.MediaTypeData && dataDisabled:
			continue
		case t == astispecifier.MediaTypeUnknown:
			return configurationError("cannot map stream #%d:%d - unsupported type", m.FileIndex, m.StreamIndex)
		}

		// Create stream
		var ost *OutputStream
		if ost, err = p.newOutputStream(of, g, t, ist); err != nil {
			return
		}
		ost.Sync = p.inputFiles[m.SyncFileIndex].streams[m.SyncStreamIndex]
	}
	return
}

// newOutputStream creates an output stream, source being nil when the stream is fed by a filter graph
func (p *Pipeline) newOutputStream(of *OutputFile, g *astioptions.Group, t astispecifier.MediaType, source *InputStream) (ost *OutputStream, err error) {
	// Create stream in container
	idx, err := of.Container.NewStream(t)
	if err != nil {
		err = resourceError("could not alloc output stream: %w", err)
		return
	}

	// Create stream
	ost = &OutputStream{
		FileIndex:          of.Index,
		GlobalIndex:        len(p.outputStreams),
		MaxFrames:          math.MaxInt64,
		MaxMuxingQueueSize: p.o.MaxMuxingQueueSize,
		Qscale:             -1,
		Source:             source,
		Sync:               source,
		index:              idx,
		lastMuxDTS:         NoPTS,
		mediaType:          t,
		metadata:           make(map[string]string),
		vsync:              p.o.VSync,
	}
	of.streams = append(of.streams, ost)
	p.outputStreams = append(p.outputStreams, ost)

	// Encoder
	if err = p.chooseEncoder(of, g, ost); err != nil {
		return
	}

	// Encoder options
	hasPrivateOption := func(string) bool { return false }
	if !ost.StreamCopy {
		hasPrivateOption = ost.Codec.HasPrivateOption
	}
	if ost.EncoderOptions, err = astioptions.FilterCodecOptions(g.CodecOptions, p.o.Codecs, true, hasPrivateOption, of, ost); err != nil {
		err = configurationError("filtering codec options of %s failed: %w", ost.TargetName(), err)
		return
	}

	// Preset
	if err = p.applyPreset(of, g, ost); err != nil {
		return
	}

	// Time base
	if v, ok, errResolve := astioptions.ResolveString(g.Opts("time_base"), of, ost); errResolve != nil {
		return nil, configurationError("resolving time_base failed: %w", errResolve)
	} else if ok {
		r, errParse := ParseRatio(v, math.MaxInt32)
		if errParse != nil || r.Num <= 0 || r.Den <= 0 {
			return nil, configurationError("invalid time base: %s", v)
		}
		ost.TimeBase = r
	}

	// Max frames
	if v, ok, errResolve := astioptions.ResolveInt64(g.Opts("frames"), of, ost); errResolve != nil {
		return nil, configurationError("resolving frames failed: %w", errResolve)
	} else if ok {
		ost.MaxFrames = v
	}
	for _, o := range g.Opts("frames") {
		if o.Specifier == "" && t != astispecifier.MediaTypeVideo {
			p.warn(ost, "applying unspecific -frames to non video streams, maybe you meant -vframes ?")
			break
		}
	}

	// Bitstream filters
	if v, ok, errResolve := astioptions.ResolveString(g.Opts("bsf"), of, ost); errResolve != nil {
		return nil, configurationError("resolving bsf failed: %w", errResolve)
	} else if ok {
		for _, b := range strings.Split(v, ",") {
			n := b
			if i := strings.IndexByte(b, '='); i >= 0 {
				n = b[:i]
			}
			if !p.o.Codecs.BitstreamFilterExists(n) {
				return nil, configurationError("unknown bitstream filter %s", n)
			}
		}
		ost.BitstreamFilters = v
	}

	// Codec tag
	if v, ok, errResolve := astioptions.ResolveString(g.Opts("tag"), of, ost); errResolve != nil {
		return nil, configurationError("resolving tag failed: %w", errResolve)
	} else if ok {
		ost.CodecTag = parseCodecTag(v)
	}

	// Quality scale
	if v, ok, errResolve := astioptions.ResolveDouble(g.Opts("q"), of, ost); errResolve != nil {
		return nil, configurationError("resolving q failed: %w", errResolve)
	} else if ok && v >= 0 {
		ost.Qscale = v
	}

	// Disposition
	if v, ok, errResolve := astioptions.ResolveString(g.Opts("disposition"), of, ost); errResolve != nil {
		return nil, configurationError("resolving disposition failed: %w", errResolve)
	} else if ok {
		ost.Disposition = v
	}

	// Muxing queue
	if v, ok, errResolve := astioptions.ResolveInt(g.Opts("max_muxing_queue_size"), of, ost); errResolve != nil {
		return nil, configurationError("resolving max_muxing_queue_size failed: %w", errResolve)
	} else if ok {
		ost.MaxMuxingQueueSize = v
	}
	ost.queue = NewMuxingQueue(ost.MaxMuxingQueueSize)

	// Global header
	ost.globalHeader = of.Format.Flags.GlobalHeader

	// Media type specific
	switch t {
	case astispecifier.MediaTypeVideo:
		err = p.setupVideoStream(of, g, ost)
	case astispecifier.MediaTypeAudio:
		err = p.setupAudioStream(of, g, ost)
	case astispecifier.MediaTypeSubtitle:
		err = p.setupSubtitleStream(of, g, ost)
	default:
		if !ost.StreamCopy {
			err = configurationError("%s stream encoding not supported yet (only streamcopy)", t)
		}
	}
	if err != nil {
		return
	}

	// Activate source
	if source != nil {
		source.Discard = false
	}
	return
}

func (p *Pipeline) chooseEncoder(of *OutputFile, g *astioptions.Group, ost *OutputStream) (err error) {
	// Only video, audio and subtitles can be encoded
	switch ost.mediaType {
	case astispecifier.MediaTypeVideo, astispecifier.MediaTypeAudio, astispecifier.MediaTypeSubtitle:
	default:
		ost.StreamCopy = true
		return
	}

	// Resolve name
	name, ok, err := astioptions.ResolveString(g.Opts("c"), of, ost)
	if err != nil {
		return configurationError("resolving codec failed: %w", err)
	}

	// Guess from the format
	if !ok {
		codecName := of.Format.DefaultCodec(ost.mediaType)
		var found bool
		if ost.Codec, found = p.o.Codecs.FindEncoder(codecName); !found {
			return configurationError("automatic encoder selection failed for output stream #%d:%d. Default encoder for format %s (codec %s) is probably disabled. Please choose an encoder manually", of.Index, ost.index, of.Format.Name, codecName)
		}
		return
	}

	// Stream copy
	if name == "copy" {
		ost.StreamCopy = true
		return
	}

	// Find
	if ost.Codec, err = p.findCodecOrDie(name, ost.mediaType, true); err != nil {
		return
	}
	return
}

func (p *Pipeline) applyPreset(of *OutputFile, g *astioptions.Group, ost *OutputStream) (err error) {
	// Resolve
	name, ok, err := astioptions.ResolveString(g.Opts("pre"), of, ost)
	if err != nil {
		return configurationError("resolving pre failed: %w", err)
	} else if !ok {
		return
	}

	// Find
	var path string
	if path, err = astioptions.FindPresetFile(p.o.PresetDirs, name, ost.Codec.Name); err != nil {
		if errors.Is(err, astioptions.ErrPresetNotFound) {
			return configurationError("preset %s specified for stream %d:%d, but could not be opened", name, of.Index, ost.index)
		}
		return resourceError("finding preset %s failed: %w", name, err)
	}

	// Parse
	var ss []astioptions.Setting
	if ss, err = astioptions.ParsePresetFile(path); err != nil {
		return &Error{Err: fmt.Errorf("astipipeline: parsing preset %s failed: %w", path, err), Kind: KindConfiguration}
	}

	// Apply without overriding explicit options
	for _, s := range ss {
		if s.IsCodecName() {
			continue
		}
		if _, ok := ost.EncoderOptions[s.Key]; !ok {
			ost.EncoderOptions[s.Key] = s.Value
		}
	}
	return
}

// resolveFilter resolves -filter and -filter_script
func (p *Pipeline) resolveFilter(of *OutputFile, g *astioptions.Group, ost *OutputStream) (err error) {
	// Resolve
	filter, hasFilter, err := astioptions.ResolveString(g.Opts("filter"), of, ost)
	if err != nil {
		return configurationError("resolving filter failed: %w", err)
	}
	script, hasScript, err := astioptions.ResolveString(g.Opts("filter_script"), of, ost)
	if err != nil {
		return configurationError("resolving filter_script failed: %w", err)
	}
	if hasFilter && hasScript {
		return configurationError("both -filter and -filter_script set for output stream #%d:%d", of.Index, ost.index)
	}

	// Stream copy
	if ost.StreamCopy {
		if hasFilter || hasScript {
			kind, v := "Filtergraph", filter
			if hasScript {
				kind, v = "Filtergraph script", script
			}
			return configurationError("%s '%s' was defined for %s output stream %d:%d but codec copy was selected. Filtering and streamcopy cannot be used together", kind, v, ost.mediaType, of.Index, ost.index)
		}
		return
	}

	// Description
	switch {
	case hasScript:
		var b []byte
		if b, err = os.ReadFile(script); err != nil {
			return resourceError("reading filter script %s failed: %w", script, err)
		}
		ost.FilterDescription = string(b)
		ost.filterFromScript = true
		ost.userFilter = true
	case hasFilter:
		ost.FilterDescription = filter
		ost.userFilter = true
	case ost.mediaType == astispecifier.MediaTypeVideo:
		ost.FilterDescription = "null"
	default:
		ost.FilterDescription = "anull"
	}
	return
}

func (p *Pipeline) setupVideoStream(of *OutputFile, g *astioptions.Group, ost *OutputStream) (err error) {
	// Frame rate
	if v, ok, errResolve := astioptions.ResolveString(g.Opts("r"), of, ost); errResolve != nil {
		return configurationError("resolving r failed: %w", errResolve)
	} else if ok {
		if ost.FrameRate, err = ParseVideoRate(v); err != nil {
			return configurationError("invalid framerate value: %s", v)
		}
		ost.FrameRateState = FrameRateStateForced
		if p.o.VSync == VSyncPassthrough {
			p.emit(astitranscoder.EventError(ost, errors.New("astipipeline: using -vsync 0 and -r can produce invalid output files")))
		}
	}

	// Filter
	if err = p.resolveFilter(of, g, ost); err != nil {
		return
	}
	if ost.StreamCopy {
		return
	}

	// Frame size
	if v, ok, errResolve := astioptions.ResolveString(g.Opts("s"), of, ost); errResolve != nil {
		return configurationError("resolving s failed: %w", errResolve)
	} else if ok {
		if ost.Width, ost.Height, err = ParseVideoSize(v); err != nil {
			return configurationError("invalid frame size: %s", v)
		}
	}

	// Pixel format
	if v, ok, errResolve := astioptions.ResolveString(g.Opts("pix_fmt"), of, ost); errResolve != nil {
		return configurationError("resolving pix_fmt failed: %w", errResolve)
	} else if ok {
		if strings.HasPrefix(v, "+") {
			ost.KeepPixelFormat = true
			v = v[1:]
		}
		if v != "" {
			if !p.o.Codecs.IsPixelFormat(v) {
				return configurationError("unknown pixel format requested: %s", v)
			}
			ost.PixelFormat = v
		}
	}

	// Force key frames
	if v, ok, errResolve := astioptions.ResolveString(g.Opts("force_key_frames"), of, ost); errResolve != nil {
		return configurationError("resolving force_key_frames failed: %w", errResolve)
	} else if ok {
		ost.ForceKeyFrames = v
	}

	// Passes
	return p.setupPasses(of, g, ost)
}

func (p *Pipeline) setupPasses(of *OutputFile, g *astioptions.Group, ost *OutputStream) (err error) {
	// Pass
	if v, ok, errResolve := astioptions.ResolveInt(g.Opts("pass"), of, ost); errResolve != nil {
		return configurationError("resolving pass failed: %w", errResolve)
	} else if ok {
		if v < 1 || v > 3 {
			return configurationError("invalid pass %d, must be between 1 and 3", v)
		}
		ost.Pass = v
	}
	if ost.Pass == 0 {
		return
	}

	// Flags
	flags := ost.EncoderOptions["flags"]
	if ost.Pass&PassFirst > 0 {
		flags += "+pass1"
	}
	if ost.Pass&PassSecond > 0 {
		flags += "+pass2"
	}
	ost.EncoderOptions["flags"] = flags

	// Log file
	prefix, _, err := astioptions.ResolveString(g.Opts("passlogfile"), of, ost)
	if err != nil {
		return configurationError("resolving passlogfile failed: %w", err)
	}
	if prefix == "" {
		prefix = p.o.PassLogPrefix
	}
	ost.PassLogFile = PassLogFileName(prefix, ost.GlobalIndex)

	// The encoder handles the log file itself
	if ost.Codec.Name == "libx264" {
		if _, ok := ost.EncoderOptions["stats"]; !ok {
			ost.EncoderOptions["stats"] = ost.PassLogFile
		}
		if ost.Pass&PassSecond > 0 {
			err = CheckPassLog(ost.EncoderOptions["stats"])
		}
		return
	}

	// Second pass
	if ost.Pass&PassSecond > 0 {
		if ost.StatsIn, err = ReadPassLog(ost.PassLogFile); err != nil {
			return
		}
	}

	// First pass
	if ost.Pass&PassFirst > 0 {
		if ost.passLog, err = OpenPassLog(ost.PassLogFile); err != nil {
			return
		}
		p.c.AddWithError(ost.passLog.Close)
	}
	return
}

func (p *Pipeline) setupAudioStream(of *OutputFile, g *astioptions.Group, ost *OutputStream) (err error) {
	// Filter
	if err = p.resolveFilter(of, g, ost); err != nil {
		return
	}
	if ost.StreamCopy {
		return
	}

	// Channels
	if v, ok, errResolve := astioptions.ResolveInt(g.Opts("ac"), of, ost); errResolve != nil {
		return configurationError("resolving ac failed: %w", errResolve)
	} else if ok {
		ost.Channels = v
	}

	// Sample format
	if v, ok, errResolve := astioptions.ResolveString(g.Opts("sample_fmt"), of, ost); errResolve != nil {
		return configurationError("resolving sample_fmt failed: %w", errResolve)
	} else if ok {
		if !p.o.Codecs.IsSampleFormat(v) {
			return configurationError("invalid sample format '%s'", v)
		}
		ost.SampleFormat = v
	}

	// Sample rate
	if v, ok, errResolve := astioptions.ResolveInt(g.Opts("ar"), of, ost); errResolve != nil {
		return configurationError("resolving ar failed: %w", errResolve)
	} else if ok {
		ost.SampleRate = v
	}
	return
}

func (p *Pipeline) setupSubtitleStream(of *OutputFile, g *astioptions.Group, ost *OutputStream) (err error) {
	if ost.StreamCopy {
		return
	}

	// Frame size
	if v, ok, errResolve := astioptions.ResolveString(g.Opts("s"), of, ost); errResolve != nil {
		return configurationError("resolving s failed: %w", errResolve)
	} else if ok {
		if ost.Width, ost.Height, err = ParseVideoSize(v); err != nil {
			return configurationError("invalid frame size: %s", v)
		}
	}

	// Subtitles are only stream copied at runtime
	return configurationError("subtitle encoding is not supported for output stream #%d:%d, use -c:s copy", of.Index, ost.index)
}

// setOutputFilterConstraints pushes the formats supported by the encoder down to the filter graph
func (p *Pipeline) setOutputFilterConstraints(ost *OutputStream) {
	f := ost.Filter
	switch ost.mediaType {
	case astispecifier.MediaTypeVideo:
		f.FrameRate = ost.FrameRate
		f.Width, f.Height = ost.Width, ost.Height
		if ost.PixelFormat != "" {
			f.PixelFormat = ost.PixelFormat
		} else if !ost.KeepPixelFormat {
			f.PixelFormats = ost.Codec.PixelFormats
		}
	case astispecifier.MediaTypeAudio:
		if ost.SampleFormat != "" {
			f.SampleFormat = ost.SampleFormat
		} else {
			f.SampleFormats = ost.Codec.SampleFormats
		}
		if ost.SampleRate > 0 {
			f.SampleRate = ost.SampleRate
		} else {
			f.SampleRates = ost.Codec.SampleRates
		}
		if ost.Channels > 0 {
			f.ChannelLayout = defaultChannelLayouts[ost.Channels]
		} else {
			f.ChannelLayouts = ost.Codec.ChannelLayouts
		}
	}
}

// checkOverwrite makes sure the output can be written
func (p *Pipeline) checkOverwrite(path string) error {
	// Protocols other than files are not checked
	if i := strings.Index(path, ":"); i > 1 && !strings.HasPrefix(path, "file:") {
		return nil
	}
	path = strings.TrimPrefix(path, "file:")

	// Output can't be an input
	for _, f := range p.inputFiles {
		if strings.TrimPrefix(f.Path, "file:") == path {
			return configurationError("output %s is same as input #%d - exiting", path, f.Index)
		}
	}

	// Existing file, -n winning over -y
	if _, err := os.Stat(path); err == nil {
		if !p.o.Overwrite || p.o.NoOverwrite {
			return configurationError("file '%s' already exists. Exiting", path)
		}
	} else if !os.IsNotExist(err) {
		return resourceError("stating %s failed: %w", path, err)
	}
	return nil
}

func (p *Pipeline) emitStreamMapped(ost *OutputStream) {
	e := astitranscoder.EventStreamMapped{Destination: fmt.Sprintf("#%d:%d", ost.FileIndex, ost.index)}
	switch {
	case ost.Source != nil:
		e.Source = fmt.Sprintf("#%d:%d", ost.Source.FileIndex, ost.Source.Index())
	case ost.Filter != nil:
		e.Source = fmt.Sprintf("%s (graph %d)", ost.Filter.Name, ost.Filter.Graph.Index)
	}
	switch {
	case ost.StreamCopy:
		e.Method = "copy"
	case ost.Source != nil:
		dec := ost.Source.Info.CodecParameters.CodecName
		if ost.Source.DecoderFound {
			dec = ost.Source.Codec.Name
		}
		e.Method = dec + " -> " + ost.Codec.Name
	default:
		e.Method = ost.Codec.Name
	}
	p.emit(astitranscoder.Event{
		Name:    astitranscoder.EventNameStreamMapped,
		Payload: e,
		Target:  ost,
	})
}
