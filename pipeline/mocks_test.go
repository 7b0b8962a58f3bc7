package astipipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	astitranscoder "github.com/asticode/go-astitranscoder"
	astioptions "github.com/asticode/go-astitranscoder/options"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
	"github.com/stretchr/testify/require"
)

// mockedPayload counts payloads that have not been released
type mockedPayload struct {
	live     *int64
	released int32
}

func newMockedPayload(live *int64) *mockedPayload {
	atomic.AddInt64(live, 1)
	return &mockedPayload{live: live}
}

func (p *mockedPayload) Clone() (PacketData, error) { return newMockedPayload(p.live), nil }

func (p *mockedPayload) Release() {
	if atomic.CompareAndSwapInt32(&p.released, 0, 1) {
		atomic.AddInt64(p.live, -1)
	}
}

type mockedFrameData struct{ *mockedPayload }

func (d mockedFrameData) Clone() (FrameData, error) {
	return mockedFrameData{mockedPayload: newMockedPayload(d.live)}, nil
}

type mockedInput struct {
	chapters  []Chapter
	duration  int64
	flags     FormatFlags
	idx       int
	m         *sync.Mutex
	metadata  map[string]string
	packets   []Packet
	programs  []astispecifier.Program
	readErr   error
	sdk       *mockedSDK
	seeks     []int64
	startTime int64
	streams   []StreamInfo
}

func (i *mockedInput) Chapters() []Chapter               { return i.chapters }
func (i *mockedInput) Close() error                      { return nil }
func (i *mockedInput) Duration() int64                   { return i.duration }
func (i *mockedInput) Flags() FormatFlags                { return i.flags }
func (i *mockedInput) FormatName() string                { return "mocked" }
func (i *mockedInput) Metadata() map[string]string       { return i.metadata }
func (i *mockedInput) Programs() []astispecifier.Program { return i.programs }
func (i *mockedInput) StartTime() int64                  { return i.startTime }
func (i *mockedInput) Streams() []StreamInfo             { return i.streams }

func (i *mockedInput) ReadPacket(ctx context.Context) (*Packet, error) {
	i.m.Lock()
	defer i.m.Unlock()
	if i.idx >= len(i.packets) {
		if i.readErr != nil {
			return nil, i.readErr
		}
		return nil, io.EOF
	}
	pkt := i.packets[i.idx]
	i.idx++
	pkt.Data = newMockedPayload(&i.sdk.live)
	return &pkt, nil
}

func (i *mockedInput) Seek(ctx context.Context, ts int64) error {
	i.m.Lock()
	defer i.m.Unlock()
	i.seeks = append(i.seeks, ts)
	i.idx = 0
	return nil
}

type mockedOutputStream struct {
	mediaType  astispecifier.MediaType
	parameters OutputStreamParameters
	timeBase   Rational
}

type mockedOutput struct {
	chapters      []Chapter
	format        OutputFormat
	headerErr     error
	headerWritten bool
	metadata      map[string]string
	opened        bool
	packets       []Packet
	path          string
	size          int64
	streams       []*mockedOutputStream
	trailer       bool
}

func (o *mockedOutput) BytesWritten() int64  { return o.size }
func (o *mockedOutput) Close() error         { return nil }
func (o *mockedOutput) Format() OutputFormat { return o.format }

func (o *mockedOutput) NewStream(t astispecifier.MediaType) (int, error) {
	o.streams = append(o.streams, &mockedOutputStream{mediaType: t})
	return len(o.streams) - 1, nil
}

func (o *mockedOutput) Open(options map[string]string) error {
	o.opened = true
	return nil
}

func (o *mockedOutput) SetChapters(cs []Chapter)        { o.chapters = cs }
func (o *mockedOutput) SetMetadata(m map[string]string) { o.metadata = m }

func (o *mockedOutput) SetStreamParameters(index int, p OutputStreamParameters) error {
	o.streams[index].parameters = p
	return nil
}

func (o *mockedOutput) StreamTimeBase(index int) Rational {
	if s := o.streams[index]; s.timeBase.Num > 0 {
		return s.timeBase
	}
	return o.streams[index].parameters.TimeBase
}

func (o *mockedOutput) WriteHeader(options map[string]string) error {
	if o.headerErr != nil {
		return o.headerErr
	}
	o.headerWritten = true
	return nil
}

func (o *mockedOutput) WritePacket(p *Packet) error {
	if !o.headerWritten {
		return errors.New("header not written")
	}
	v := *p
	v.Data = nil
	o.packets = append(o.packets, v)
	o.size += int64(p.Size)
	return nil
}

func (o *mockedOutput) WriteTrailer() error {
	o.trailer = true
	return nil
}

// streamPackets returns the packets written for a stream
func (o *mockedOutput) streamPackets(idx int) (ps []Packet) {
	for _, p := range o.packets {
		if p.StreamIndex == idx {
			ps = append(ps, p)
		}
	}
	return
}

type mockedDecoder struct {
	flushing bool
	frames   []*Frame
	o        DecoderOptions
	sdk      *mockedSDK
}

func (d *mockedDecoder) Close() error { return nil }

func (d *mockedDecoder) SendPacket(p *Packet) error {
	if p == nil {
		d.flushing = true
		return nil
	}
	cp := d.o.Parameters
	f := &Frame{
		Data:     mockedFrameData{mockedPayload: newMockedPayload(&d.sdk.live)},
		Duration: p.Duration,
		PTS:      p.PTS,
		FrameParameters: FrameParameters{
			ChannelLayout: cp.ChannelLayout,
			Channels:      cp.Channels,
			Height:        cp.Height,
			PixelFormat:   cp.PixelFormat,
			SampleFormat:  cp.SampleFormat,
			SampleRate:    cp.SampleRate,
			TimeBase:      d.o.TimeBase,
			Width:         cp.Width,
		},
	}
	if cp.MediaType == astispecifier.MediaTypeAudio {
		f.NbSamples = cp.FrameSize
	}
	d.frames = append(d.frames, f)
	return nil
}

func (d *mockedDecoder) ReceiveFrame() (*Frame, error) {
	if len(d.frames) == 0 {
		if d.flushing {
			return nil, io.EOF
		}
		return nil, ErrAgain
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, nil
}

type mockedEncoder struct {
	flushing bool
	frames   int
	o        EncoderOptions
	packets  []*Packet
	sdk      *mockedSDK
	stats    int
}

func (e *mockedEncoder) Close() error { return nil }

func (e *mockedEncoder) Parameters() CodecParameters {
	return CodecParameters{
		ChannelLayout: e.o.Input.ChannelLayout,
		Channels:      e.o.Input.Channels,
		CodecName:     e.o.Codec.CodecName,
		Height:        e.o.Input.Height,
		MediaType:     e.o.MediaType,
		PixelFormat:   e.o.Input.PixelFormat,
		SampleFormat:  e.o.Input.SampleFormat,
		SampleRate:    e.o.Input.SampleRate,
		Width:         e.o.Input.Width,
	}
}

func (e *mockedEncoder) SendFrame(f *Frame) error {
	if f == nil {
		e.flushing = true
		return nil
	}
	if e.flushing {
		return io.EOF
	}
	d := int64(1)
	if e.o.MediaType == astispecifier.MediaTypeAudio {
		d = int64(f.NbSamples)
	}
	e.packets = append(e.packets, &Packet{
		Data:     newMockedPayload(&e.sdk.live),
		DTS:      f.PTS,
		Duration: d,
		Key:      f.Key || e.frames == 0,
		PTS:      f.PTS,
		Size:     100,
	})
	e.frames++
	return nil
}

func (e *mockedEncoder) ReceivePacket() (*Packet, error) {
	if len(e.packets) == 0 {
		if e.flushing {
			return nil, io.EOF
		}
		return nil, ErrAgain
	}
	p := e.packets[0]
	e.packets = e.packets[1:]
	return p, nil
}

func (e *mockedEncoder) StatsOut() string {
	e.stats++
	return "frame " + strconv.Itoa(e.stats) + "\n"
}

type mockedGraph struct {
	closed  bool
	eofs    []bool
	o       FilterGraphOptions
	outputs [][]*Frame
}

func (g *mockedGraph) Close() error {
	g.closed = true
	for _, fs := range g.outputs {
		for _, f := range fs {
			f.Release()
		}
	}
	return nil
}

func (g *mockedGraph) OutputParameters(output int) FrameParameters {
	if len(g.o.Inputs) == 0 {
		return FrameParameters{}
	}
	i := output
	if i >= len(g.o.Inputs) {
		i = len(g.o.Inputs) - 1
	}
	return g.o.Inputs[i].FrameParameters
}

// Push routes input i to output i, extra inputs being routed to the last output
func (g *mockedGraph) Push(input int, f *Frame) error {
	if f == nil {
		g.eofs[input] = true
		return nil
	}
	c, err := f.Clone()
	if err != nil {
		return err
	}
	o := input
	if o >= len(g.outputs) {
		o = len(g.outputs) - 1
	}
	g.outputs[o] = append(g.outputs[o], c)
	return nil
}

func (g *mockedGraph) Pull(output int) (*Frame, error) {
	if len(g.outputs[output]) > 0 {
		f := g.outputs[output][0]
		g.outputs[output] = g.outputs[output][1:]
		return f, nil
	}
	for _, eof := range g.eofs {
		if !eof {
			return nil, ErrAgain
		}
	}
	return nil, io.EOF
}

type mockedHardwareAccelerator struct {
	err   error
	inits []string
	name  string
}

type mockedHardwareDevice struct{}

func (mockedHardwareDevice) Close() error { return nil }

func (a *mockedHardwareAccelerator) Init(device string) (HardwareDevice, error) {
	a.inits = append(a.inits, device)
	if a.err != nil {
		return nil, a.err
	}
	return mockedHardwareDevice{}, nil
}

func (a *mockedHardwareAccelerator) Name() string        { return a.name }
func (a *mockedHardwareAccelerator) PixelFormat() string { return a.name }

var mockedFilters = map[string]FilterInfo{
	"aformat":  {Inputs: []astispecifier.MediaType{astispecifier.MediaTypeAudio}, Outputs: []astispecifier.MediaType{astispecifier.MediaTypeAudio}},
	"amerge":   {Inputs: []astispecifier.MediaType{astispecifier.MediaTypeAudio, astispecifier.MediaTypeAudio}, Outputs: []astispecifier.MediaType{astispecifier.MediaTypeAudio}},
	"anull":    {Inputs: []astispecifier.MediaType{astispecifier.MediaTypeAudio}, Outputs: []astispecifier.MediaType{astispecifier.MediaTypeAudio}},
	"asplit":   {Inputs: []astispecifier.MediaType{astispecifier.MediaTypeAudio}, Outputs: []astispecifier.MediaType{astispecifier.MediaTypeAudio, astispecifier.MediaTypeAudio}},
	"format":   {Inputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}, Outputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}},
	"null":     {Inputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}, Outputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}},
	"overlay":  {Inputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo, astispecifier.MediaTypeVideo}, Outputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}},
	"scale":    {Inputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}, Outputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}},
	"showinfo": {Inputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}, Outputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}},
	"split":    {Inputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}, Outputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo, astispecifier.MediaTypeVideo}},
	"testsrc":  {Outputs: []astispecifier.MediaType{astispecifier.MediaTypeVideo}},
}

var mockedDescriptors = map[string]Descriptor{
	"aac":          {MediaType: astispecifier.MediaTypeAudio, Name: "aac"},
	"dvb_teletext": {MediaType: astispecifier.MediaTypeSubtitle, Name: "dvb_teletext", NoProperties: true},
	"dvd_subtitle": {BitmapSubtitle: true, MediaType: astispecifier.MediaTypeSubtitle, Name: "dvd_subtitle"},
	"eia_608":      {MediaType: astispecifier.MediaTypeSubtitle, Name: "eia_608"},
	"h264":         {MediaType: astispecifier.MediaTypeVideo, Name: "h264"},
	"mpeg4":        {MediaType: astispecifier.MediaTypeVideo, Name: "mpeg4"},
	"subrip":       {MediaType: astispecifier.MediaTypeSubtitle, Name: "subrip", TextSubtitle: true},
	"timed_id3":    {MediaType: astispecifier.MediaTypeData, Name: "timed_id3", NoProperties: true},
}

var mockedEncoders = map[string]Codec{
	"aac":     {CodecName: "aac", MediaType: astispecifier.MediaTypeAudio, Name: "aac", SampleFormats: []string{"fltp"}},
	"libx264": {CodecName: "h264", MediaType: astispecifier.MediaTypeVideo, Name: "libx264", PixelFormats: []string{"yuv420p"}, PrivateOptions: []string{"preset", "stats"}},
	"mpeg4":   {CodecName: "mpeg4", MediaType: astispecifier.MediaTypeVideo, Name: "mpeg4", PixelFormats: []string{"yuv420p"}},
	"srt":     {CodecName: "subrip", MediaType: astispecifier.MediaTypeSubtitle, Name: "srt"},
}

var mockedCodecOptions = map[string]astioptions.CodecOptionInfo{
	"b":     {Audio: true, Encoding: true, Video: true},
	"flags": {Audio: true, Decoding: true, Encoding: true, Subtitle: true, Video: true},
	"g":     {Encoding: true, Video: true},
}

// mockedSDK implements every backend interface in memory
type mockedSDK struct {
	graphs   []*mockedGraph
	decoders []*mockedDecoder
	encoders []*mockedEncoder
	inputs   map[string]*mockedInput
	live     int64
	outputs  map[string]*mockedOutput
}

func newMockedSDK() *mockedSDK {
	return &mockedSDK{
		inputs:  make(map[string]*mockedInput),
		outputs: make(map[string]*mockedOutput),
	}
}

func (s *mockedSDK) addInput(path string, streams []StreamInfo, packets []Packet) *mockedInput {
	for idx := range streams {
		streams[idx].Index = idx
	}
	i := &mockedInput{
		m:         &sync.Mutex{},
		packets:   packets,
		sdk:       s,
		startTime: NoPTS,
		streams:   streams,
	}
	s.inputs[path] = i
	return i
}

func (s *mockedSDK) FormatExists(name string) bool { return name == "mocked" || name == "rawvideo" }

func (s *mockedSDK) FormatHasOption(format, option string) bool {
	return format == "rawvideo" && (option == "video_size" || option == "pixel_format" || option == "framerate")
}

func (s *mockedSDK) OpenInput(ctx context.Context, path, format string, options map[string]string) (InputContainer, error) {
	i, ok := s.inputs[path]
	if !ok {
		return nil, fmt.Errorf("%s: no such file or directory", path)
	}
	return i, nil
}

func (s *mockedSDK) CreateOutput(ctx context.Context, path, format string) (OutputContainer, error) {
	o := &mockedOutput{path: path}
	switch {
	case format == "null":
		o.format = OutputFormat{Flags: FormatFlags{NoFile: true, NoTimestamps: true, VariableFPS: true}, Name: "null", VideoCodec: "mpeg4", AudioCodec: "aac"}
	case format == "ffmetadata":
		o.format = OutputFormat{Flags: FormatFlags{NoStreams: true}, Name: "ffmetadata"}
	case strings.HasSuffix(path, ".mkv"):
		o.format = OutputFormat{AudioCodec: "aac", Name: "matroska", SubtitleCodec: "subrip", VideoCodec: "h264"}
	case strings.HasSuffix(path, ".mp4"):
		o.format = OutputFormat{AudioCodec: "aac", Flags: FormatFlags{GlobalHeader: true}, Name: "mp4", VideoCodec: "mpeg4"}
	case strings.HasSuffix(path, ".ts"):
		o.format = OutputFormat{AudioCodec: "aac", DataCodec: "timed_id3", Name: "mpegts", VideoCodec: "mpeg4"}
	case strings.HasSuffix(path, ".mp3"):
		o.format = OutputFormat{AudioCodec: "aac", Name: "mp3", SupportsAttachedPic: true, VideoCodec: "mpeg4"}
	default:
		return nil, fmt.Errorf("unable to find a suitable output format for '%s'", path)
	}
	o.format.Flags.NoFile = true
	s.outputs[path] = o
	return o, nil
}

func (s *mockedSDK) IsCodecOption(name string) bool {
	_, ok := mockedCodecOptions[name]
	return ok || name == "preset" || name == "stats"
}

func (s *mockedSDK) IsFormatOption(name string) bool { return name == "movflags" }

func (s *mockedSDK) CodecOption(name string) (astioptions.CodecOptionInfo, bool) {
	i, ok := mockedCodecOptions[name]
	return i, ok
}

func (s *mockedSDK) BitstreamFilterExists(name string) bool { return name == "h264_mp4toannexb" }

func (s *mockedSDK) DescriptorByName(name string) (Descriptor, bool) {
	d, ok := mockedDescriptors[name]
	return d, ok
}

func (s *mockedSDK) FindDecoder(codecName string) (Codec, bool) {
	d, ok := mockedDescriptors[codecName]
	if !ok {
		return Codec{}, false
	}
	return Codec{CodecName: d.Name, MediaType: d.MediaType, Name: d.Name}, true
}

func (s *mockedSDK) FindDecoderByName(name string) (Codec, bool) { return s.FindDecoder(name) }

func (s *mockedSDK) FindEncoder(codecName string) (Codec, bool) {
	for _, n := range []string{"libx264", "mpeg4", "aac", "srt"} {
		if c := mockedEncoders[n]; c.CodecName == codecName {
			return c, true
		}
	}
	return Codec{}, false
}

func (s *mockedSDK) FindEncoderByName(name string) (Codec, bool) {
	c, ok := mockedEncoders[name]
	return c, ok
}

func (s *mockedSDK) IsPixelFormat(name string) bool  { return name == "yuv420p" || name == "nv12" }
func (s *mockedSDK) IsSampleFormat(name string) bool { return name == "fltp" || name == "s16" }

func (s *mockedSDK) NewDecoder(o DecoderOptions) (Decoder, error) {
	d := &mockedDecoder{o: o, sdk: s}
	s.decoders = append(s.decoders, d)
	return d, nil
}

func (s *mockedSDK) NewEncoder(o EncoderOptions) (Encoder, error) {
	e := &mockedEncoder{o: o, sdk: s}
	s.encoders = append(s.encoders, e)
	return e, nil
}

func (s *mockedSDK) FilterInfo(name, args string) (FilterInfo, bool) {
	i, ok := mockedFilters[name]
	return i, ok
}

func (s *mockedSDK) NewFilterGraph(o FilterGraphOptions) (FilterGraphInstance, error) {
	g := &mockedGraph{
		eofs:    make([]bool, len(o.Inputs)),
		o:       o,
		outputs: make([][]*Frame, len(o.Outputs)),
	}
	s.graphs = append(s.graphs, g)
	return g, nil
}

// mockedEvents records events
type mockedEvents struct {
	es []astitranscoder.Event
	m  *sync.Mutex
}

func newMockedEvents(h *astitranscoder.EventHandler) *mockedEvents {
	e := &mockedEvents{m: &sync.Mutex{}}
	h.AddForAll(func(evt astitranscoder.Event) bool {
		e.m.Lock()
		defer e.m.Unlock()
		e.es = append(e.es, evt)
		return false
	})
	return e
}

func (e *mockedEvents) byName(n astitranscoder.EventName) (es []astitranscoder.Event) {
	e.m.Lock()
	defer e.m.Unlock()
	for _, v := range e.es {
		if v.Name == n {
			es = append(es, v)
		}
	}
	return
}

func (e *mockedEvents) messages(n astitranscoder.EventName) (ms []string) {
	for _, v := range e.byName(n) {
		switch p := v.Payload.(type) {
		case error:
			ms = append(ms, p.Error())
		case string:
			ms = append(ms, p)
		}
	}
	return
}

// newMockedPipeline creates a pipeline backed by the mocked SDK
func newMockedPipeline(t *testing.T, s *mockedSDK) (*Pipeline, *mockedEvents) {
	h := astitranscoder.NewEventHandler()
	p := New(Options{
		Codecs:       s,
		Decoders:     s,
		Demuxer:      s,
		Encoders:     s,
		EventHandler: h,
		Filters:      s,
		Muxer:        s,
		PresetDirs:   []string{},
	})
	t.Cleanup(func() { p.Close() })
	return p, newMockedEvents(h)
}

// configure parses the command line and configures the pipeline
func configure(t *testing.T, p *Pipeline, s *mockedSDK, args ...string) error {
	a, err := astioptions.ParseArgs(args, s)
	require.NoError(t, err)
	return p.Configure(context.Background(), a)
}

// Media helpers
var (
	videoTimeBase = Rational{Num: 1, Den: 90000}
	audioTimeBase = Rational{Num: 1, Den: 48000}
)

func videoStream(codec string) StreamInfo {
	return StreamInfo{
		AvgFrameRate:    Rational{Num: 25, Den: 1},
		CodecInfoFrames: 1,
		CodecParameters: CodecParameters{
			CodecName:   codec,
			Height:      720,
			MediaType:   astispecifier.MediaTypeVideo,
			PixelFormat: "yuv420p",
			Width:       1280,
		},
		Metadata: map[string]string{},
		TimeBase: videoTimeBase,
	}
}

func audioStream(codec string, channels int) StreamInfo {
	return StreamInfo{
		CodecInfoFrames: 1,
		CodecParameters: CodecParameters{
			Channels:     channels,
			CodecName:    codec,
			FrameSize:    1024,
			MediaType:    astispecifier.MediaTypeAudio,
			SampleFormat: "fltp",
			SampleRate:   48000,
		},
		Metadata: map[string]string{},
		TimeBase: audioTimeBase,
	}
}

func subtitleStream(codec string) StreamInfo {
	return StreamInfo{
		CodecParameters: CodecParameters{
			CodecName: codec,
			MediaType: astispecifier.MediaTypeSubtitle,
		},
		Metadata: map[string]string{},
		TimeBase: Rational{Num: 1, Den: 1000},
	}
}

// videoPackets returns n key frame packets at 25 fps in videoTimeBase
func videoPackets(streamIndex, n int) (ps []Packet) {
	for i := 0; i < n; i++ {
		ts := int64(i * 3600)
		ps = append(ps, Packet{DTS: ts, Duration: 3600, Key: true, PTS: ts, Size: 1000, StreamIndex: streamIndex})
	}
	return
}

// audioPackets returns n packets of 1024 samples in audioTimeBase
func audioPackets(streamIndex, n int) (ps []Packet) {
	for i := 0; i < n; i++ {
		ts := int64(i * 1024)
		ps = append(ps, Packet{DTS: ts, Duration: 1024, Key: true, PTS: ts, Size: 200, StreamIndex: streamIndex})
	}
	return
}

// interleave merges packets lists
func interleave(ls ...[]Packet) (ps []Packet) {
	for i := 0; ; i++ {
		added := false
		for _, l := range ls {
			if i < len(l) {
				ps = append(ps, l[i])
				added = true
			}
		}
		if !added {
			return
		}
	}
}
