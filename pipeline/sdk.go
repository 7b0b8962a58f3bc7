package astipipeline

import (
	"context"
	"errors"

	astioptions "github.com/asticode/go-astitranscoder/options"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// ErrAgain is returned by decoders, encoders and filter graphs when they need more input
var ErrAgain = errors.New("astipipeline: resource temporarily unavailable")

// End of stream is signaled with io.EOF

// CodecParameters describes an elementary stream
type CodecParameters struct {
	BitRate       int64
	ChannelLayout string
	Channels      int
	CodecName     string
	CodecTag      uint32
	FrameSize     int
	Height        int
	MediaType     astispecifier.MediaType
	PixelFormat   string
	SampleFormat  string
	SampleRate    int
	VideoDelay    int
	Width         int
	// Backend representation, used when parameters are copied as is
	Opaque interface{}
}

// Usable returns whether the parameters are complete enough to process the stream
func (p CodecParameters) Usable() bool {
	if p.CodecName == "" {
		return false
	}
	switch p.MediaType {
	case astispecifier.MediaTypeVideo:
		return p.Width > 0 && p.Height > 0 && p.PixelFormat != ""
	case astispecifier.MediaTypeAudio:
		return p.SampleRate > 0 && p.Channels > 0 && p.SampleFormat != ""
	}
	return true
}

// Disposition flags
const (
	DispositionAttachedPic = "attached_pic"
	DispositionDefault     = "default"
)

// StreamInfo describes a demuxed stream
type StreamInfo struct {
	AvgFrameRate      Rational
	CodecInfoFrames   int
	CodecParameters   CodecParameters
	Dispositions      []string
	Duration          int64
	ID                int
	Index             int
	Metadata          map[string]string
	RealFrameRate     Rational
	SampleAspectRatio Rational
	StartTime         int64
	TimeBase          Rational
}

// HasDisposition checks whether the stream has a disposition flag
func (i StreamInfo) HasDisposition(d string) bool {
	for _, v := range i.Dispositions {
		if v == d {
			return true
		}
	}
	return false
}

// Chapter represents a chapter
type Chapter struct {
	End      int64
	ID       int64
	Metadata map[string]string
	Start    int64
	TimeBase Rational
}

// FormatFlags represents container format flags
type FormatFlags struct {
	GlobalHeader bool
	NeedNumber   bool
	NoFile       bool
	NoStreams    bool
	NoTimestamps bool
	SeekToPTS    bool
	TSNonStrict  bool
	VariableFPS  bool
}

// OutputFormat describes a muxer
type OutputFormat struct {
	AudioCodec string
	DataCodec  string
	Flags      FormatFlags
	Name       string
	// Whether the muxer stores attached pictures in video streams of its default video codec
	SupportsAttachedPic bool
	SubtitleCodec       string
	VideoCodec          string
}

// DefaultCodec returns the codec guessed by the muxer for a media type
func (f OutputFormat) DefaultCodec(t astispecifier.MediaType) string {
	switch t {
	case astispecifier.MediaTypeVideo:
		return f.VideoCodec
	case astispecifier.MediaTypeAudio:
		return f.AudioCodec
	case astispecifier.MediaTypeSubtitle:
		return f.SubtitleCodec
	case astispecifier.MediaTypeData:
		return f.DataCodec
	}
	return ""
}

// PacketData is the backend payload of a packet
type PacketData interface {
	Clone() (PacketData, error)
	Release()
}

// Packet represents an encoded packet
type Packet struct {
	Data        PacketData
	DTS         int64
	Duration    int64
	Key         bool
	PTS         int64
	Size        int
	StreamIndex int
}

// Clone returns a packet referencing the same payload
func (p *Packet) Clone() (c *Packet, err error) {
	v := *p
	c = &v
	if p.Data != nil {
		if c.Data, err = p.Data.Clone(); err != nil {
			return nil, err
		}
	}
	return
}

// Release releases the payload
func (p *Packet) Release() {
	if p.Data != nil {
		p.Data.Release()
	}
}

// FrameData is the backend payload of a frame
type FrameData interface {
	Clone() (FrameData, error)
	Release()
}

// Frame represents a decoded or filtered frame. PTS and Duration are expressed in TimeBase.
type Frame struct {
	Data     FrameData
	Duration int64
	// Key forces the encoder to output a key frame
	Key       bool
	MediaType astispecifier.MediaType
	PTS       int64
	FrameParameters
}

// Clone returns a frame referencing the same payload
func (f *Frame) Clone() (c *Frame, err error) {
	v := *f
	c = &v
	if f.Data != nil {
		if c.Data, err = f.Data.Clone(); err != nil {
			return nil, err
		}
	}
	return
}

// Release releases the payload
func (f *Frame) Release() {
	if f.Data != nil {
		f.Data.Release()
	}
}

// FrameParameters describes raw frames
type FrameParameters struct {
	ChannelLayout     string
	Channels          int
	FrameRate         Rational
	Height            int
	NbSamples         int
	PixelFormat       string
	SampleAspectRatio Rational
	SampleFormat      string
	SampleRate        int
	TimeBase          Rational
	Width             int
}

// Demuxer opens input containers
type Demuxer interface {
	FormatExists(name string) bool
	FormatHasOption(format, option string) bool
	OpenInput(ctx context.Context, path, format string, options map[string]string) (InputContainer, error)
}

// InputContainer is an opened and probed input. StartTime and Duration are expressed in TimeBaseQ.
type InputContainer interface {
	Chapters() []Chapter
	Close() error
	Duration() int64
	Flags() FormatFlags
	FormatName() string
	Metadata() map[string]string
	Programs() []astispecifier.Program
	// ReadPacket returns io.EOF at the end of the input
	ReadPacket(ctx context.Context) (*Packet, error)
	// Seek seeks to the closest position before ts, ts being expressed in TimeBaseQ
	Seek(ctx context.Context, ts int64) error
	StartTime() int64
	Streams() []StreamInfo
}

// OutputStreamParameters describes a muxed stream
type OutputStreamParameters struct {
	AvgFrameRate      Rational
	BitstreamFilters  string
	CodecParameters   CodecParameters
	Disposition       string
	Metadata          map[string]string
	SampleAspectRatio Rational
	TimeBase          Rational
}

// Muxer creates output containers
type Muxer interface {
	CreateOutput(ctx context.Context, path, format string) (OutputContainer, error)
}

// OutputContainer is an output being muxed
type OutputContainer interface {
	BytesWritten() int64
	Close() error
	Format() OutputFormat
	NewStream(t astispecifier.MediaType) (index int, err error)
	// Open opens the output file when the format needs one
	Open(options map[string]string) error
	SetChapters(cs []Chapter)
	SetMetadata(m map[string]string)
	SetStreamParameters(index int, p OutputStreamParameters) error
	// StreamTimeBase returns the time base chosen by the muxer once the header has been written
	StreamTimeBase(index int) Rational
	WriteHeader(options map[string]string) error
	WritePacket(p *Packet) error
	WriteTrailer() error
}

// Descriptor describes a codec regardless of its implementations
type Descriptor struct {
	BitmapSubtitle bool
	MediaType      astispecifier.MediaType
	Name           string
	// Whether the codec has no property at all (not even lossy/lossless)
	NoProperties   bool
	TextSubtitle   bool
}

// Codec describes a decoder or an encoder
type Codec struct {
	ChannelLayouts []string
	// Name of the codec descriptor
	CodecName      string
	FrameRates     []Rational
	MediaType      astispecifier.MediaType
	Name           string
	PixelFormats   []string
	PrivateOptions []string
	SampleFormats  []string
	SampleRates    []int
}

// HasPrivateOption checks whether the codec has a private option
func (c Codec) HasPrivateOption(name string) bool {
	for _, o := range c.PrivateOptions {
		if o == name {
			return true
		}
	}
	return false
}

// CodecRegistry looks codecs up
type CodecRegistry interface {
	astioptions.Classifier
	astioptions.CodecOptionFinder
	BitstreamFilterExists(name string) bool
	DescriptorByName(name string) (Descriptor, bool)
	FindDecoder(codecName string) (Codec, bool)
	FindDecoderByName(name string) (Codec, bool)
	FindEncoder(codecName string) (Codec, bool)
	FindEncoderByName(name string) (Codec, bool)
	IsPixelFormat(name string) bool
	IsSampleFormat(name string) bool
}

// DecoderOptions represents decoder options
type DecoderOptions struct {
	Codec                     Codec
	FrameRate                 Rational
	HardwareDevice            HardwareDevice
	HardwareOutputPixelFormat string
	Options                   map[string]string
	Parameters                CodecParameters
	TimeBase                  Rational
}

// DecoderFactory creates decoders
type DecoderFactory interface {
	NewDecoder(o DecoderOptions) (Decoder, error)
}

// Decoder decodes packets. A nil packet flushes the decoder. Frames are expressed in the stream
// time base and carry their best effort timestamp.
type Decoder interface {
	Close() error
	ReceiveFrame() (*Frame, error)
	SendPacket(p *Packet) error
}

// EncoderOptions represents encoder options
type EncoderOptions struct {
	Codec        Codec
	CodecTag     uint32
	FrameRate    Rational
	GlobalHeader bool
	Input        FrameParameters
	MediaType    astispecifier.MediaType
	Options      map[string]string
	// Qscale is negative when unset
	Qscale   float64
	StatsIn  []byte
	TimeBase Rational
}

// EncoderFactory creates encoders
type EncoderFactory interface {
	NewEncoder(o EncoderOptions) (Encoder, error)
}

// Encoder encodes frames. A nil frame flushes the encoder. Packets are expressed in the encoder
// time base.
type Encoder interface {
	Close() error
	Parameters() CodecParameters
	ReceivePacket() (*Packet, error)
	SendFrame(f *Frame) error
}

// StatsEncoder is implemented by encoders exposing first pass statistics
type StatsEncoder interface {
	StatsOut() string
}

// FilterInfo describes a filter pads
type FilterInfo struct {
	Inputs  []astispecifier.MediaType
	Outputs []astispecifier.MediaType
}

// FilterGraphInput describes an input of a filter graph
type FilterGraphInput struct {
	Label     string
	MediaType astispecifier.MediaType
	FrameParameters
}

// FilterGraphOutput describes an output of a filter graph
type FilterGraphOutput struct {
	Label     string
	MediaType astispecifier.MediaType
}

// FilterGraphOptions represents filter graph options. Every open pad of the description is labelled.
type FilterGraphOptions struct {
	Description string
	Inputs      []FilterGraphInput
	Outputs     []FilterGraphOutput
}

// FilterGraphFactory creates filter graphs
type FilterGraphFactory interface {
	FilterInfo(name, args string) (FilterInfo, bool)
	NewFilterGraph(o FilterGraphOptions) (FilterGraphInstance, error)
}

// FilterGraphInstance is a configured filter graph
type FilterGraphInstance interface {
	Close() error
	OutputParameters(output int) FrameParameters
	// Pull returns ErrAgain when the output needs more input and io.EOF once it's done
	Pull(output int) (*Frame, error)
	// Push pushes a frame to an input, a nil frame signals the end of the input
	Push(input int, f *Frame) error
}
