package astilibav

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

type inputContainer struct {
	fc   *astiav.FormatContext
	ii   *astiav.IOInterrupter
	path string
	s    *SDK
	ss   []astipipeline.StreamInfo
}

// OpenInput implements the astipipeline.Demuxer interface
func (s *SDK) OpenInput(ctx context.Context, path, format string, options map[string]string) (_ astipipeline.InputContainer, err error) {
	// Create input
	i := &inputContainer{
		ii:   astiav.NewIOInterrupter(),
		path: path,
		s:    s,
	}

	// Make sure the input is closed on error
	defer func() {
		if err != nil {
			i.Close()
		}
	}()

	// Find format
	var f *astiav.InputFormat
	if format != "" {
		if f = astiav.FindInputFormat(format); f == nil {
			err = fmt.Errorf("astilibav: unknown input format %s", format)
			return
		}
	}

	// Create dictionary
	var d *dictionary
	if d, err = newDictionary(options); err != nil {
		err = fmt.Errorf("astilibav: creating dictionary failed: %w", err)
		return
	}
	defer d.free()

	// Alloc format context
	if i.fc = astiav.AllocFormatContext(); i.fc == nil {
		err = fmt.Errorf("astilibav: allocating format context failed")
		return
	}
	i.fc.SetIOInterrupter(i.ii)

	// Handle probe cancellation
	stop := context.AfterFunc(ctx, i.ii.Interrupt)
	defer stop()

	// Open input
	if err = i.fc.OpenInput(path, f, d.d); err != nil {
		// Format context is freed by libav when opening fails
		i.fc = nil
		err = fmt.Errorf("astilibav: opening input %s failed: %w", path, err)
		return
	}

	// Unused options
	if ks := d.unused(); len(ks) > 0 {
		s.warn(nil, "%s: options not found: %s", path, strings.Join(ks, ", "))
	}

	// Find stream info
	if err = i.fc.FindStreamInfo(nil); err != nil {
		err = fmt.Errorf("astilibav: finding stream info of %s failed: %w", path, err)
		return
	}

	// Loop through streams
	for _, st := range i.fc.Streams() {
		i.ss = append(i.ss, i.streamInfo(st))
	}
	return i, nil
}

func (i *inputContainer) streamInfo(st *astiav.Stream) (o astipipeline.StreamInfo) {
	cp := st.CodecParameters()
	o = astipipeline.StreamInfo{
		AvgFrameRate:      rationalFromLibav(st.AvgFrameRate()),
		CodecParameters:   codecParametersFromLibav(cp),
		Dispositions:      dispositionsFromLibav(st.DispositionFlags()),
		Duration:          timestampFromLibav(st.Duration()),
		ID:                st.ID(),
		Index:             st.Index(),
		Metadata:          dictionaryToMap(st.Metadata()),
		RealFrameRate:     rationalFromLibav(st.RFrameRate()),
		SampleAspectRatio: rationalFromLibav(st.SampleAspectRatio()),
		StartTime:         timestampFromLibav(st.StartTime()),
		TimeBase:          rationalFromLibav(st.TimeBase()),
	}
	if o.CodecParameters.Usable() {
		o.CodecInfoFrames = 1
	}
	if o.CodecParameters.MediaType == astispecifier.MediaTypeVideo {
		if r := i.fc.GuessFrameRate(st, nil); r.Num() > 0 && r.Den() > 0 {
			o.RealFrameRate = rationalFromLibav(r)
		}
	}
	return
}

func codecParametersFromLibav(cp *astiav.CodecParameters) (o astipipeline.CodecParameters) {
	o = astipipeline.CodecParameters{
		BitRate:   cp.BitRate(),
		CodecName: cp.CodecID().Name(),
		CodecTag:  uint32(cp.CodecTag()),
		MediaType: mediaTypeFromLibav(cp.MediaType()),
		Opaque:    cp,
	}
	switch o.MediaType {
	case astispecifier.MediaTypeVideo:
		o.Height = cp.Height()
		o.PixelFormat = pixelFormatName(cp.PixelFormat())
		o.Width = cp.Width()
	case astispecifier.MediaTypeAudio:
		o.ChannelLayout = channelLayoutName(cp.ChannelLayout())
		o.Channels = cp.ChannelLayout().NbChannels()
		o.FrameSize = cp.FrameSize()
		o.SampleFormat = sampleFormatName(cp.SampleFormat())
		o.SampleRate = cp.SampleRate()
	case astispecifier.MediaTypeSubtitle:
		o.Height = cp.Height()
		o.Width = cp.Width()
	}
	return
}

// Chapters implements the astipipeline.InputContainer interface. Chapters are not exposed by the bindings.
func (i *inputContainer) Chapters() []astipipeline.Chapter { return nil }

// Programs implements the astipipeline.InputContainer interface. Programs are not exposed by the bindings.
func (i *inputContainer) Programs() []astispecifier.Program { return nil }

// Close implements the astipipeline.InputContainer interface
func (i *inputContainer) Close() error {
	if i.fc != nil {
		i.fc.CloseInput()
		i.fc.Free()
		i.fc = nil
	}
	if i.ii != nil {
		i.ii.Free()
		i.ii = nil
	}
	return nil
}

// Duration implements the astipipeline.InputContainer interface
func (i *inputContainer) Duration() int64 { return timestampFromLibav(i.fc.Duration()) }

// Flags implements the astipipeline.InputContainer interface
func (i *inputContainer) Flags() astipipeline.FormatFlags {
	return formatFlagsFromLibav(i.fc.InputFormat().Flags())
}

// FormatName implements the astipipeline.InputContainer interface
func (i *inputContainer) FormatName() string { return i.fc.InputFormat().Name() }

// Metadata implements the astipipeline.InputContainer interface
func (i *inputContainer) Metadata() map[string]string { return dictionaryToMap(i.fc.Metadata()) }

// ReadPacket implements the astipipeline.InputContainer interface
func (i *inputContainer) ReadPacket(ctx context.Context) (p *astipipeline.Packet, err error) {
	// Handle cancellation
	stop := context.AfterFunc(ctx, i.ii.Interrupt)
	defer stop()

	// Read
	pkt := i.s.pp.get()
	if err = i.fc.ReadFrame(pkt); err != nil {
		i.s.pp.put(pkt)
		if ctx.Err() != nil {
			err = ctx.Err()
		} else if err = convertError(err); err != io.EOF {
			err = fmt.Errorf("astilibav: reading frame failed: %w", err)
		}
		return
	}
	p = i.s.pp.newPacket(pkt)
	return
}

// Seek implements the astipipeline.InputContainer interface
func (i *inputContainer) Seek(ctx context.Context, ts int64) error {
	// Handle cancellation
	stop := context.AfterFunc(ctx, i.ii.Interrupt)
	defer stop()

	// Seek
	if err := i.fc.SeekFrame(-1, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("astilibav: seeking to %d failed: %w", ts, err)
	}
	return nil
}

// StartTime implements the astipipeline.InputContainer interface
func (i *inputContainer) StartTime() int64 { return timestampFromLibav(i.fc.StartTime()) }

// Streams implements the astipipeline.InputContainer interface
func (i *inputContainer) Streams() []astipipeline.StreamInfo { return i.ss }
