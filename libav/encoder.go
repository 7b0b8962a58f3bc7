package astilibav

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// Lambda of a quantizer
const qp2Lambda = 118

type encoder struct {
	cc        *astiav.CodecContext
	cp        *astiav.CodecParameters
	fifo      *audioFifo
	flushed   bool
	mediaType astispecifier.MediaType
	s         *SDK
	timeBase  astiav.Rational
}

// NewEncoder implements the astipipeline.EncoderFactory interface
func (s *SDK) NewEncoder(o astipipeline.EncoderOptions) (_ astipipeline.Encoder, err error) {
	// Find codec
	c := astiav.FindEncoderByName(o.Codec.Name)
	if c == nil {
		err = fmt.Errorf("astilibav: unknown encoder %s", o.Codec.Name)
		return
	}

	// Create encoder
	e := &encoder{
		mediaType: o.MediaType,
		s:         s,
		timeBase:  rationalToLibav(o.TimeBase),
	}

	// Alloc codec context
	if e.cc = astiav.AllocCodecContext(c); e.cc == nil {
		err = fmt.Errorf("astilibav: allocating codec context of %s failed", c.Name())
		return
	}

	// Make sure the encoder is closed on error
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	// Media type specific
	switch o.MediaType {
	case astispecifier.MediaTypeVideo:
		pf, ok := pixelFormatFromName(o.Input.PixelFormat)
		if !ok {
			err = fmt.Errorf("astilibav: unknown pixel format %s", o.Input.PixelFormat)
			return
		}
		e.cc.SetHeight(o.Input.Height)
		e.cc.SetPixelFormat(pf)
		e.cc.SetSampleAspectRatio(rationalToLibav(o.Input.SampleAspectRatio))
		e.cc.SetWidth(o.Input.Width)
		if o.FrameRate.Num > 0 && o.FrameRate.Den > 0 {
			e.cc.SetFramerate(rationalToLibav(o.FrameRate))
		}
	case astispecifier.MediaTypeAudio:
		sf, ok := sampleFormatFromName(o.Input.SampleFormat)
		if !ok {
			err = fmt.Errorf("astilibav: unknown sample format %s", o.Input.SampleFormat)
			return
		}
		l, ok := channelLayoutFromName(o.Input.ChannelLayout)
		if !ok {
			if l, ok = defaultChannelLayout(o.Input.Channels); !ok {
				err = fmt.Errorf("astilibav: no channel layout for %d channels", o.Input.Channels)
				return
			}
		}
		e.cc.SetChannelLayout(l)
		e.cc.SetSampleFormat(sf)
		e.cc.SetSampleRate(o.Input.SampleRate)
	default:
		err = fmt.Errorf("astilibav: encoding %s streams is not supported", o.MediaType)
		return
	}
	e.cc.SetTimeBase(e.timeBase)

	// Flags
	fs := e.cc.Flags()
	if o.GlobalHeader {
		fs = fs.Add(astiav.CodecContextFlagGlobalHeader)
	}
	if o.Qscale >= 0 {
		fs = fs.Add(astiav.CodecContextFlagQscale)
		e.cc.SetGlobalQuality(int(qp2Lambda * o.Qscale))
	}
	e.cc.SetFlags(fs)
	if o.CodecTag != 0 {
		e.cc.SetCodecTag(astiav.CodecTag(o.CodecTag))
	}

	// Stats
	if len(o.StatsIn) > 0 {
		s.warn(nil, "%s: first pass statistics can't be forwarded to the encoder", c.Name())
	}

	// Open
	if err = s.openCodecContext(e.cc, c, o.Options); err != nil {
		return
	}

	// Codec parameters
	e.cp = astiav.AllocCodecParameters()
	if err = e.cp.FromCodecContext(e.cc); err != nil {
		err = fmt.Errorf("astilibav: getting codec parameters failed: %w", err)
		return
	}

	// Encoders with a fixed frame size need a fifo
	if o.MediaType == astispecifier.MediaTypeAudio && e.cc.FrameSize() > 0 && !c.Capabilities().Has(astiav.CodecCapabilityVariableFrameSize) {
		e.fifo = newAudioFifo(e.cc, s.fp)
	}
	return e, nil
}

// Close implements the astipipeline.Encoder interface
func (e *encoder) Close() error {
	if e.fifo != nil {
		e.fifo.free()
		e.fifo = nil
	}
	if e.cp != nil {
		e.cp.Free()
		e.cp = nil
	}
	if e.cc != nil {
		e.cc.Free()
		e.cc = nil
	}
	return nil
}

// Parameters implements the astipipeline.Encoder interface
func (e *encoder) Parameters() astipipeline.CodecParameters {
	return codecParametersFromLibav(e.cp)
}

// SendFrame implements the astipipeline.Encoder interface
func (e *encoder) SendFrame(f *astipipeline.Frame) (err error) {
	// Fifo
	if e.fifo != nil {
		if f == nil {
			e.flushed = true
		} else if err = e.fifo.write(f); err != nil {
			err = fmt.Errorf("astilibav: writing to audio fifo failed: %w", err)
			return
		}
		return e.pump()
	}

	// Get frame
	var fr *astiav.Frame
	if f != nil {
		if fr, err = libavFrame(f); err != nil {
			return
		}
	}

	// Send
	if err = e.cc.SendFrame(fr); err != nil {
		err = convertError(err)
		return
	}
	return
}

// pump sends buffered samples to the encoder until it needs its output to be received
func (e *encoder) pump() error {
	for {
		// Read from fifo
		fr, err := e.fifo.read(e.flushed)
		if err != nil {
			return fmt.Errorf("astilibav: reading from audio fifo failed: %w", err)
		} else if fr == nil {
			if e.flushed && !e.fifo.eof {
				// Flush the encoder once the fifo is empty
				if err = e.cc.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEagain) {
					return convertError(err)
				} else if err == nil {
					e.fifo.eof = true
				}
			}
			return nil
		}

		// Send
		err = e.cc.SendFrame(fr)
		if errors.Is(err, astiav.ErrEagain) {
			e.fifo.unread(fr)
			return nil
		}
		e.fifo.release(fr)
		if err != nil {
			return convertError(err)
		}
	}
}

// ReceivePacket implements the astipipeline.Encoder interface
func (e *encoder) ReceivePacket() (_ *astipipeline.Packet, err error) {
	pkt := e.s.pp.get()
	for {
		// Receive
		if err = e.cc.ReceivePacket(pkt); err == nil {
			return e.s.pp.newPacket(pkt), nil
		}

		// Buffered samples may be sent now that the encoder output has been drained
		if e.fifo != nil && errors.Is(err, astiav.ErrEagain) && e.fifo.pending(e.flushed) {
			if err = e.pump(); err != nil {
				e.s.pp.put(pkt)
				return
			}
			continue
		}
		e.s.pp.put(pkt)
		err = convertError(err)
		return
	}
}
