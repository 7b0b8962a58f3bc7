package astilibav

import (
	"fmt"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

type decoder struct {
	cc            *astiav.CodecContext
	frameRate     astiav.Rational
	hwPixelFormat astiav.PixelFormat
	hwTransfer    bool
	mediaType     astispecifier.MediaType
	s             *SDK
	timeBase      astiav.Rational
}

// NewDecoder implements the astipipeline.DecoderFactory interface
func (s *SDK) NewDecoder(o astipipeline.DecoderOptions) (_ astipipeline.Decoder, err error) {
	// Find codec
	c := astiav.FindDecoderByName(o.Codec.Name)
	if c == nil {
		err = fmt.Errorf("astilibav: unknown decoder %s", o.Codec.Name)
		return
	}

	// Create decoder
	d := &decoder{
		frameRate:     rationalToLibav(o.FrameRate),
		hwPixelFormat: astiav.PixelFormatNone,
		mediaType:     o.Parameters.MediaType,
		s:             s,
		timeBase:      rationalToLibav(o.TimeBase),
	}

	// Alloc codec context
	if d.cc = astiav.AllocCodecContext(c); d.cc == nil {
		err = fmt.Errorf("astilibav: allocating codec context of %s failed", c.Name())
		return
	}

	// Make sure the decoder is closed on error
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	// Codec parameters
	if err = withLibavCodecParameters(o.Parameters, func(cp *astiav.CodecParameters) error {
		return cp.ToCodecContext(d.cc)
	}); err != nil {
		err = fmt.Errorf("astilibav: setting codec parameters failed: %w", err)
		return
	}

	// Timing
	d.cc.SetTimeBase(d.timeBase)
	if o.Parameters.MediaType == astispecifier.MediaTypeVideo && o.FrameRate.Num > 0 && o.FrameRate.Den > 0 {
		d.cc.SetFramerate(d.frameRate)
	}

	// Hardware
	if v, ok := o.HardwareDevice.(*hardwareDevice); ok {
		if err = d.initHardware(c, v, o.HardwareOutputPixelFormat); err != nil {
			err = fmt.Errorf("astilibav: initializing hardware decoding failed: %w", err)
			return
		}
	}

	// Open
	if err = s.openCodecContext(d.cc, c, o.Options); err != nil {
		return
	}
	return d, nil
}

func (d *decoder) initHardware(c *astiav.Codec, v *hardwareDevice, outputPixelFormat string) error {
	// Find pixel format
	for _, cfg := range c.HardwareConfigs() {
		if cfg.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) && cfg.HardwareDeviceType() == v.t {
			d.hwPixelFormat = cfg.PixelFormat()
			break
		}
	}
	if d.hwPixelFormat == astiav.PixelFormatNone {
		return fmt.Errorf("astilibav: decoder %s doesn't support device type %s", c.Name(), v.t)
	}

	// Frames are transferred to system memory unless the hardware format is requested
	d.hwTransfer = outputPixelFormat != pixelFormatName(d.hwPixelFormat)

	// Update codec context
	d.cc.SetHardwareDeviceContext(v.ctx)
	d.cc.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
		for _, pf := range pfs {
			if pf == d.hwPixelFormat {
				return pf
			}
		}
		return astiav.PixelFormatNone
	})
	return nil
}

// Close implements the astipipeline.Decoder interface
func (d *decoder) Close() error {
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	return nil
}

// SendPacket implements the astipipeline.Decoder interface
func (d *decoder) SendPacket(p *astipipeline.Packet) (err error) {
	// Get packet
	var pkt *astiav.Packet
	if p != nil {
		if pkt, err = libavPacket(p); err != nil {
			return
		}
	}

	// Send
	if err = d.cc.SendPacket(pkt); err != nil {
		err = convertError(err)
		return
	}
	return
}

// ReceiveFrame implements the astipipeline.Decoder interface
func (d *decoder) ReceiveFrame() (_ *astipipeline.Frame, err error) {
	// Receive
	f := d.s.fp.get()
	if err = d.cc.ReceiveFrame(f); err != nil {
		d.s.fp.put(f)
		err = convertError(err)
		return
	}

	// Software frame
	if !d.hwTransfer || f.PixelFormat() != d.hwPixelFormat {
		return d.s.fp.newFrame(f, d.mediaType, d.timeBase, d.frameRate), nil
	}

	// Transfer hardware data
	defer d.s.fp.put(f)
	sw := d.s.fp.get()
	if err = f.TransferHardwareData(sw); err != nil {
		d.s.fp.put(sw)
		err = fmt.Errorf("astilibav: transferring hardware data failed: %w", err)
		return
	}
	sw.SetPts(f.Pts())
	sw.SetSampleAspectRatio(f.SampleAspectRatio())
	o := d.s.fp.newFrame(sw, d.mediaType, d.timeBase, d.frameRate)
	if o.PTS == astipipeline.NoPTS {
		o.PTS = timestampFromLibav(f.PktDts())
	}
	return o, nil
}

// withLibavCodecParameters calls fn with the backend representation of codec parameters
func withLibavCodecParameters(p astipipeline.CodecParameters, fn func(cp *astiav.CodecParameters) error) error {
	// Backend parameters
	if cp, ok := p.Opaque.(*astiav.CodecParameters); ok {
		return fn(cp)
	}

	// Build parameters
	cp := astiav.AllocCodecParameters()
	defer cp.Free()
	if err := codecParametersToLibav(p, cp); err != nil {
		return err
	}
	return fn(cp)
}
