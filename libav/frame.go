package astilibav

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// framePool recycles frames. Frames are only freed when the pool is closed.
type framePool struct {
	fs []*astiav.Frame
	m  *sync.Mutex // Locks fs
}

func newFramePool() *framePool {
	return &framePool{m: &sync.Mutex{}}
}

func (p *framePool) get() *astiav.Frame {
	p.m.Lock()
	defer p.m.Unlock()
	if len(p.fs) == 0 {
		return astiav.AllocFrame()
	}
	f := p.fs[len(p.fs)-1]
	p.fs = p.fs[:len(p.fs)-1]
	return f
}

func (p *framePool) put(f *astiav.Frame) {
	f.Unref()
	p.m.Lock()
	defer p.m.Unlock()
	p.fs = append(p.fs, f)
}

func (p *framePool) close() {
	p.m.Lock()
	defer p.m.Unlock()
	for _, f := range p.fs {
		f.Free()
	}
	p.fs = nil
}

type frameData struct {
	f *astiav.Frame
	p *framePool
}

// Clone implements the astipipeline.FrameData interface
func (d *frameData) Clone() (astipipeline.FrameData, error) {
	f := d.p.get()
	if err := f.Ref(d.f); err != nil {
		d.p.put(f)
		return nil, fmt.Errorf("astilibav: referencing frame failed: %w", err)
	}
	return &frameData{
		f: f,
		p: d.p,
	}, nil
}

// Release implements the astipipeline.FrameData interface
func (d *frameData) Release() {
	d.p.put(d.f)
}

// newFrame wraps a backend frame whose timestamps are expressed in tb
func (p *framePool) newFrame(f *astiav.Frame, t astispecifier.MediaType, tb, frameRate astiav.Rational) *astipipeline.Frame {
	pts := f.Pts()
	if pts == astiav.NoPtsValue {
		pts = f.PktDts()
	}
	o := &astipipeline.Frame{
		Data:      &frameData{f: f, p: p},
		MediaType: t,
		PTS:       timestampFromLibav(pts),
	}
	o.FrameParameters = frameParametersFromLibav(f, t, tb, frameRate)
	return o
}

func frameParametersFromLibav(f *astiav.Frame, t astispecifier.MediaType, tb, frameRate astiav.Rational) (p astipipeline.FrameParameters) {
	p.TimeBase = rationalFromLibav(tb)
	switch t {
	case astispecifier.MediaTypeVideo:
		p.FrameRate = rationalFromLibav(frameRate)
		p.Height = f.Height()
		p.PixelFormat = pixelFormatName(f.PixelFormat())
		p.SampleAspectRatio = rationalFromLibav(f.SampleAspectRatio())
		p.Width = f.Width()
	case astispecifier.MediaTypeAudio:
		p.ChannelLayout = channelLayoutName(f.ChannelLayout())
		p.Channels = f.ChannelLayout().NbChannels()
		p.NbSamples = f.NbSamples()
		p.SampleFormat = sampleFormatName(f.SampleFormat())
		p.SampleRate = f.SampleRate()
	}
	return
}

// libavFrame returns the backend frame once the pipeline frame properties have been applied to it
func libavFrame(f *astipipeline.Frame) (o *astiav.Frame, err error) {
	d, ok := f.Data.(*frameData)
	if !ok {
		err = fmt.Errorf("astilibav: frame payload is a %T, not a libav frame", f.Data)
		return
	}
	o = d.f
	o.SetPts(timestampToLibav(f.PTS))
	if f.MediaType == astispecifier.MediaTypeVideo {
		if f.Key {
			o.SetPictureType(astiav.PictureTypeI)
		} else {
			o.SetPictureType(astiav.PictureTypeNone)
		}
	}
	return
}
