package astilibav

import (
	"fmt"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
)

// audioFifo buffers samples so that the encoder receives frames of its frame size, except for the
// last one
type audioFifo struct {
	channelLayout astiav.ChannelLayout
	eof           bool
	f             *astiav.AudioFifo
	fp            *framePool
	frameSize     int
	nextPTS       int64
	sampleFormat  astiav.SampleFormat
	sampleRate    int
	timeBase      astiav.Rational
	unreadFrame   *astiav.Frame
}

func newAudioFifo(cc *astiav.CodecContext, fp *framePool) *audioFifo {
	return &audioFifo{
		channelLayout: cc.ChannelLayout(),
		f:             astiav.AllocAudioFifo(cc.SampleFormat(), cc.ChannelLayout().NbChannels(), cc.FrameSize()),
		fp:            fp,
		frameSize:     cc.FrameSize(),
		sampleFormat:  cc.SampleFormat(),
		sampleRate:    cc.SampleRate(),
		timeBase:      cc.TimeBase(),
	}
}

func (a *audioFifo) free() {
	if a.unreadFrame != nil {
		a.fp.put(a.unreadFrame)
		a.unreadFrame = nil
	}
	a.f.Free()
}

func (a *audioFifo) write(f *astipipeline.Frame) (err error) {
	// Get frame
	var fr *astiav.Frame
	if fr, err = libavFrame(f); err != nil {
		return
	}

	// Buffered samples are timestamped starting from the first frame written to an empty fifo
	if a.f.Size() == 0 && a.unreadFrame == nil && f.PTS != astipipeline.NoPTS {
		a.nextPTS = f.PTS
	}

	// Write
	if _, err = a.f.Write(fr); err != nil {
		err = fmt.Errorf("astilibav: writing frame failed: %w", err)
		return
	}
	return
}

// pending checks whether a frame can be read or the flush has yet to be sent
func (a *audioFifo) pending(flushed bool) bool {
	if a.unreadFrame != nil || a.f.Size() >= a.frameSize {
		return true
	}
	return flushed && (a.f.Size() > 0 || !a.eof)
}

// read returns nil when not enough samples are buffered. Once flushed, remaining samples are read
// in a shorter frame.
func (a *audioFifo) read(flushed bool) (fr *astiav.Frame, err error) {
	// Unread frame
	if a.unreadFrame != nil {
		fr, a.unreadFrame = a.unreadFrame, nil
		return
	}

	// Get number of samples
	n := a.frameSize
	if s := a.f.Size(); s < n {
		if !flushed || s == 0 {
			return
		}
		n = s
	}

	// Alloc frame
	fr = a.fp.get()
	fr.SetChannelLayout(a.channelLayout)
	fr.SetNbSamples(n)
	fr.SetSampleFormat(a.sampleFormat)
	fr.SetSampleRate(a.sampleRate)
	if err = fr.AllocBuffer(0); err != nil {
		a.fp.put(fr)
		fr = nil
		err = fmt.Errorf("astilibav: allocating frame buffer failed: %w", err)
		return
	}

	// Read
	if _, err = a.f.Read(fr); err != nil {
		a.fp.put(fr)
		fr = nil
		err = fmt.Errorf("astilibav: reading frame failed: %w", err)
		return
	}

	// Timestamp
	fr.SetPts(a.nextPTS)
	a.nextPTS += astiav.RescaleQ(int64(n), astiav.NewRational(1, a.sampleRate), a.timeBase)
	return
}

// unread stores a frame the encoder couldn't accept yet
func (a *audioFifo) unread(fr *astiav.Frame) { a.unreadFrame = fr }

func (a *audioFifo) release(fr *astiav.Frame) { a.fp.put(fr) }
