package astipipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// VSyncMethod represents a video sync method
type VSyncMethod int

// Video sync methods
const (
	VSyncAuto VSyncMethod = iota
	// Frames are passed through with their timestamps
	VSyncPassthrough
	// Frames are duplicated and dropped to achieve exactly the requested constant frame rate
	VSyncCFR
	// Frames are passed through with their timestamps or dropped to prevent 2 frames from having the same timestamp
	VSyncVFR
	// As passthrough but timestamps are destroyed, letting the muxer generate them
	VSyncDrop
	// As CFR but initial frames are not duplicated
	VSyncVSCFR
)

// ParseVSyncMethod parses a video sync method
func ParseVSyncMethod(s string) (m VSyncMethod, err error) {
	switch strings.ToLower(s) {
	case "auto", "-1":
		m = VSyncAuto
	case "passthrough", "0":
		m = VSyncPassthrough
	case "cfr", "1":
		m = VSyncCFR
	case "vfr", "2":
		m = VSyncVFR
	case "drop":
		m = VSyncDrop
	default:
		err = fmt.Errorf("astipipeline: invalid vsync method %s", s)
	}
	return
}

func (m VSyncMethod) String() string {
	switch m {
	case VSyncAuto:
		return "auto"
	case VSyncCFR:
		return "cfr"
	case VSyncDrop:
		return "drop"
	case VSyncPassthrough:
		return "passthrough"
	case VSyncVFR:
		return "vfr"
	case VSyncVSCFR:
		return "vscfr"
	}
	return strconv.Itoa(int(m))
}

// FrameRateState represents where the frame rate of an output stream comes from
type FrameRateState int

// Frame rate states
const (
	FrameRateStateUnset FrameRateState = iota
	FrameRateStateForced
	FrameRateStateInherited
	FrameRateStateSnapped
)

func (s FrameRateState) String() string {
	switch s {
	case FrameRateStateForced:
		return "forced"
	case FrameRateStateInherited:
		return "inherited"
	case FrameRateStateSnapped:
		return "snapped"
	}
	return "unset"
}

// DefaultFrameRate is used when a constant frame rate is needed but nothing is known about the source
var DefaultFrameRate = Rational{Num: 25, Den: 1}

// videoSyncMethod returns the sync method applied to an output stream
func (p *Pipeline) videoSyncMethod(ost *OutputStream) VSyncMethod {
	m := p.o.VSync
	if m != VSyncAuto {
		return m
	}
	of := p.outputFiles[ost.FileIndex]
	switch {
	case of.Format.Name == "avi":
		m = VSyncVFR
	case of.Format.Flags.VariableFPS:
		if of.Format.Flags.NoTimestamps {
			m = VSyncPassthrough
		} else {
			m = VSyncVFR
		}
	default:
		m = VSyncCFR
	}
	if m == VSyncCFR && ost.Source != nil {
		if f := p.inputFiles[ost.Source.FileIndex]; f.StreamCount() == 1 && f.InputTSOffset == 0 {
			m = VSyncVSCFR
		}
	}
	return m
}

// needsFrameRate returns whether the output stream must be encoded at a constant frame rate
func (p *Pipeline) needsFrameRate(ost *OutputStream) bool {
	if ost.FrameRateState == FrameRateStateForced || p.o.VSync == VSyncCFR {
		return true
	}
	f := p.outputFiles[ost.FileIndex].Format.Flags
	if f.VariableFPS || f.NoTimestamps {
		return false
	}
	switch p.o.VSync {
	case VSyncDrop, VSyncPassthrough, VSyncVFR:
		return false
	}
	return true
}

// NegotiateFrameRate binds a frame rate to a video output stream. The filter graph sink rate is
// used first, then the rates known about the source stream and finally DefaultFrameRate. The result is
// snapped to the nearest rate the encoder supports unless it has been forced by the user.
func (p *Pipeline) NegotiateFrameRate(ost *OutputStream, sinkRate Rational) (r Rational, s FrameRateState) {
	// Only video
	if ost.mediaType != astispecifier.MediaTypeVideo {
		return
	}

	// Forced by the user
	if ost.FrameRateState == FrameRateStateForced {
		return ost.FrameRate, ost.FrameRateState
	}

	// Not needed
	if !p.needsFrameRate(ost) {
		ost.FrameRate, ost.FrameRateState = Rational{}, FrameRateStateUnset
		return ost.FrameRate, ost.FrameRateState
	}

	// Inherit
	r = sinkRate
	if ist := ost.Source; ist != nil {
		for _, v := range []Rational{ist.FrameRate, ist.Info.RealFrameRate, ist.Info.AvgFrameRate} {
			if r.Num > 0 && r.Den > 0 {
				break
			}
			r = v
		}
	}
	if r.Num <= 0 || r.Den <= 0 {
		p.warn(ost, "no information about the input framerate is available. Falling back to a default value of %s fps for output stream #%d:%d. Use the -r option if you want a different framerate", DefaultFrameRate.String(), ost.FileIndex, ost.index)
		r = DefaultFrameRate
	}
	s = FrameRateStateInherited

	// Snap
	if len(ost.Codec.FrameRates) > 0 {
		r = ost.Codec.FrameRates[NearestRational(r, ost.Codec.FrameRates)]
		s = FrameRateStateSnapped
	}
	if ost.Codec.CodecName == "mpeg4" {
		r = Reduce(int64(r.Num), int64(r.Den), 65535)
	}
	ost.FrameRate, ost.FrameRateState = r, s
	return
}

// videoSync returns the number of times a frame whose timestamp is syncIPTS, expressed in the
// encoder time base, must be encoded. The output stream sync timestamp is updated accordingly.
func (ost *OutputStream) videoSync(syncIPTS, duration float64) (nbFrames int64) {
	delta0 := syncIPTS - float64(ost.syncOpts)
	delta := delta0 + duration
	nbFrames = 1

	// Clip frames overlapping the previous one
	if delta0 < 0 && delta > 0 && ost.vsync != VSyncPassthrough && ost.vsync != VSyncDrop {
		syncIPTS = float64(ost.syncOpts)
		duration += delta0
		delta0 = 0
	}

	switch ost.vsync {
	case VSyncVSCFR, VSyncCFR:
		if ost.vsync == VSyncVSCFR && ost.framesEncoded == 0 && delta0 >= 0.5 {
			// Initial frames are not duplicated
			delta = duration
			ost.syncOpts = int64(math.Round(syncIPTS))
		}
		if delta < -1.1 {
			nbFrames = 0
		} else if delta > 1.1 {
			nbFrames = int64(math.Round(delta))
		}
	case VSyncVFR:
		if delta <= -0.6 {
			nbFrames = 0
		} else if delta > 0.6 {
			ost.syncOpts = int64(math.Round(syncIPTS))
		}
	case VSyncDrop, VSyncPassthrough:
		ost.syncOpts = int64(math.Round(syncIPTS))
	}

	// Frame limit
	if ost.MaxFrames > 0 && nbFrames > ost.MaxFrames-ost.framesEncoded {
		nbFrames = ost.MaxFrames - ost.framesEncoded
	}
	if nbFrames < 0 {
		nbFrames = 0
	}
	return
}
