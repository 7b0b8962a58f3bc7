package astipipeline

import (
	"math"
	"testing"

	astispecifier "github.com/asticode/go-astitranscoder/specifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVSyncMethod(t *testing.T) {
	for s, e := range map[string]VSyncMethod{
		"-1":          VSyncAuto,
		"0":           VSyncPassthrough,
		"1":           VSyncCFR,
		"2":           VSyncVFR,
		"cfr":         VSyncCFR,
		"drop":        VSyncDrop,
		"Passthrough": VSyncPassthrough,
	} {
		m, err := ParseVSyncMethod(s)
		require.NoError(t, err, s)
		assert.Equal(t, e, m, s)
	}
	_, err := ParseVSyncMethod("bogus")
	assert.Error(t, err)
	assert.Equal(t, "vscfr", VSyncVSCFR.String())
}

func TestVideoSync(t *testing.T) {
	newStream := func(m VSyncMethod, syncOpts int64) *OutputStream {
		return &OutputStream{MaxFrames: math.MaxInt64, syncOpts: syncOpts, vsync: m}
	}

	// CFR
	assert.Equal(t, int64(1), newStream(VSyncCFR, 0).videoSync(0, 1))
	assert.Equal(t, int64(4), newStream(VSyncCFR, 0).videoSync(3, 1))
	assert.Equal(t, int64(1), newStream(VSyncCFR, 5).videoSync(3, 1))
	assert.Equal(t, int64(0), newStream(VSyncCFR, 5).videoSync(2, 1))

	// VSCFR doesn't duplicate initial frames
	ost := newStream(VSyncVSCFR, 0)
	assert.Equal(t, int64(1), ost.videoSync(3, 1))
	assert.Equal(t, int64(3), ost.syncOpts)

	// VFR
	ost = newStream(VSyncVFR, 0)
	assert.Equal(t, int64(1), ost.videoSync(5, 1))
	assert.Equal(t, int64(5), ost.syncOpts)
	assert.Equal(t, int64(0), newStream(VSyncVFR, 5).videoSync(3, 1))

	// Passthrough
	ost = newStream(VSyncPassthrough, 0)
	assert.Equal(t, int64(1), ost.videoSync(7.4, 1))
	assert.Equal(t, int64(7), ost.syncOpts)

	// Frame limit
	ost = newStream(VSyncCFR, 0)
	ost.MaxFrames, ost.framesEncoded = 2, 1
	assert.Equal(t, int64(1), ost.videoSync(5, 1))
}

func TestNegotiateFrameRate(t *testing.T) {
	p := New(Options{})
	p.outputFiles = []*OutputFile{{Format: OutputFormat{Name: "mp4"}}}
	newStream := func() *OutputStream { return &OutputStream{mediaType: astispecifier.MediaTypeVideo} }

	// Forced
	ost := newStream()
	ost.FrameRate, ost.FrameRateState = Rational{Num: 30, Den: 1}, FrameRateStateForced
	r, s := p.NegotiateFrameRate(ost, Rational{Num: 25, Den: 1})
	assert.Equal(t, Rational{Num: 30, Den: 1}, r)
	assert.Equal(t, FrameRateStateForced, s)

	// Sink
	r, s = p.NegotiateFrameRate(newStream(), Rational{Num: 24, Den: 1})
	assert.Equal(t, Rational{Num: 24, Den: 1}, r)
	assert.Equal(t, FrameRateStateInherited, s)

	// Source
	ost = newStream()
	ost.Source = &InputStream{Info: StreamInfo{AvgFrameRate: Rational{Num: 25, Den: 1}}}
	r, _ = p.NegotiateFrameRate(ost, Rational{})
	assert.Equal(t, Rational{Num: 25, Den: 1}, r)

	// Default
	r, s = p.NegotiateFrameRate(newStream(), Rational{})
	assert.Equal(t, DefaultFrameRate, r)
	assert.Equal(t, FrameRateStateInherited, s)

	// Snapped
	ost = newStream()
	ost.Codec.FrameRates = []Rational{{Num: 24, Den: 1}, {Num: 30, Den: 1}}
	r, s = p.NegotiateFrameRate(ost, Rational{Num: 25, Den: 1})
	assert.Equal(t, Rational{Num: 24, Den: 1}, r)
	assert.Equal(t, FrameRateStateSnapped, s)
	assert.Equal(t, r, ost.FrameRate)

	// Not needed
	p.outputFiles[0].Format.Flags.VariableFPS = true
	r, s = p.NegotiateFrameRate(newStream(), Rational{Num: 25, Den: 1})
	assert.True(t, r.IsZero())
	assert.Equal(t, FrameRateStateUnset, s)

	// Not video
	r, s = p.NegotiateFrameRate(&OutputStream{mediaType: astispecifier.MediaTypeAudio}, Rational{Num: 25, Den: 1})
	assert.True(t, r.IsZero())
	assert.Equal(t, FrameRateStateUnset, s)
}

func TestVideoSyncMethod(t *testing.T) {
	p := New(Options{})
	ist := &InputStream{}
	p.inputFiles = []*InputFile{{streams: []*InputStream{ist}}}
	p.outputFiles = []*OutputFile{{}}
	ost := &OutputStream{}

	p.outputFiles[0].Format = OutputFormat{Name: "avi"}
	assert.Equal(t, VSyncVFR, p.videoSyncMethod(ost))
	p.outputFiles[0].Format = OutputFormat{Flags: FormatFlags{NoTimestamps: true, VariableFPS: true}}
	assert.Equal(t, VSyncPassthrough, p.videoSyncMethod(ost))
	p.outputFiles[0].Format = OutputFormat{Flags: FormatFlags{VariableFPS: true}}
	assert.Equal(t, VSyncVFR, p.videoSyncMethod(ost))
	p.outputFiles[0].Format = OutputFormat{Name: "mp4"}
	assert.Equal(t, VSyncCFR, p.videoSyncMethod(ost))

	// Single stream input without offset
	ost.Source = ist
	assert.Equal(t, VSyncVSCFR, p.videoSyncMethod(ost))
	p.inputFiles[0].InputTSOffset = 1
	assert.Equal(t, VSyncCFR, p.videoSyncMethod(ost))

	// Forced
	p.o.VSync = VSyncDrop
	assert.Equal(t, VSyncDrop, p.videoSyncMethod(ost))
}
