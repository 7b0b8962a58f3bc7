package astipipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	astitranscoder "github.com/asticode/go-astitranscoder"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMuxedStream(t *testing.T, mt astispecifier.MediaType) (*Pipeline, *OutputFile, *OutputStream, *mockedOutput, *mockedEvents) {
	// Create container
	s := newMockedSDK()
	c, err := s.CreateOutput(context.Background(), "out.mkv", "")
	require.NoError(t, err)
	o := c.(*mockedOutput)
	idx, err := o.NewStream(mt)
	require.NoError(t, err)
	o.streams[idx].timeBase = Rational{Num: 1, Den: 1000}

	// Create pipeline
	h := astitranscoder.NewEventHandler()
	p := New(Options{EventHandler: h})
	of := &OutputFile{
		Container:     o,
		Format:        o.Format(),
		LimitFileSize: math.MaxInt64,
		Path:          "out.mkv",
		RecordingTime: math.MaxInt64,
		StartTime:     NoPTS,
		metadata:      map[string]string{"title": "t"},
	}
	ost := &OutputStream{
		MaxFrames:   math.MaxInt64,
		StreamCopy:  true,
		index:       idx,
		initialized: true,
		lastMuxDTS:  NoPTS,
		mediaType:   mt,
		muxTimeBase: audioTimeBase,
		queue:       NewMuxingQueue(8),
	}
	of.streams = []*OutputStream{ost}
	p.outputFiles = []*OutputFile{of}
	p.outputStreams = []*OutputStream{ost}
	return p, of, ost, o, newMockedEvents(h)
}

func TestWritePacket(t *testing.T) {
	p, of, ost, o, _ := newMuxedStream(t, astispecifier.MediaTypeAudio)
	var live int64
	newPacket := func(ts int64) *Packet {
		return &Packet{Data: newMockedPayload(&live), DTS: ts, Duration: 1024, PTS: ts, Size: 10}
	}

	// Packets are queued until the header is written
	require.NoError(t, p.WritePacket(ost, newPacket(0)))
	require.NoError(t, p.WritePacket(ost, newPacket(48000)))
	assert.Empty(t, o.packets)
	assert.Equal(t, 2, ost.queue.Len())
	assert.Equal(t, int64(2), live)

	// Streams not initialized
	ost.initialized = false
	require.NoError(t, p.checkInitOutputFile(of))
	assert.False(t, of.headerWritten)
	ost.initialized = true

	// Header
	require.NoError(t, p.checkInitOutputFile(of))
	assert.True(t, of.headerWritten)
	assert.True(t, o.headerWritten)
	assert.Equal(t, map[string]string{"title": "t"}, o.metadata)
	assert.Equal(t, Rational{Num: 1, Den: 1000}, ost.streamTB)
	assert.Equal(t, audioTimeBase, ost.muxTimeBase)
	require.Len(t, o.packets, 2)
	assert.Equal(t, Packet{Duration: 21, Size: 10}, o.packets[0])
	assert.Equal(t, Packet{DTS: 1000, Duration: 21, PTS: 1000, Size: 10}, o.packets[1])
	assert.Equal(t, 0, ost.queue.Len())
	assert.Equal(t, int64(0), live)

	// Direct write
	require.NoError(t, p.WritePacket(ost, newPacket(96000)))
	require.Len(t, o.packets, 3)
	assert.Equal(t, int64(2000), o.packets[2].PTS)
	assert.Equal(t, uint64(3), ost.packetsWritten)
	assert.Equal(t, uint64(30), ost.dataSize)
	assert.Equal(t, int64(3), ost.framesEncoded)
	assert.Equal(t, int64(2000), ost.lastMuxDTS)
	assert.Equal(t, int64(0), live)

	// Max frames
	ost.MaxFrames = 3
	require.NoError(t, p.WritePacket(ost, newPacket(144000)))
	assert.Len(t, o.packets, 3)
	assert.Equal(t, int64(0), live)
}

func TestWritePacketEmptyQueue(t *testing.T) {
	p, of, ost, _, _ := newMuxedStream(t, astispecifier.MediaTypeAudio)
	require.NoError(t, p.checkInitOutputFile(of))
	assert.Equal(t, Rational{Num: 1, Den: 1000}, ost.muxTimeBase)
}

func TestWritePacketQueueOverflow(t *testing.T) {
	p, _, ost, _, _ := newMuxedStream(t, astispecifier.MediaTypeVideo)
	var live int64
	for i := 0; i < 8; i++ {
		require.NoError(t, p.WritePacket(ost, &Packet{Data: newMockedPayload(&live), Key: true, PTS: int64(i)}))
	}
	err := p.WritePacket(ost, &Packet{Data: newMockedPayload(&live), PTS: 8})
	assert.ErrorIs(t, err, ErrMuxingQueueFull)
	assert.True(t, IsKind(err, KindOverflow))
	assert.Equal(t, int64(8), live)
	ost.queue.Release()
	assert.Equal(t, int64(0), live)
}

func TestWriteHeaderError(t *testing.T) {
	p, of, _, o, _ := newMuxedStream(t, astispecifier.MediaTypeVideo)
	o.headerErr = errors.New("boom")
	err := p.checkInitOutputFile(of)
	assert.EqualError(t, err, "astipipeline: could not write header for output file #0 (incorrect codec parameters ?): boom")
	assert.True(t, IsKind(err, KindResource))
	assert.False(t, of.headerWritten)
}

func TestMedian3(t *testing.T) {
	assert.Equal(t, int64(2), median3(1, 2, 3))
	assert.Equal(t, int64(2), median3(3, 1, 2))
	assert.Equal(t, int64(2), median3(2, 3, 1))
	assert.Equal(t, int64(5), median3(5, 5, 1))
}

func TestFixPacketTimestamps(t *testing.T) {
	p, of, ost, _, es := newMuxedStream(t, astispecifier.MediaTypeVideo)
	ost.lastMuxDTS = 10

	// DTS greater than PTS
	pkt := &Packet{DTS: 20, PTS: 15}
	p.fixPacketTimestamps(of, ost, pkt)
	assert.Equal(t, int64(15), pkt.PTS)
	assert.Equal(t, int64(15), pkt.DTS)

	// Non monotonous
	pkt = &Packet{DTS: 10, PTS: 10}
	p.fixPacketTimestamps(of, ost, pkt)
	assert.Equal(t, int64(11), pkt.PTS)
	assert.Equal(t, int64(11), pkt.DTS)
	assert.Len(t, es.messages(astitranscoder.EventNameWarning), 2)

	// Non strict formats
	of.Format.Flags.TSNonStrict = true
	pkt = &Packet{DTS: 10, PTS: 12}
	p.fixPacketTimestamps(of, ost, pkt)
	assert.Equal(t, int64(10), pkt.DTS)
	assert.Equal(t, int64(12), pkt.PTS)

	// Data streams
	ost.mediaType = astispecifier.MediaTypeData
	pkt = &Packet{DTS: 5, PTS: 5}
	p.fixPacketTimestamps(of, ost, pkt)
	assert.Equal(t, int64(5), pkt.DTS)
}

func TestDoStreamcopy(t *testing.T) {
	p, of, ost, o, _ := newMuxedStream(t, astispecifier.MediaTypeVideo)
	ist := &InputStream{Info: StreamInfo{TimeBase: videoTimeBase}}
	p.inputFiles = []*InputFile{{RecordingTime: math.MaxInt64}}
	require.NoError(t, p.checkInitOutputFile(of))
	var live int64

	// Output starts with a key frame
	pkt := &Packet{Data: newMockedPayload(&live), Duration: 3600}
	require.NoError(t, p.doStreamcopy(ist, ost, pkt))
	pkt.Release()
	assert.Empty(t, o.packets)

	// Key frame
	pkt = &Packet{Data: newMockedPayload(&live), DTS: 3600, Duration: 3600, Key: true, PTS: 3600, Size: 5}
	require.NoError(t, p.doStreamcopy(ist, ost, pkt))
	pkt.Release()
	require.Len(t, o.packets, 1)
	assert.Equal(t, Packet{DTS: 40, Duration: 40, Key: true, PTS: 40, Size: 5}, o.packets[0])
	assert.Equal(t, int64(1), ost.syncOpts)
	assert.Equal(t, int64(0), live)

	// Recording time
	of.RecordingTime = 1000000
	ist.pts = 1000000
	pkt = &Packet{DTS: 90000, Key: true, PTS: 90000}
	require.NoError(t, p.doStreamcopy(ist, ost, pkt))
	assert.Len(t, o.packets, 1)
	assert.True(t, ost.finished)
}

func TestCloseOutputStream(t *testing.T) {
	p, of, ost, _, _ := newMuxedStream(t, astispecifier.MediaTypeAudio)
	ost.streamTB = Rational{Num: 1, Den: 1000}
	ost.lastMuxDTS = 2000

	// Not shortest
	p.closeOutputStream(ost)
	assert.True(t, ost.finished)
	assert.Equal(t, int64(math.MaxInt64), of.RecordingTime)

	// Shortest
	of.Shortest = true
	p.closeOutputStream(ost)
	assert.Equal(t, int64(2000000), of.RecordingTime)

	// Finish
	other := &OutputStream{}
	of.streams = append(of.streams, other)
	p.finishOutputStream(ost)
	assert.True(t, other.finished)
}

func TestWriteTrailers(t *testing.T) {
	// Nothing written
	p, of, _, o, es := newMuxedStream(t, astispecifier.MediaTypeAudio)
	require.NoError(t, p.writeTrailers())
	assert.False(t, o.trailer)
	assert.Equal(t, []string{"astipipeline: nothing was written into output file 0 (out.mkv), because at least one of its streams received no packets"}, es.messages(astitranscoder.EventNameError))

	// Trailer
	require.NoError(t, p.checkInitOutputFile(of))
	require.NoError(t, p.writeTrailers())
	assert.True(t, o.trailer)
}
