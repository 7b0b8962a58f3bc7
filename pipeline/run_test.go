package astipipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	astitranscoder "github.com/asticode/go-astitranscoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packetsPTS(ps []Packet) (pts []int64) {
	for _, p := range ps {
		pts = append(pts, p.PTS)
	}
	return
}

func TestRunStreamCopy(t *testing.T) {
	s := newMockedSDK()
	s.addInput("in0", []StreamInfo{videoStream("h264"), audioStream("aac", 2)}, interleave(videoPackets(0, 10), audioPackets(1, 10)))
	p, es := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-map", "0", "-c", "copy", "out.mkv"))
	require.NoError(t, p.Run(context.Background()))

	// Packets
	o := s.outputs["out.mkv"]
	assert.True(t, o.headerWritten)
	assert.True(t, o.trailer)
	vs := o.streamPackets(0)
	require.Len(t, vs, 10)
	assert.Equal(t, int64(3600), vs[1].PTS)
	assert.Equal(t, 1000, vs[1].Size)
	as := o.streamPackets(1)
	require.Len(t, as, 10)
	assert.Equal(t, int64(9*1024), as[9].DTS)
	assert.Equal(t, int64(0), s.live)

	// Events
	assert.Len(t, es.byName(astitranscoder.EventNamePipelineStarted), 1)
	assert.Len(t, es.byName(astitranscoder.EventNamePipelineStopped), 1)
	ps := es.byName(astitranscoder.EventNameProgress)
	require.NotEmpty(t, ps)
	e := ps[len(ps)-1].Payload.(astitranscoder.EventProgress)
	assert.Equal(t, int64(10*1000+10*200), e.Size)
	assert.Equal(t, uint64(0), e.Frames)
	assert.Equal(t, 360*time.Millisecond, e.Time)
	assert.Empty(t, es.byName(astitranscoder.EventNameError))
}

func TestRunEncode(t *testing.T) {
	s := newMockedSDK()
	s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 10))
	p, es := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "out.mp4"))
	require.NoError(t, p.Run(context.Background()))

	// Graph
	require.Len(t, s.graphs, 1)
	assert.Equal(t, "[astipipeline_in0]null[astipipeline_out0_unconstrained];[astipipeline_out0_unconstrained]format=pix_fmts=yuv420p[astipipeline_out0]", s.graphs[0].o.Description)
	require.Len(t, s.decoders, 1)
	require.Len(t, s.encoders, 1)
	assert.Equal(t, Rational{Num: 1, Den: 25}, s.encoders[0].o.TimeBase)

	// Packets
	o := s.outputs["out.mp4"]
	assert.True(t, o.trailer)
	ps := o.streamPackets(0)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, packetsPTS(ps))
	assert.True(t, ps[0].Key)
	assert.Equal(t, int64(0), s.live)

	// Progress
	evts := es.byName(astitranscoder.EventNameProgress)
	require.NotEmpty(t, evts)
	e := evts[len(evts)-1].Payload.(astitranscoder.EventProgress)
	assert.Equal(t, uint64(10), e.Frames)
	assert.Equal(t, int64(1000), e.Size)
	assert.Equal(t, 360*time.Millisecond, e.Time)
}

func TestRunFrameLimit(t *testing.T) {
	s := newMockedSDK()
	s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 10))
	p, _ := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-frames:v", "3", "out.mp4"))
	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, s.outputs["out.mp4"].streamPackets(0), 3)
	assert.True(t, s.outputs["out.mp4"].trailer)
	assert.Equal(t, int64(0), s.live)
}

func TestRunShortest(t *testing.T) {
	newSDK := func() *mockedSDK {
		s := newMockedSDK()
		s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 10))
		s.addInput("in1", []StreamInfo{audioStream("aac", 2)}, audioPackets(0, 4))
		return s
	}

	// Longest
	s := newSDK()
	p, _ := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-i", "in1", "-map", "0", "-map", "1", "-c", "copy", "out.mkv"))
	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, s.outputs["out.mkv"].streamPackets(0), 10)
	assert.Len(t, s.outputs["out.mkv"].streamPackets(1), 4)

	// Shortest
	s = newSDK()
	p, _ = newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-i", "in1", "-map", "0", "-map", "1", "-c", "copy", "-shortest", "out.mkv"))
	require.NoError(t, p.Run(context.Background()))
	assert.Less(t, len(s.outputs["out.mkv"].streamPackets(0)), 10)
	assert.Len(t, s.outputs["out.mkv"].streamPackets(1), 4)
	assert.Equal(t, int64(0), s.live)
}

func TestRunLoop(t *testing.T) {
	s := newMockedSDK()
	i := s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 5))
	p, _ := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-stream_loop", "1", "-i", "in0", "-c", "copy", "out.mkv"))
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []int64{0}, i.seeks)
	ps := s.outputs["out.mkv"].streamPackets(0)
	require.Len(t, ps, 10)
	for idx, pkt := range ps {
		assert.Equal(t, int64(idx*3600), pkt.PTS)
	}
	assert.Equal(t, int64(0), s.live)
}

func TestRunComplexFilterGraph(t *testing.T) {
	s := newMockedSDK()
	s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 5))
	p, _ := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-filter_complex", "[0:v]scale=640:360[v]", "-map", "[v]", "out.mp4"))
	require.NoError(t, p.Run(context.Background()))
	require.Len(t, s.graphs, 1)
	assert.Equal(t, "[astipipeline_in0]scale=640:360[astipipeline_out0_unconstrained];[astipipeline_out0_unconstrained]format=pix_fmts=yuv420p[astipipeline_out0]", s.graphs[0].o.Description)
	assert.Len(t, s.outputs["out.mp4"].streamPackets(0), 5)
	assert.True(t, s.outputs["out.mp4"].trailer)
	assert.Equal(t, int64(0), s.live)
}

func TestRunPassLog(t *testing.T) {
	s := newMockedSDK()
	s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 3))
	dir := t.TempDir()
	p, _ := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-pass", "1", "-passlogfile", dir+"/log", "out.mp4"))
	require.NoError(t, p.Run(context.Background()))
	b, err := os.ReadFile(dir + "/log-0.log")
	require.NoError(t, err)
	assert.Equal(t, "frame 1\nframe 2\nframe 3\n", string(b))
}

func TestRunReadError(t *testing.T) {
	s := newMockedSDK()
	i := s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 3))
	i.readErr = errors.New("boom")
	p, es := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-c", "copy", "out.mkv"))
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"astipipeline: reading in0 failed: boom"}, es.messages(astitranscoder.EventNameError))
	assert.Len(t, s.outputs["out.mkv"].streamPackets(0), 3)
	assert.True(t, s.outputs["out.mkv"].trailer)
}

func TestRunHeaderError(t *testing.T) {
	s := newMockedSDK()
	s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 3))
	p, es := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-c", "copy", "out.mkv"))
	s.outputs["out.mkv"].headerErr = errors.New("boom")
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "astipipeline: initializing run failed: "))
	assert.True(t, IsKind(err, KindResource))
	assert.Len(t, es.byName(astitranscoder.EventNamePipelineStopped), 1)
}

func TestRunCancelled(t *testing.T) {
	s := newMockedSDK()
	s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 10))
	p, _ := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-c", "copy", "out.mkv"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
	assert.Empty(t, s.outputs["out.mkv"].packets)
	assert.True(t, s.outputs["out.mkv"].trailer)
	assert.Equal(t, int64(0), s.live)
}

func TestRunStats(t *testing.T) {
	s := newMockedSDK()
	s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 3))
	h := astitranscoder.NewEventHandler()
	st := astitranscoder.NewStater(time.Hour, h)
	p := New(Options{
		Codecs:       s,
		Decoders:     s,
		Demuxer:      s,
		Encoders:     s,
		EventHandler: h,
		Filters:      s,
		Muxer:        s,
		PresetDirs:   []string{},
		Stater:       st,
	})
	defer p.Close()
	require.NoError(t, configure(t, p, s, "-i", "in0", "out.mp4"))
	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, p.stats)
	assert.Len(t, s.outputs["out.mp4"].streamPackets(0), 3)
}
