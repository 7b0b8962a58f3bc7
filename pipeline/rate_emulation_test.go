package astipipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateEmulator(t *testing.T) {
	r := newRateEmulator()
	n := time.Unix(0, 0)
	r.now = func() time.Time { return n }
	var sleeps []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		n = n.Add(d)
		return nil
	}
	ctx := context.Background()

	// First packets are not delayed
	require.NoError(t, r.wait(ctx, &Packet{DTS: 9000, StreamIndex: 0}, videoTimeBase))
	require.NoError(t, r.wait(ctx, &Packet{DTS: 4800, StreamIndex: 1}, audioTimeBase))
	assert.Empty(t, sleeps)

	// Packets in advance are delayed
	require.NoError(t, r.wait(ctx, &Packet{DTS: 12600, StreamIndex: 0}, videoTimeBase))
	assert.Equal(t, []time.Duration{40 * time.Millisecond}, sleeps)

	// Packets late are not delayed
	n = n.Add(time.Second)
	require.NoError(t, r.wait(ctx, &Packet{DTS: 16200, StreamIndex: 0}, videoTimeBase))
	require.NoError(t, r.wait(ctx, &Packet{DTS: NoPTS, StreamIndex: 0}, videoTimeBase))
	assert.Len(t, sleeps, 1)

	// Reset
	r.reset()
	require.NoError(t, r.wait(ctx, &Packet{DTS: 0, StreamIndex: 0}, videoTimeBase))
	assert.Len(t, sleeps, 1)

	// Cancellation
	r = newRateEmulator()
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, r.wait(cctx, &Packet{DTS: 0}, videoTimeBase))
	assert.Error(t, r.wait(cctx, &Packet{DTS: 90000}, videoTimeBase))
}

func TestRunRateEmulation(t *testing.T) {
	s := newMockedSDK()
	s.addInput("in0", []StreamInfo{videoStream("h264")}, videoPackets(0, 3))
	p, _ := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-re", "-i", "in0", "-c", "copy", "out.mkv"))
	assert.True(t, p.InputFiles()[0].RateEmulation)
	n := time.Now()
	require.NoError(t, p.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(n), 80*time.Millisecond)
	assert.Len(t, s.outputs["out.mkv"].streamPackets(0), 3)
}
