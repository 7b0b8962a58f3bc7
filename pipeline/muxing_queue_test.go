package astipipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuxingQueue(t *testing.T) {
	var live int64
	newPacket := func(pts int64) *Packet {
		return &Packet{Data: newMockedPayload(&live), PTS: pts, Size: 10}
	}

	// Enqueue until full
	q := NewMuxingQueue(10)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(newPacket(int64(i))))
	}
	assert.Equal(t, 10, q.Len())
	assert.Equal(t, int64(100), q.Size())
	err := q.Enqueue(newPacket(10))
	assert.ErrorIs(t, err, ErrMuxingQueueFull)
	assert.True(t, IsKind(err, KindOverflow))

	// Drain keeps the order
	var ptss []int64
	require.NoError(t, q.Drain(func(p *Packet) error {
		ptss = append(ptss, p.PTS)
		p.Release()
		return nil
	}))
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, ptss)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, int64(0), q.Size())

	// Drain stops at the first error and releases the rest
	live = 0
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(newPacket(int64(i))))
	}
	errDrain := errors.New("drain")
	err = q.Drain(func(p *Packet) error {
		p.Release()
		return errDrain
	})
	assert.ErrorIs(t, err, errDrain)
	assert.Equal(t, int64(0), live)

	// Release
	require.NoError(t, q.Enqueue(newPacket(0)))
	q.Release()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, int64(0), live)
}

func TestMuxingQueueSmallMaxSize(t *testing.T) {
	// The initial capacity is always available
	q := NewMuxingQueue(2)
	for i := 0; i < muxingQueueInitialCapacity; i++ {
		require.NoError(t, q.Enqueue(&Packet{}))
	}
	assert.Error(t, q.Enqueue(&Packet{}))
}
