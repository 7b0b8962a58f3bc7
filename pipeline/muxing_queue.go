package astipipeline

import "fmt"

const muxingQueueInitialCapacity = 8

// MuxingQueue buffers the packets of an output stream until the header of its output file
// has been written. Its capacity starts small, doubles when needed and can't exceed a max size.
type MuxingQueue struct {
	maxSize int
	ps      []*Packet
	size    int64
}

// NewMuxingQueue creates a new muxing queue holding at most maxSize packets
func NewMuxingQueue(maxSize int) *MuxingQueue {
	return &MuxingQueue{
		maxSize: maxSize,
		ps:      make([]*Packet, 0, muxingQueueInitialCapacity),
	}
}

// Len returns the number of queued packets
func (q *MuxingQueue) Len() int { return len(q.ps) }

// Size returns the cumulated size of queued packets in bytes
func (q *MuxingQueue) Size() int64 { return q.size }

// Enqueue queues a packet and takes ownership of it. It fails when the queue is full.
func (q *MuxingQueue) Enqueue(p *Packet) error {
	// Grow
	if len(q.ps) == cap(q.ps) {
		limit := q.maxSize
		if limit < muxingQueueInitialCapacity {
			limit = muxingQueueInitialCapacity
		}
		n := 2 * cap(q.ps)
		if n > limit {
			n = limit
		}
		if n <= len(q.ps) {
			return &Error{Err: fmt.Errorf("%w: %d packets buffered", ErrMuxingQueueFull, len(q.ps)), Kind: KindOverflow}
		}
		ps := make([]*Packet, len(q.ps), n)
		copy(ps, q.ps)
		q.ps = ps
	}

	// Append
	q.ps = append(q.ps, p)
	q.size += int64(p.Size)
	return nil
}

// Drain removes queued packets in their original order and hands them to fn. Draining stops at
// the first error, remaining packets being released.
func (q *MuxingQueue) Drain(fn func(p *Packet) error) (err error) {
	ps := q.ps
	q.ps = make([]*Packet, 0, muxingQueueInitialCapacity)
	q.size = 0
	for i, p := range ps {
		if err = fn(p); err != nil {
			for _, v := range ps[i+1:] {
				v.Release()
			}
			return
		}
	}
	return
}

// Release releases queued packets
func (q *MuxingQueue) Release() {
	for _, p := range q.ps {
		p.Release()
	}
	q.ps = q.ps[:0]
	q.size = 0
}
