package astipipeline

import (
	"context"
	"time"

	"github.com/asticode/go-astikit"
)

// rateEmulator delays packets so that an input is read at its native rate. Each stream is
// paced independently from its first DTS.
type rateEmulator struct {
	firsts map[int]int64 // Indexed by stream index, in TimeBaseQ
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	start  time.Time
}

func newRateEmulator() *rateEmulator {
	return &rateEmulator{
		firsts: make(map[int]int64),
		now:    time.Now,
		sleep:  astikit.Sleep,
	}
}

func (r *rateEmulator) reset() {
	r.firsts = make(map[int]int64)
	r.start = time.Time{}
}

func (r *rateEmulator) wait(ctx context.Context, pkt *Packet, tb Rational) error {
	// No timestamp
	if pkt.DTS == NoPTS {
		return nil
	}

	// Get timestamp
	ts := RescaleQ(pkt.DTS, tb, TimeBaseQ)
	first, ok := r.firsts[pkt.StreamIndex]
	if !ok {
		first = ts
		r.firsts[pkt.StreamIndex] = ts
	}
	if r.start.IsZero() {
		r.start = r.now()
	}

	// Too early
	if d := time.Duration(ts-first)*time.Microsecond - r.now().Sub(r.start); d > 0 {
		return r.sleep(ctx, d)
	}
	return nil
}
