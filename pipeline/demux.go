package astipipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

type demuxResult struct {
	err error
	pkt *Packet
}

// startDemuxing reads packets of the input file in a goroutine. Packets are sent to a channel whose
// size is the file's thread queue size, which blocks reading when the orchestration loop lags behind.
func (p *Pipeline) startDemuxing(ctx context.Context, f *InputFile, wg *sync.WaitGroup) {
	f.packets = make(chan demuxResult, f.ThreadQueueSize)
	f.restart = make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.demux(ctx, f)
	}()
}

func (p *Pipeline) demux(ctx context.Context, f *InputFile) {
	// Create rate emulator
	var re *rateEmulator
	if f.RateEmulation {
		re = newRateEmulator()
	}

	for {
		// Read
		pkt, err := f.Container.ReadPacket(ctx)
		if err != nil {
			// Send error
			select {
			case f.packets <- demuxResult{err: err}:
			case <-ctx.Done():
				return
			}

			// Only the end of the input can be followed by a restart
			if !errors.Is(err, io.EOF) {
				return
			}
			select {
			case <-f.restart:
			case <-ctx.Done():
				return
			}

			// Seek to start
			if err = f.Container.Seek(ctx, f.seekTimestamp()); err != nil {
				select {
				case f.packets <- demuxResult{err: fmt.Errorf("astipipeline: seeking to start of %s failed: %w", f.Path, err)}:
				case <-ctx.Done():
				}
				return
			}
			if re != nil {
				re.reset()
			}
			continue
		}

		// Emulate rate
		if re != nil {
			if ss := f.Container.Streams(); pkt.StreamIndex >= 0 && pkt.StreamIndex < len(ss) {
				if err = re.wait(ctx, pkt, ss[pkt.StreamIndex].TimeBase); err != nil {
					pkt.Release()
					return
				}
			}
		}

		// Send packet
		select {
		case f.packets <- demuxResult{pkt: pkt}:
		case <-ctx.Done():
			pkt.Release()
			return
		}
	}
}

// stopDemuxing releases packets left in channels once demuxing goroutines are done
func (p *Pipeline) stopDemuxing() {
	for _, f := range p.inputFiles {
		if f.packets == nil {
			continue
		}
	drain:
		for {
			select {
			case r := <-f.packets:
				if r.pkt != nil {
					r.pkt.Release()
				}
			default:
				break drain
			}
		}
	}
}

// seekTimestamp returns the position the file is sought to when looping
func (f *InputFile) seekTimestamp() (ts int64) {
	if f.StartTime != NoPTS {
		ts = f.StartTime
	}
	if v := f.Container.StartTime(); v != NoPTS {
		ts += v
	}
	return
}

// loopDuration computes the duration added to timestamps each time the file loops, based on the
// timestamps seen so far
func (p *Pipeline) loopDuration(f *InputFile) {
	for _, ist := range f.streams {
		// Nothing seen
		if ist.maxPTS < ist.minPTS {
			continue
		}

		// Duration of the last frame
		tb := ist.Info.TimeBase
		d := int64(1)
		switch {
		case ist.MediaType() == astispecifier.MediaTypeAudio && ist.nbSamples > 0 && ist.Info.CodecParameters.SampleRate > 0:
			d = RescaleQ(int64(ist.nbSamples), Rational{Num: 1, Den: ist.Info.CodecParameters.SampleRate}, tb)
		case ist.FrameRate.Num > 0 && ist.FrameRate.Den > 0:
			d = RescaleQ(1, ist.FrameRate.Invert(), tb)
		case ist.Info.AvgFrameRate.Num > 0 && ist.Info.AvgFrameRate.Den > 0:
			d = RescaleQ(1, ist.Info.AvgFrameRate.Invert(), tb)
		}

		// Keep the longest stream
		if v := RescaleQ(ist.maxPTS-ist.minPTS+d, tb, TimeBaseQ); v > f.duration {
			f.duration = v
		}
	}
}
