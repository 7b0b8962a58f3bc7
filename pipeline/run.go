package astipipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	astitranscoder "github.com/asticode/go-astitranscoder"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// TargetName implements the astitranscoder.Target interface
func (p *Pipeline) TargetName() string { return "pipeline" }

// Run transcodes until every output is done or the context is cancelled. Outputs whose header has been
// written are always finalized, including when the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	// Emit
	p.emit(astitranscoder.Event{
		Name:   astitranscoder.EventNamePipelineStarted,
		Target: p,
	})
	defer p.emit(astitranscoder.Event{
		Name:   astitranscoder.EventNamePipelineStopped,
		Target: p,
	})

	// Init
	if err = p.initRun(); err != nil {
		err = fmt.Errorf("astipipeline: initializing run failed: %w", err)
		return
	}

	// Start demuxing
	demuxCtx, demuxCancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	defer func() {
		demuxCancel()
		wg.Wait()
		p.stopDemuxing()
		p.releaseQueuedFrames()
		for _, ost := range p.outputStreams {
			ost.queue.Release()
		}
	}()
	for _, f := range p.inputFiles {
		p.startDemuxing(demuxCtx, f, wg)
	}

	// Start stats
	p.addPipelineStats()
	defer p.delStats()

	// Loop
	start := time.Now()
	lastProgress := start
	for p.needOutput() {
		// Context has been cancelled
		if ctx.Err() != nil {
			break
		}

		// Step
		if err = p.transcodeStep(ctx); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				err = nil
				break
			}
			err = fmt.Errorf("astipipeline: transcoding failed: %w", err)
			return
		}

		// Progress
		if now := time.Now(); now.Sub(lastProgress) >= p.o.ProgressPeriod {
			p.emitProgress(now.Sub(start))
			lastProgress = now
		}
	}

	// Flush decoders
	for _, ist := range p.inputStreams {
		if ist.DecodingNeeded == 0 || p.inputFiles[ist.FileIndex].eof {
			continue
		}
		if err = p.processInputPacket(ist, nil); err != nil {
			err = fmt.Errorf("astipipeline: flushing decoder of %s failed: %w", ist.TargetName(), err)
			return
		}
	}
	if err = p.reapFilters(true); err != nil {
		err = fmt.Errorf("astipipeline: reaping filters failed: %w", err)
		return
	}

	// Flush encoders
	if err = p.flushEncoders(); err != nil {
		err = fmt.Errorf("astipipeline: flushing encoders failed: %w", err)
		return
	}

	// Write trailers
	if err = p.writeTrailers(); err != nil {
		err = fmt.Errorf("astipipeline: writing trailers failed: %w", err)
		return
	}

	// Final progress
	p.emitProgress(time.Since(start))
	return
}

// initRun creates decoders, initializes stream copies and writes headers of outputs that can already be
// written
func (p *Pipeline) initRun() (err error) {
	// Decoders
	if err = p.initDecoders(); err != nil {
		return
	}

	// Streams that are not fed by a filter graph
	for _, ost := range p.outputStreams {
		if ost.Filter != nil {
			continue
		}
		if err = p.initOutputStream(ost); err != nil {
			return
		}
	}

	// Outputs without streams
	for _, of := range p.outputFiles {
		if len(of.streams) == 0 && of.Format.Flags.NoStreams {
			if err = p.checkInitOutputFile(of); err != nil {
				return
			}
		}
	}
	return
}

// needOutput returns whether at least one output stream still needs data
func (p *Pipeline) needOutput() bool {
	for _, ost := range p.outputStreams {
		// Done
		of := p.outputFiles[ost.FileIndex]
		if ost.finished || of.Container.BytesWritten() >= of.LimitFileSize {
			continue
		}

		// Frame limit reached
		if ost.framesEncoded >= ost.MaxFrames {
			for _, v := range of.streams {
				p.closeOutputStream(v)
			}
			continue
		}
		return true
	}
	return false
}

// chooseOutput returns the output stream that needs data the most: an uninitialized stream first,
// then the stream whose last muxed DTS is the smallest
func (p *Pipeline) chooseOutput() (o *OutputStream) {
	min := int64(math.MaxInt64)
	for _, ost := range p.outputStreams {
		// Not initialized
		if !ost.initialized && !ost.inputsDone {
			return ost
		}

		// Smallest DTS
		ts := int64(math.MinInt64)
		if ost.lastMuxDTS != NoPTS {
			ts = RescaleQ(ost.lastMuxDTS, ost.streamTB, TimeBaseQ)
		}
		if !ost.finished && ts < min {
			min, o = ts, ost
		}
	}
	return
}

// transcodeStep reads one packet from the input feeding the output that needs data the most, and
// encodes whatever the filter graphs output
func (p *Pipeline) transcodeStep(ctx context.Context) (err error) {
	// Choose output
	ost := p.chooseOutput()
	if ost == nil {
		p.info(p, "no more inputs to read from, finishing")
		return io.EOF
	}

	// Choose input
	var ist *InputStream
	if ost.Filter != nil {
		// Configure graph
		g := ost.Filter.Graph
		if g.graph == nil && g.inputsReady() {
			if err = p.configureGraph(g); err != nil {
				return
			}
		}

		if g.graph != nil {
			// Reap
			if err = p.reapFilters(false); err != nil {
				return
			}

			// Graph is done
			if g.outputsDone() {
				p.closeGraphOutputs(g)
				return
			}

			// Input that has been fed the less
			var in *InputFilter
			for _, v := range g.Inputs {
				if v.eof || p.inputFiles[v.Stream.FileIndex].eof {
					continue
				}
				if in == nil || v.framesPushed < in.framesPushed {
					in = v
				}
			}
			if in == nil {
				p.closeGraphOutputs(g)
				return
			}
			ist = in.Stream
		} else {
			// First input that hasn't output anything yet
			for _, v := range g.Inputs {
				if !v.Stream.gotOutput && !p.inputFiles[v.Stream.FileIndex].eof {
					ist = v.Stream
					break
				}
			}
			if ist == nil {
				if ost.inputsDone {
					p.closeGraphOutputs(g)
				}
				ost.inputsDone = true
				return
			}
		}
	} else {
		ist = ost.Source
	}

	// Input is done
	f := p.inputFiles[ist.FileIndex]
	if f.eof {
		p.finishOutputStream(ost)
		return
	}

	// Process input
	if err = p.processInput(ctx, f); err != nil {
		return
	}
	return p.reapFilters(false)
}

// outputsDone returns whether every output of the graph has reached its end
func (g *FilterGraph) outputsDone() bool {
	for _, o := range g.Outputs {
		if !o.eof {
			return false
		}
	}
	return true
}

// closeGraphOutputs closes every output stream fed by the graph
func (p *Pipeline) closeGraphOutputs(g *FilterGraph) {
	for _, o := range g.Outputs {
		if o.Stream != nil {
			p.closeOutputStream(o.Stream)
		}
	}
}

// emitProgress emits a progress event
func (p *Pipeline) emitProgress(elapsed time.Duration) {
	// Frames
	var e astitranscoder.EventProgress
	for _, ost := range p.outputStreams {
		if ost.mediaType == astispecifier.MediaTypeVideo && ost.EncodingNeeded() {
			e.Frames = uint64(ost.framesEncoded)
			break
		}
	}

	// Size
	for _, of := range p.outputFiles {
		e.Size += of.Container.BytesWritten()
	}

	// Time
	pts := int64(0)
	for _, ost := range p.outputStreams {
		if ost.lastMuxDTS == NoPTS || ost.streamTB.Num <= 0 {
			continue
		}
		if v := RescaleQ(ost.lastMuxDTS, ost.streamTB, TimeBaseQ); v > pts {
			pts = v
		}
	}
	e.Time = durationFromTimeBaseQ(pts)

	// Rates
	if s := e.Time.Seconds(); s > 0 {
		e.Bitrate = float64(e.Size) * 8 / s
		if elapsed > 0 {
			e.Speed = s / elapsed.Seconds()
		}
	}

	// Emit
	p.emit(astitranscoder.Event{
		Name:    astitranscoder.EventNameProgress,
		Payload: e,
		Target:  p,
	})
}
