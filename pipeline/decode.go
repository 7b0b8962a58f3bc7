package astipipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	astitranscoder "github.com/asticode/go-astitranscoder"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// initDecoders creates the decoders of input streams that need decoding
func (p *Pipeline) initDecoders() (err error) {
	for _, ist := range p.inputStreams {
		if ist.DecodingNeeded == 0 {
			continue
		}

		// Decoder not found
		if !ist.DecoderFound {
			return configurationError("decoder (codec %s) not found for input stream #%d:%d", ist.Info.CodecParameters.CodecName, ist.FileIndex, ist.Index())
		}

		// Hardware device
		if ist.hardwareAccel, ist.hardwareDev, err = p.o.HardwareAccelerators.initHardwareDevice(ist.HardwareAccel, ist.HardwareAccelDevice); err != nil {
			return resourceError("device setup failed for decoder on input stream #%d:%d: %w", ist.FileIndex, ist.Index(), err)
		}
		if ist.hardwareDev != nil {
			p.c.AddWithError(ist.hardwareDev.Close)
			p.info(ist, "using %s hardware acceleration", ist.hardwareAccel.Name())
		}

		// Create decoder
		if ist.decoder, err = p.o.Decoders.NewDecoder(DecoderOptions{
			Codec:                     ist.Codec,
			FrameRate:                 ist.FrameRate,
			HardwareDevice:            ist.hardwareDev,
			HardwareOutputPixelFormat: ist.HardwareAccelOutputFormat,
			Options:                   ist.DecoderOptions,
			Parameters:                ist.Info.CodecParameters,
			TimeBase:                  ist.Info.TimeBase,
		}); err != nil {
			return resourceError("error while opening decoder for input stream #%d:%d: %w", ist.FileIndex, ist.Index(), err)
		}
		p.c.AddWithError(ist.decoder.Close)
	}
	return
}

// processInput handles the next packet of an input file
func (p *Pipeline) processInput(ctx context.Context, f *InputFile) (err error) {
	// Read
	var r demuxResult
	select {
	case r = <-f.packets:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Error
	if r.err != nil {
		if !errors.Is(r.err, io.EOF) {
			p.emit(astitranscoder.EventError(f, fmt.Errorf("astipipeline: reading %s failed: %w", f.Path, r.err)))
		} else if f.Loop != 0 {
			// Loop
			p.loopDuration(f)
			if f.Loop > 0 {
				f.Loop--
			}
			select {
			case f.restart <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return
		}

		// Flush decoders and finish stream copies
		for _, ist := range f.streams {
			if ist.DecodingNeeded != 0 {
				if err = p.processInputPacket(ist, nil); err != nil {
					return
				}
			}
			for _, ost := range p.outputStreams {
				if ost.Source == ist && !ost.EncodingNeeded() {
					p.finishOutputStream(ost)
				}
			}
		}
		f.eof = true
		return
	}
	pkt := r.pkt
	defer pkt.Release()

	// Get stream
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(f.streams) {
		// Streams appearing after the input has been probed are ignored
		return
	}
	ist := f.streams[pkt.StreamIndex]
	atomic.AddUint64(&ist.packetsRead, 1)
	if ist.Discard {
		return
	}

	// Offset
	tb := ist.Info.TimeBase
	if off := RescaleQ(f.TSOffset, TimeBaseQ, tb); off != NoPTS {
		if pkt.DTS != NoPTS {
			pkt.DTS += off
		}
		if pkt.PTS != NoPTS {
			pkt.PTS += off
		}
	}

	// Scale
	if pkt.PTS != NoPTS {
		pkt.PTS = int64(float64(pkt.PTS) * ist.TSScale)
	}
	if pkt.DTS != NoPTS {
		pkt.DTS = int64(float64(pkt.DTS) * ist.TSScale)
	}

	// Loops
	d := RescaleQ(f.duration, TimeBaseQ, tb)
	if pkt.PTS != NoPTS {
		pkt.PTS += d
		if pkt.PTS > ist.maxPTS {
			ist.maxPTS = pkt.PTS
		}
		if pkt.PTS < ist.minPTS {
			ist.minPTS = pkt.PTS
		}
	}
	if pkt.DTS != NoPTS {
		pkt.DTS += d
	}
	return p.processInputPacket(ist, pkt)
}

// processInputPacket updates the stream timestamps, decodes the packet and/or hands it to stream copies.
// A nil packet flushes the decoder.
func (p *Pipeline) processInputPacket(ist *InputStream, pkt *Packet) (err error) {
	tb := ist.Info.TimeBase

	// First timestamp
	if !ist.sawFirstTS {
		ist.dts, ist.pts = 0, 0
		if r := ist.Info.AvgFrameRate; r.Num > 0 && r.Den > 0 {
			ist.dts = -int64(float64(ist.Info.CodecParameters.VideoDelay) * float64(TimeBaseQ.Den) / r.Float64())
		}
		if pkt != nil && pkt.PTS != NoPTS && ist.DecodingNeeded == 0 {
			ist.dts += RescaleQ(pkt.PTS, tb, TimeBaseQ)
			ist.pts = ist.dts
		}
		ist.sawFirstTS = true
	}
	if ist.nextDTS == NoPTS {
		ist.nextDTS = ist.dts
	}
	if ist.nextPTS == NoPTS {
		ist.nextPTS = ist.pts
	}
	if pkt != nil && pkt.DTS != NoPTS {
		ist.dts = RescaleQ(pkt.DTS, tb, TimeBaseQ)
		ist.nextDTS = ist.dts
		if ist.MediaType() != astispecifier.MediaTypeVideo || ist.DecodingNeeded == 0 {
			ist.pts, ist.nextPTS = ist.dts, ist.dts
		}
	}

	// Decode
	if ist.DecodingNeeded != 0 {
		if err = p.decodePacket(ist, pkt); err != nil {
			return
		}

		// End of stream
		if pkt == nil {
			if err = p.sendFilterEOF(ist); err != nil {
				return fmt.Errorf("astipipeline: sending EOF to filters of %s failed: %w", ist.TargetName(), err)
			}
		}
	}

	// Predict the next timestamps of stream copies
	if ist.DecodingNeeded == 0 {
		ist.dts = ist.nextDTS
		switch ist.MediaType() {
		case astispecifier.MediaTypeAudio:
			if cp := ist.Info.CodecParameters; cp.SampleRate > 0 {
				ist.nextDTS += int64(TimeBaseQ.Den) * int64(cp.FrameSize) / int64(cp.SampleRate)
			} else if pkt != nil {
				ist.nextDTS += RescaleQ(pkt.Duration, tb, TimeBaseQ)
			}
		case astispecifier.MediaTypeVideo:
			if r := ist.FrameRate; r.Num > 0 && r.Den > 0 {
				ist.nextDTS += RescaleQ(1, r.Invert(), TimeBaseQ)
			} else if pkt != nil && pkt.Duration > 0 {
				ist.nextDTS += RescaleQ(pkt.Duration, tb, TimeBaseQ)
			} else if r := ist.Info.AvgFrameRate; r.Num > 0 && r.Den > 0 {
				ist.nextDTS += RescaleQ(1, r.Invert(), TimeBaseQ)
			}
		}
		ist.pts, ist.nextPTS = ist.dts, ist.nextDTS
	}

	// Stream copy
	if pkt == nil {
		return
	}
	for _, ost := range p.outputStreams {
		if ost.EncodingNeeded() || !p.checkOutputConstraints(ist, ost) {
			continue
		}
		if err = p.doStreamcopy(ist, ost, pkt); err != nil {
			return
		}
	}
	return
}

// checkOutputConstraints returns whether the output stream accepts data coming from the input stream
func (p *Pipeline) checkOutputConstraints(ist *InputStream, ost *OutputStream) bool {
	if ost.Source != ist || ost.finished {
		return false
	}
	if of := p.outputFiles[ost.FileIndex]; of.StartTime != NoPTS && ist.pts < of.StartTime {
		return false
	}
	return true
}

// decodePacket sends a packet to the decoder and handles every frame it outputs. Decoding errors are
// reported but not fatal.
func (p *Pipeline) decodePacket(ist *InputStream, pkt *Packet) (err error) {
	// Send
	if err = ist.decoder.SendPacket(pkt); err != nil {
		if !errors.Is(err, io.EOF) {
			p.emit(astitranscoder.EventError(ist, fmt.Errorf("astipipeline: error while decoding stream #%d:%d: %w", ist.FileIndex, ist.Index(), err)))
		}
		err = nil
		if pkt != nil {
			return
		}
	}

	// Receive
	for {
		// Receive frame
		f, errReceive := ist.decoder.ReceiveFrame()
		if errReceive != nil {
			if !errors.Is(errReceive, ErrAgain) && !errors.Is(errReceive, io.EOF) {
				p.emit(astitranscoder.EventError(ist, fmt.Errorf("astipipeline: error while decoding stream #%d:%d: %w", ist.FileIndex, ist.Index(), errReceive)))
			}
			return
		}

		// Handle frame
		err = p.handleDecodedFrame(ist, f, pkt)
		f.Release()
		if err != nil {
			return
		}
	}
}

// handleDecodedFrame fixes the frame timestamps and sends the frame to filter graphs
func (p *Pipeline) handleDecodedFrame(ist *InputStream, f *Frame, pkt *Packet) (err error) {
	// Update
	ist.gotOutput = true
	atomic.AddUint64(&ist.framesDecoded, 1)
	f.MediaType = ist.MediaType()

	switch f.MediaType {
	case astispecifier.MediaTypeAudio:
		// Samples are timestamped in 1/sample_rate
		if f.SampleRate <= 0 {
			f.SampleRate = ist.Info.CodecParameters.SampleRate
		}
		ist.nbSamples = f.NbSamples
		pts, ptsTB := f.PTS, f.TimeBase
		if pts != NoPTS && (ptsTB.Num <= 0 || ptsTB.Den <= 0) {
			ptsTB = ist.Info.TimeBase
		}
		if pts == NoPTS {
			if pkt != nil && pkt.PTS != NoPTS {
				pts, ptsTB = pkt.PTS, ist.Info.TimeBase
			} else if ist.dts != NoPTS {
				pts, ptsTB = ist.dts, TimeBaseQ
			}
		}
		f.TimeBase = Rational{Num: 1, Den: f.SampleRate}
		f.PTS = rescaleTS(pts, ptsTB, f.TimeBase)
		if f.SampleRate > 0 {
			ist.nextPTS += int64(TimeBaseQ.Den) * int64(f.NbSamples) / int64(f.SampleRate)
			ist.nextDTS = ist.nextPTS
		}
	case astispecifier.MediaTypeVideo:
		// Forced frame rate
		f.TimeBase = ist.Info.TimeBase
		if r := ist.FrameRate; r.Num > 0 && r.Den > 0 {
			f.PTS = ist.cfrNextPTS
			f.TimeBase = r.Invert()
			ist.cfrNextPTS++
		}
		if f.FrameRate.Num <= 0 {
			f.FrameRate = ist.frameRate()
		}
		if f.PTS != NoPTS {
			ist.pts = RescaleQ(f.PTS, f.TimeBase, TimeBaseQ)
			ist.nextPTS = ist.pts
		}
	}

	// Filters
	return p.sendFrameToFilters(ist, f)
}

// frameRate returns the best known frame rate of the stream
func (ist *InputStream) frameRate() Rational {
	for _, r := range []Rational{ist.FrameRate, ist.Info.AvgFrameRate, ist.Info.RealFrameRate} {
		if r.Num > 0 && r.Den > 0 {
			return r
		}
	}
	return Rational{}
}

// sendFrameToFilters pushes a decoded frame to every filter graph input fed by the stream. Frames are
// queued until the format of every input of the graph is known.
func (p *Pipeline) sendFrameToFilters(ist *InputStream, f *Frame) (err error) {
	for _, in := range ist.filters {
		// Format
		if !in.formatKnown {
			in.format = f.FrameParameters
			in.formatKnown = true
		}

		// Graph not configured yet
		g := in.Graph
		if g.graph == nil {
			if !g.inputsReady() {
				var c *Frame
				if c, err = f.Clone(); err != nil {
					return fmt.Errorf("astipipeline: cloning frame failed: %w", err)
				}
				in.frames = append(in.frames, c)
				continue
			}
			if err = p.configureGraph(g); err != nil {
				return
			}
		}

		// Push
		if err = g.graph.Push(in.index, f); err != nil {
			return fmt.Errorf("astipipeline: pushing frame to %s failed: %w", g.TargetName(), err)
		}
		in.framesPushed++
	}
	return
}

// sendFilterEOF signals the end of the stream to filter graphs. Graphs that have never been configured
// get the stream format from its codec parameters.
func (p *Pipeline) sendFilterEOF(ist *InputStream) (err error) {
	for _, in := range ist.filters {
		in.eof = true

		// Graph configured
		if in.Graph.graph != nil {
			if err = in.Graph.graph.Push(in.index, nil); err != nil {
				return fmt.Errorf("astipipeline: closing input of %s failed: %w", in.Graph.TargetName(), err)
			}
			continue
		}

		// Format
		if !in.formatKnown {
			if !ist.Info.CodecParameters.Usable() {
				return configurationError("cannot determine format of input stream %d:%d after EOF", ist.FileIndex, ist.Index())
			}
			in.format = ist.frameParameters()
			in.formatKnown = true
		}
	}
	return
}

// frameParameters returns the frame parameters deduced from the stream codec parameters
func (ist *InputStream) frameParameters() FrameParameters {
	cp := ist.Info.CodecParameters
	fp := FrameParameters{
		ChannelLayout:     cp.ChannelLayout,
		Channels:          cp.Channels,
		FrameRate:         ist.frameRate(),
		Height:            cp.Height,
		PixelFormat:       cp.PixelFormat,
		SampleAspectRatio: ist.Info.SampleAspectRatio,
		SampleFormat:      cp.SampleFormat,
		SampleRate:        cp.SampleRate,
		TimeBase:          ist.Info.TimeBase,
		Width:             cp.Width,
	}
	switch {
	case cp.MediaType == astispecifier.MediaTypeAudio && cp.SampleRate > 0:
		fp.TimeBase = Rational{Num: 1, Den: cp.SampleRate}
	case cp.MediaType == astispecifier.MediaTypeVideo && ist.FrameRate.Num > 0 && ist.FrameRate.Den > 0:
		fp.TimeBase = ist.FrameRate.Invert()
	}
	return fp
}

// configureGraph creates the backend graph and pushes what has been queued while waiting for it
func (p *Pipeline) configureGraph(g *FilterGraph) (err error) {
	// Configure
	if err = p.configureFilterGraph(g); err != nil {
		return
	}

	// Flush queues
	for _, in := range g.Inputs {
		fs := in.frames
		in.frames = nil
		for i, f := range fs {
			if err = g.graph.Push(in.index, f); err != nil {
				for _, v := range fs[i:] {
					v.Release()
				}
				return fmt.Errorf("astipipeline: pushing frame to %s failed: %w", g.TargetName(), err)
			}
			in.framesPushed++
			f.Release()
		}
		if in.eof {
			if err = g.graph.Push(in.index, nil); err != nil {
				return fmt.Errorf("astipipeline: closing input of %s failed: %w", g.TargetName(), err)
			}
		}
	}
	return
}

// releaseQueuedFrames releases frames still waiting for their graph to be configured
func (p *Pipeline) releaseQueuedFrames() {
	for _, g := range p.filterGraphs {
		for _, in := range g.Inputs {
			for _, f := range in.frames {
				f.Release()
			}
			in.frames = nil
		}
	}
}
