package astipipeline

import (
	"fmt"
	"math"
	"sync/atomic"

	astitranscoder "github.com/asticode/go-astitranscoder"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// checkInitOutputFile writes the header of the output file once every one of its streams is
// initialized, and flushes the packets queued in the meantime
func (p *Pipeline) checkInitOutputFile(of *OutputFile) (err error) {
	// Streams not initialized yet
	for _, ost := range of.streams {
		if !ost.initialized {
			return
		}
	}

	// Write header
	of.Container.SetMetadata(of.metadata)
	of.Container.SetChapters(of.chapters)
	if err = of.Container.WriteHeader(of.Options); err != nil {
		return resourceError("could not write header for output file #%d (incorrect codec parameters ?): %w", of.Index, err)
	}
	of.headerWritten = true

	// Flush queues
	for _, ost := range of.streams {
		ost.streamTB = of.Container.StreamTimeBase(ost.index)
		if ost.queue.Len() == 0 {
			ost.muxTimeBase = ost.streamTB
			continue
		}
		if err = ost.queue.Drain(func(pkt *Packet) error {
			return p.writePacket(of, ost, pkt, true)
		}); err != nil {
			return
		}
	}
	return
}

// WritePacket sends a packet of an output stream to the muxer. The packet is expressed in the stream
// mux time base and is owned by the pipeline afterwards. Packets are queued until the header of the
// output file has been written.
func (p *Pipeline) WritePacket(ost *OutputStream, pkt *Packet) error {
	return p.writePacket(p.outputFiles[ost.FileIndex], ost, pkt, false)
}

func (p *Pipeline) writePacket(of *OutputFile, ost *OutputStream, pkt *Packet, unqueue bool) (err error) {
	// Encoded video frames are counted when encoding
	if !(ost.mediaType == astispecifier.MediaTypeVideo && ost.EncodingNeeded()) && !unqueue {
		if ost.framesEncoded >= ost.MaxFrames {
			pkt.Release()
			return
		}
		ost.framesEncoded++
	}

	// Header not written yet
	if !of.headerWritten {
		if err = ost.queue.Enqueue(pkt); err != nil {
			pkt.Release()
			return &Error{Err: fmt.Errorf("astipipeline: too many packets buffered for output stream %d:%d: %w", ost.FileIndex, ost.index, err), Kind: KindOverflow}
		}
		return
	}
	defer pkt.Release()

	// Timestamps are dropped
	if ost.mediaType == astispecifier.MediaTypeVideo && ost.vsync == VSyncDrop && ost.EncodingNeeded() {
		pkt.PTS, pkt.DTS = NoPTS, NoPTS
	}

	// Constant frame rate
	if ost.mediaType == astispecifier.MediaTypeVideo && ost.EncodingNeeded() && (ost.vsync == VSyncCFR || ost.vsync == VSyncVSCFR) && ost.FrameRate.Num > 0 {
		pkt.Duration = RescaleQ(1, ost.FrameRate.Invert(), ost.muxTimeBase)
	}

	// Rescale
	pkt.PTS = rescaleTS(pkt.PTS, ost.muxTimeBase, ost.streamTB)
	pkt.DTS = rescaleTS(pkt.DTS, ost.muxTimeBase, ost.streamTB)
	pkt.Duration = RescaleQ(pkt.Duration, ost.muxTimeBase, ost.streamTB)

	// Fix timestamps
	if !of.Format.Flags.NoTimestamps {
		p.fixPacketTimestamps(of, ost, pkt)
	}

	// Update
	ost.lastMuxDTS = pkt.DTS
	atomic.AddUint64(&ost.dataSize, uint64(pkt.Size))
	atomic.AddUint64(&ost.packetsWritten, 1)
	pkt.StreamIndex = ost.index

	// Write
	if err = of.Container.WritePacket(pkt); err != nil {
		return resourceError("writing packet of output stream #%d:%d failed: %w", ost.FileIndex, ost.index, err)
	}
	return
}

// fixPacketTimestamps repairs a DTS greater than the PTS and makes sure DTS are monotonous
func (p *Pipeline) fixPacketTimestamps(of *OutputFile, ost *OutputStream, pkt *Packet) {
	// DTS greater than PTS
	if pkt.DTS != NoPTS && pkt.PTS != NoPTS && pkt.DTS > pkt.PTS {
		p.warn(ost, "invalid DTS: %d PTS: %d in output stream %d:%d, replacing by guess", pkt.DTS, pkt.PTS, ost.FileIndex, ost.index)
		pkt.PTS = median3(pkt.PTS, pkt.DTS, ost.lastMuxDTS+1)
		pkt.DTS = pkt.PTS
	}

	// Non monotonous DTS
	switch ost.mediaType {
	case astispecifier.MediaTypeAudio, astispecifier.MediaTypeVideo, astispecifier.MediaTypeSubtitle:
	default:
		return
	}
	if pkt.DTS == NoPTS || ost.lastMuxDTS == NoPTS {
		return
	}
	max := ost.lastMuxDTS
	if !of.Format.Flags.TSNonStrict {
		max++
	}
	if pkt.DTS < max {
		p.warn(ost, "non-monotonous DTS in output stream %d:%d; previous: %d, current: %d; changing to %d. This may result in incorrect timestamps in the output file", ost.FileIndex, ost.index, ost.lastMuxDTS, pkt.DTS, max)
		if pkt.PTS >= pkt.DTS && pkt.PTS < max {
			pkt.PTS = max
		}
		pkt.DTS = max
	}
}

func median3(a, b, c int64) int64 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		return a
	}
	return b
}

// doStreamcopy rescales an input packet to the output stream and writes it
func (p *Pipeline) doStreamcopy(ist *InputStream, ost *OutputStream, pkt *Packet) (err error) {
	of := p.outputFiles[ost.FileIndex]
	f := p.inputFiles[ist.FileIndex]
	startTime := of.startTime()
	ostStartTime := RescaleQ(startTime, TimeBaseQ, ost.muxTimeBase)

	// Output starts with a key frame
	if ost.framesEncoded == 0 && !pkt.Key {
		return
	}

	// Packets before the output start time are dropped
	if ost.framesEncoded == 0 {
		if pkt.PTS == NoPTS {
			if ist.pts < startTime {
				return
			}
		} else if pkt.PTS < RescaleQ(startTime, TimeBaseQ, ist.Info.TimeBase) {
			return
		}
	}

	// Recording time
	if of.RecordingTime != math.MaxInt64 && ist.pts >= of.RecordingTime+startTime {
		p.closeOutputStream(ost)
		return
	}
	if f.RecordingTime != math.MaxInt64 && ist.pts >= f.RecordingTime {
		p.closeOutputStream(ost)
		return
	}

	// Force the input stream PTS
	if ost.mediaType == astispecifier.MediaTypeVideo {
		ost.syncOpts++
	}

	// Clone
	var o *Packet
	if o, err = pkt.Clone(); err != nil {
		return fmt.Errorf("astipipeline: cloning packet failed: %w", err)
	}

	// Rescale
	if pkt.PTS != NoPTS {
		o.PTS = RescaleQ(pkt.PTS, ist.Info.TimeBase, ost.muxTimeBase) - ostStartTime
	}
	if pkt.DTS == NoPTS {
		o.DTS = RescaleQ(ist.dts, TimeBaseQ, ost.muxTimeBase)
	} else {
		o.DTS = RescaleQ(pkt.DTS, ist.Info.TimeBase, ost.muxTimeBase)
	}
	o.DTS -= ostStartTime
	o.Duration = RescaleQ(pkt.Duration, ist.Info.TimeBase, ost.muxTimeBase)
	return p.writePacket(of, ost, o, false)
}

// closeOutputStream stops feeding the output stream. When the file is limited to its shortest
// stream, its recording time is shortened accordingly.
func (p *Pipeline) closeOutputStream(ost *OutputStream) {
	ost.finished = true
	of := p.outputFiles[ost.FileIndex]
	if !of.Shortest {
		return
	}

	// Get end
	end := int64(math.MaxInt64)
	switch {
	case ost.EncodingNeeded() && ost.encoderTB.Num > 0:
		end = RescaleQ(ost.syncOpts, ost.encoderTB, TimeBaseQ)
	case ost.lastMuxDTS != NoPTS && ost.streamTB.Num > 0:
		end = RescaleQ(ost.lastMuxDTS, ost.streamTB, TimeBaseQ)
	}
	if end < of.RecordingTime {
		of.RecordingTime = end
	}
}

// finishOutputStream marks the output stream as done. When the file is limited to its shortest
// stream, every stream of the file is done.
func (p *Pipeline) finishOutputStream(ost *OutputStream) {
	ost.finished = true
	if of := p.outputFiles[ost.FileIndex]; of.Shortest {
		for _, v := range of.streams {
			v.finished = true
		}
	}
}

// writeTrailers finishes every output file whose header has been written
func (p *Pipeline) writeTrailers() (err error) {
	for _, of := range p.outputFiles {
		// Header not written
		if !of.headerWritten {
			p.emit(astitranscoder.EventError(of, fmt.Errorf("astipipeline: nothing was written into output file %d (%s), because at least one of its streams received no packets", of.Index, of.Path)))
			continue
		}

		// Write trailer
		if err = of.Container.WriteTrailer(); err != nil {
			return resourceError("error writing trailer of %s: %w", of.Path, err)
		}
	}
	return
}
