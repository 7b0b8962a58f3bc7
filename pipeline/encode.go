package astipipeline

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	astioptions "github.com/asticode/go-astitranscoder/options"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// initOutputStream initializes the encoder or the stream copy of an output stream, and writes the
// header of its output file once every stream of the file is initialized
func (p *Pipeline) initOutputStream(ost *OutputStream) (err error) {
	// Already initialized
	if ost.initialized {
		return
	}

	// Init
	if ost.EncodingNeeded() {
		err = p.initEncoder(ost)
	} else {
		err = p.initStreamCopy(ost)
	}
	if err != nil {
		return
	}
	ost.initialized = true

	// Stats
	p.addOutputStreamStats(ost)
	return p.checkInitOutputFile(p.outputFiles[ost.FileIndex])
}

// disposition returns the disposition of the output stream
func (p *Pipeline) disposition(ost *OutputStream) string {
	// Set by the user
	if ost.Disposition != "" {
		return ost.Disposition
	}

	// Inherited
	if ost.Source != nil {
		return strings.Join(ost.Source.Info.Dispositions, "+")
	}

	// The only stream of its type is the default one
	if ost.mediaType == astispecifier.MediaTypeVideo || ost.mediaType == astispecifier.MediaTypeAudio {
		for _, v := range p.outputFiles[ost.FileIndex].streams {
			if v != ost && v.mediaType == ost.mediaType {
				return ""
			}
		}
		return DispositionDefault
	}
	return ""
}

func (p *Pipeline) initEncoder(ost *OutputStream) (err error) {
	// Filter graph output
	of := p.outputFiles[ost.FileIndex]
	if ost.Filter == nil || ost.Filter.Graph.graph == nil {
		return fmt.Errorf("astipipeline: filter graph of %s is not configured", ost.TargetName())
	}
	fp := ost.Filter.Graph.graph.OutputParameters(ost.Filter.index)

	// Metadata
	if _, ok := ost.metadata["encoder"]; !ok {
		ost.metadata["encoder"] = "astitranscoder " + ost.Codec.Name
	}

	// Media type specific
	eo := EncoderOptions{
		Codec:        ost.Codec,
		CodecTag:     ost.CodecTag,
		GlobalHeader: ost.globalHeader,
		Input:        fp,
		MediaType:    ost.mediaType,
		Options:      ost.EncoderOptions,
		Qscale:       ost.Qscale,
		StatsIn:      ost.StatsIn,
	}
	switch ost.mediaType {
	case astispecifier.MediaTypeVideo:
		// Frame rate
		eo.FrameRate, _ = p.NegotiateFrameRate(ost, fp.FrameRate)
		ost.vsync = p.videoSyncMethod(ost)

		// Time base
		switch {
		case ost.TimeBase.Num > 0:
			eo.TimeBase = ost.TimeBase
		case eo.FrameRate.Num > 0 && eo.FrameRate.Den > 0:
			eo.TimeBase = eo.FrameRate.Invert()
		default:
			eo.TimeBase = fp.TimeBase
		}
		if ost.vsync == VSyncPassthrough || ost.vsync == VSyncVFR {
			if eo.FrameRate.Num > 0 && eo.FrameRate.Float64() > 1000 {
				p.warn(ost, "frame rate very high for a muxer not efficiently supporting it. Please consider specifying a lower framerate, a different muxer or -vsync 2")
			}
		}
	case astispecifier.MediaTypeAudio:
		if ost.TimeBase.Num > 0 {
			eo.TimeBase = ost.TimeBase
		} else {
			eo.TimeBase = Rational{Num: 1, Den: fp.SampleRate}
		}
	}
	if eo.TimeBase.Num <= 0 || eo.TimeBase.Den <= 0 {
		return configurationError("invalid time base %s for output stream #%d:%d", eo.TimeBase, ost.FileIndex, ost.index)
	}

	// Create encoder
	if ost.encoder, err = p.o.Encoders.NewEncoder(eo); err != nil {
		return resourceError("error while opening encoder for output stream #%d:%d - maybe incorrect parameters such as bit_rate, rate, width or height: %w", ost.FileIndex, ost.index, err)
	}
	p.c.AddWithError(ost.encoder.Close)
	ost.encoderTB = eo.TimeBase
	ost.muxTimeBase = eo.TimeBase

	// Forced key frames
	if ost.ForceKeyFrames != "" {
		if ost.forcedKeyFrames, err = p.parseForcedKeyFrames(of, ost); err != nil {
			return
		}
	}

	// Stream parameters
	if err = of.Container.SetStreamParameters(ost.index, OutputStreamParameters{
		AvgFrameRate:      eo.FrameRate,
		BitstreamFilters:  ost.BitstreamFilters,
		CodecParameters:   ost.encoder.Parameters(),
		Disposition:       p.disposition(ost),
		Metadata:          ost.metadata,
		SampleAspectRatio: fp.SampleAspectRatio,
		TimeBase:          eo.TimeBase,
	}); err != nil {
		return resourceError("error initializing output stream #%d:%d: %w", ost.FileIndex, ost.index, err)
	}
	return
}

func (p *Pipeline) initStreamCopy(ost *OutputStream) (err error) {
	// No source
	of := p.outputFiles[ost.FileIndex]
	ist := ost.Source
	if ist == nil {
		return fmt.Errorf("astipipeline: stream copy of %s has no source", ost.TargetName())
	}

	// Codec parameters
	cp := ist.Info.CodecParameters
	if ost.CodecTag != 0 {
		cp.CodecTag = ost.CodecTag
	}

	// Time base
	tb := ist.Info.TimeBase
	if ost.TimeBase.Num > 0 {
		tb = ost.TimeBase
	}

	// Frame rate
	fr := ost.FrameRate
	if fr.Num <= 0 {
		fr = ist.FrameRate
	}
	if fr.Num <= 0 {
		fr = ist.Info.AvgFrameRate
	}

	// Stream parameters
	if err = of.Container.SetStreamParameters(ost.index, OutputStreamParameters{
		AvgFrameRate:      fr,
		BitstreamFilters:  ost.BitstreamFilters,
		CodecParameters:   cp,
		Disposition:       p.disposition(ost),
		Metadata:          ost.metadata,
		SampleAspectRatio: ist.Info.SampleAspectRatio,
		TimeBase:          tb,
	}); err != nil {
		return resourceError("error setting up codec context options for output stream #%d:%d: %w", ost.FileIndex, ost.index, err)
	}
	ost.encoderTB = ist.Info.TimeBase
	ost.muxTimeBase = ist.Info.TimeBase
	return
}

// parseForcedKeyFrames parses a comma separated list of times, "chapters[+offset]" being replaced by
// the start of every chapter of the output file. Times are returned sorted in the encoder time base.
func (p *Pipeline) parseForcedKeyFrames(of *OutputFile, ost *OutputStream) (pts []int64, err error) {
	for _, item := range strings.Split(ost.ForceKeyFrames, ",") {
		// Chapters
		if strings.HasPrefix(item, "chapters") {
			var offset int64
			if v := strings.TrimPrefix(item, "chapters"); v != "" {
				if offset, err = astioptions.ParseTime(v); err != nil {
					return nil, configurationError("invalid chapters offset %s in force_key_frames: %w", v, err)
				}
			}
			for _, c := range of.chapters {
				pts = append(pts, RescaleQ(c.Start, c.TimeBase, ost.encoderTB)+RescaleQ(offset, TimeBaseQ, ost.encoderTB))
			}
			continue
		}

		// Time
		var t int64
		if t, err = astioptions.ParseTime(item); err != nil {
			return nil, configurationError("invalid time %s in force_key_frames: %w", item, err)
		}
		pts = append(pts, RescaleQ(t, TimeBaseQ, ost.encoderTB))
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i] < pts[j] })
	return
}

// reapFilters pulls every frame available in configured filter graphs and encodes them
func (p *Pipeline) reapFilters(flush bool) (err error) {
	for _, ost := range p.outputStreams {
		// Not configured
		if ost.Filter == nil || ost.Filter.Graph.graph == nil {
			continue
		}

		// Init
		if err = p.initOutputStream(ost); err != nil {
			return
		}

		// Pull
		if err = p.reapOutputFilter(ost, flush); err != nil {
			return
		}
	}
	return
}

func (p *Pipeline) reapOutputFilter(ost *OutputStream, flush bool) (err error) {
	of := p.outputFiles[ost.FileIndex]
	for {
		// Pull
		f, errPull := ost.Filter.Graph.graph.Pull(ost.Filter.index)
		if errPull != nil {
			switch {
			case errors.Is(errPull, io.EOF):
				ost.Filter.eof = true
			case !errors.Is(errPull, ErrAgain):
				p.warn(ost, "error pulling frame from %s: %s", ost.Filter.Graph.TargetName(), errPull)
			}
			return
		}

		// Finished
		if ost.finished {
			f.Release()
			continue
		}

		// Encode
		switch ost.mediaType {
		case astispecifier.MediaTypeVideo:
			err = p.doVideoOut(of, ost, f)
		case astispecifier.MediaTypeAudio:
			err = p.doAudioOut(of, ost, f)
		}
		f.Release()
		if err != nil {
			return
		}
	}
}

// startTime returns the output start time, 0 when unset
func (of *OutputFile) startTime() int64 {
	if of.StartTime == NoPTS {
		return 0
	}
	return of.StartTime
}

func (p *Pipeline) doVideoOut(of *OutputFile, ost *OutputStream, f *Frame) (err error) {
	// Timestamps in the encoder time base
	syncIPTS := float64(ost.syncOpts)
	if f.PTS != NoPTS && f.TimeBase.Num > 0 {
		syncIPTS = float64(f.PTS)*f.TimeBase.Float64()/ost.encoderTB.Float64() - float64(of.startTime())/float64(TimeBaseQ.Den)/ost.encoderTB.Float64()
	}

	// Duration in the encoder time base
	duration := 1.0
	if r := ost.Filter.Graph.graph.OutputParameters(ost.Filter.index).FrameRate; r.Num > 0 && r.Den > 0 {
		duration = 1 / (r.Float64() * ost.encoderTB.Float64())
	} else if f.Duration > 0 && f.TimeBase.Num > 0 {
		if d := math.Round(float64(f.Duration) * f.TimeBase.Float64() / ost.encoderTB.Float64()); d > 0 {
			duration = d
		}
	}

	// Sync
	nbFrames := ost.videoSync(syncIPTS, duration)
	if nbFrames == 0 {
		p.addDroppedFrames(ost, 1)
		return
	} else if nbFrames > 1 {
		p.addDuplicatedFrames(ost, nbFrames-1)
	}

	// Encode
	for i := int64(0); i < nbFrames; i++ {
		// Recording time
		if !p.checkRecordingTime(of, ost) {
			return
		}

		// Forced key frame
		f.PTS = ost.syncOpts
		f.TimeBase = ost.encoderTB
		f.Key = false
		if ost.forcedKeyFrameIndex < len(ost.forcedKeyFrames) && f.PTS >= ost.forcedKeyFrames[ost.forcedKeyFrameIndex] {
			ost.forcedKeyFrameIndex++
			f.Key = true
		}

		// Encode
		if err = p.encodeFrame(of, ost, f); err != nil {
			return
		}
		ost.syncOpts++
		ost.framesEncoded++
	}
	return
}

func (p *Pipeline) doAudioOut(of *OutputFile, ost *OutputStream, f *Frame) (err error) {
	// Recording time
	if !p.checkRecordingTime(of, ost) {
		return
	}

	// Timestamps in the encoder time base
	if f.PTS == NoPTS {
		f.PTS = ost.syncOpts
	} else {
		f.PTS = rescaleTS(f.PTS, f.TimeBase, ost.encoderTB) - RescaleQ(of.startTime(), TimeBaseQ, ost.encoderTB)
	}
	f.TimeBase = ost.encoderTB
	ost.syncOpts = f.PTS + int64(f.NbSamples)
	ost.framesEncoded++

	// Encode
	return p.encodeFrame(of, ost, f)
}

// checkRecordingTime closes the output stream once the output recording time has been reached
func (p *Pipeline) checkRecordingTime(of *OutputFile, ost *OutputStream) bool {
	if of.RecordingTime != math.MaxInt64 && CompareTS(ost.syncOpts, ost.encoderTB, of.RecordingTime, TimeBaseQ) >= 0 {
		p.closeOutputStream(ost)
		return false
	}
	return true
}

// encodeFrame sends a frame to the encoder and writes the packets it outputs. A nil frame flushes
// the encoder.
func (p *Pipeline) encodeFrame(of *OutputFile, ost *OutputStream, f *Frame) (err error) {
	// Send
	if err = ost.encoder.SendFrame(f); err != nil && !(f == nil && errors.Is(err, io.EOF)) {
		return fmt.Errorf("astipipeline: error while encoding output stream #%d:%d: %w", ost.FileIndex, ost.index, err)
	}
	err = nil

	// Receive
	for {
		// Receive packet
		pkt, errReceive := ost.encoder.ReceivePacket()
		if errReceive != nil {
			if errors.Is(errReceive, ErrAgain) || errors.Is(errReceive, io.EOF) {
				return
			}
			return fmt.Errorf("astipipeline: error while encoding output stream #%d:%d: %w", ost.FileIndex, ost.index, errReceive)
		}

		// Pass log
		if ost.passLog != nil {
			if se, ok := ost.encoder.(StatsEncoder); ok {
				if err = ost.passLog.Write(se.StatsOut()); err != nil {
					pkt.Release()
					return
				}
			}
		}

		// Write
		pkt.PTS = rescaleTS(pkt.PTS, ost.encoderTB, ost.muxTimeBase)
		pkt.DTS = rescaleTS(pkt.DTS, ost.encoderTB, ost.muxTimeBase)
		pkt.Duration = RescaleQ(pkt.Duration, ost.encoderTB, ost.muxTimeBase)
		if err = p.writePacket(of, ost, pkt, false); err != nil {
			return
		}
	}
}

// flushEncoders drains every encoder. Streams that have never been initialized are initialized
// first so that their file header can be written.
func (p *Pipeline) flushEncoders() (err error) {
	for _, ost := range p.outputStreams {
		// Only encoded streams
		if !ost.EncodingNeeded() {
			continue
		}

		// Not initialized
		if !ost.initialized {
			p.warn(ost, "finishing stream %d:%d without any data written to it", ost.FileIndex, ost.index)

			// Configure the graph with what is known about its inputs
			g := ost.Filter.Graph
			if g.graph == nil {
				for _, in := range g.Inputs {
					if !in.formatKnown && in.Stream.Info.CodecParameters.Usable() {
						in.format = in.Stream.frameParameters()
						in.formatKnown = true
					}
				}
				if !g.inputsReady() {
					continue
				}
				if err = p.configureGraph(g); err != nil {
					return
				}
				p.finishOutputStream(ost)
			}
			if err = p.initOutputStream(ost); err != nil {
				return
			}
		}

		// Flush
		if ost.encoder == nil {
			continue
		}
		if err = p.encodeFrame(p.outputFiles[ost.FileIndex], ost, nil); err != nil {
			return
		}
	}
	return
}
