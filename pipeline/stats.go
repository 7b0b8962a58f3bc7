package astipipeline

import (
	"sync/atomic"

	"github.com/asticode/go-astikit"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

// Stat names
const (
	StatNameBytesWritten     = "astipipeline.bytes.written"
	StatNameFramesDecoded    = "astipipeline.frames.decoded"
	StatNameFramesDropped    = "astipipeline.frames.dropped"
	StatNameFramesDuplicated = "astipipeline.frames.duplicated"
	StatNamePacketsRead      = "astipipeline.packets.read"
	StatNamePacketsWritten   = "astipipeline.packets.written"
)

type pipelineStats struct {
	os     []astikit.StatOptions
	target interface{}
}

func (p *Pipeline) addStats(target interface{}, os ...astikit.StatOptions) {
	if p.o.Stater == nil {
		return
	}
	p.o.Stater.AddStats(target, os...)
	p.stats = append(p.stats, pipelineStats{
		os:     os,
		target: target,
	})
}

func (p *Pipeline) delStats() {
	if p.o.Stater == nil {
		return
	}
	for _, s := range p.stats {
		p.o.Stater.DelStats(s.target, s.os...)
	}
	p.stats = nil
}

func (p *Pipeline) addPipelineStats() {
	for _, ist := range p.inputStreams {
		if ist.Discard {
			continue
		}
		os := []astikit.StatOptions{
			{
				Metadata: &astikit.StatMetadata{
					Description: "Number of packets read per second",
					Label:       "Read rate",
					Name:        StatNamePacketsRead,
					Unit:        "pps",
				},
				Valuer: astikit.NewAtomicUint64RateStat(&ist.packetsRead),
			},
		}
		if ist.DecodingNeeded != 0 {
			os = append(os, astikit.StatOptions{
				Metadata: &astikit.StatMetadata{
					Description: "Number of frames decoded per second",
					Label:       "Decoded rate",
					Name:        StatNameFramesDecoded,
					Unit:        "fps",
				},
				Valuer: astikit.NewAtomicUint64RateStat(&ist.framesDecoded),
			})
		}
		p.addStats(ist, os...)
	}
}

func (p *Pipeline) addOutputStreamStats(ost *OutputStream) {
	os := []astikit.StatOptions{
		{
			Metadata: &astikit.StatMetadata{
				Description: "Number of bytes written per second",
				Label:       "Written bitrate",
				Name:        StatNameBytesWritten,
				Unit:        "Bps",
			},
			Valuer: astikit.NewAtomicUint64RateStat(&ost.dataSize),
		},
		{
			Metadata: &astikit.StatMetadata{
				Description: "Number of packets written per second",
				Label:       "Written rate",
				Name:        StatNamePacketsWritten,
				Unit:        "pps",
			},
			Valuer: astikit.NewAtomicUint64RateStat(&ost.packetsWritten),
		},
	}
	if ost.mediaType == astispecifier.MediaTypeVideo && ost.EncodingNeeded() {
		os = append(os,
			astikit.StatOptions{
				Metadata: &astikit.StatMetadata{
					Description: "Number of frames dropped per second",
					Label:       "Dropped rate",
					Name:        StatNameFramesDropped,
					Unit:        "fps",
				},
				Valuer: astikit.NewAtomicUint64RateStat(&ost.framesDropped),
			},
			astikit.StatOptions{
				Metadata: &astikit.StatMetadata{
					Description: "Number of frames duplicated per second",
					Label:       "Duplicated rate",
					Name:        StatNameFramesDuplicated,
					Unit:        "fps",
				},
				Valuer: astikit.NewAtomicUint64RateStat(&ost.framesDuplicated),
			},
		)
	}
	p.addStats(ost, os...)
}

func (p *Pipeline) addDroppedFrames(ost *OutputStream, n int64) {
	atomic.AddUint64(&ost.framesDropped, uint64(n))
}

func (p *Pipeline) addDuplicatedFrames(ost *OutputStream, n int64) {
	atomic.AddUint64(&ost.framesDuplicated, uint64(n))
}
