package astilibav

import (
	"sort"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
)

func rationalFromLibav(r astiav.Rational) astipipeline.Rational {
	return astipipeline.Rational{Num: r.Num(), Den: r.Den()}
}

func rationalToLibav(r astipipeline.Rational) astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

func timestampFromLibav(v int64) int64 {
	if v == astiav.NoPtsValue {
		return astipipeline.NoPTS
	}
	return v
}

func timestampToLibav(v int64) int64 {
	if v == astipipeline.NoPTS {
		return astiav.NoPtsValue
	}
	return v
}

func mediaTypeFromLibav(t astiav.MediaType) astispecifier.MediaType {
	switch t {
	case astiav.MediaTypeVideo:
		return astispecifier.MediaTypeVideo
	case astiav.MediaTypeAudio:
		return astispecifier.MediaTypeAudio
	case astiav.MediaTypeSubtitle:
		return astispecifier.MediaTypeSubtitle
	case astiav.MediaTypeData:
		return astispecifier.MediaTypeData
	case astiav.MediaTypeAttachment:
		return astispecifier.MediaTypeAttachment
	}
	return astispecifier.MediaTypeUnknown
}

func mediaTypeToLibav(t astispecifier.MediaType) astiav.MediaType {
	switch t {
	case astispecifier.MediaTypeVideo:
		return astiav.MediaTypeVideo
	case astispecifier.MediaTypeAudio:
		return astiav.MediaTypeAudio
	case astispecifier.MediaTypeSubtitle:
		return astiav.MediaTypeSubtitle
	case astispecifier.MediaTypeData:
		return astiav.MediaTypeData
	case astispecifier.MediaTypeAttachment:
		return astiav.MediaTypeAttachment
	}
	return astiav.MediaTypeUnknown
}

func pixelFormatName(f astiav.PixelFormat) string {
	if f == astiav.PixelFormatNone {
		return ""
	}
	return f.String()
}

func pixelFormatFromName(n string) (astiav.PixelFormat, bool) {
	if n == "" {
		return astiav.PixelFormatNone, false
	}
	f := astiav.FindPixelFormatByName(n)
	return f, f != astiav.PixelFormatNone
}

var sampleFormats = []astiav.SampleFormat{
	astiav.SampleFormatDbl,
	astiav.SampleFormatDblp,
	astiav.SampleFormatFlt,
	astiav.SampleFormatFltp,
	astiav.SampleFormatS16,
	astiav.SampleFormatS16P,
	astiav.SampleFormatS32,
	astiav.SampleFormatS32P,
	astiav.SampleFormatS64,
	astiav.SampleFormatS64P,
	astiav.SampleFormatU8,
	astiav.SampleFormatU8P,
}

func sampleFormatName(f astiav.SampleFormat) string {
	if f == astiav.SampleFormatNone {
		return ""
	}
	return f.String()
}

func sampleFormatFromName(n string) (astiav.SampleFormat, bool) {
	for _, f := range sampleFormats {
		if f.String() == n {
			return f, true
		}
	}
	return astiav.SampleFormatNone, false
}

// Only native layouts can be built back from their name
var channelLayouts = []astiav.ChannelLayout{
	astiav.ChannelLayoutMono,
	astiav.ChannelLayoutStereo,
	astiav.ChannelLayout2Point1,
	astiav.ChannelLayoutSurround,
	astiav.ChannelLayoutQuad,
	astiav.ChannelLayout5Point0,
	astiav.ChannelLayout5Point1,
	astiav.ChannelLayout5Point0Back,
	astiav.ChannelLayout5Point1Back,
	astiav.ChannelLayout7Point1,
}

var (
	channelLayoutsByName   map[string]astiav.ChannelLayout
	channelLayoutsByNameMu = &sync.Mutex{}
)

// channelLayoutName returns an empty string when the layout only specifies a number of channels
func channelLayoutName(l astiav.ChannelLayout) string {
	if l.NbChannels() <= 0 {
		return ""
	}
	n := l.String()
	if strings.HasSuffix(n, " channels") {
		return ""
	}
	return n
}

func channelLayoutFromName(n string) (astiav.ChannelLayout, bool) {
	channelLayoutsByNameMu.Lock()
	defer channelLayoutsByNameMu.Unlock()
	if channelLayoutsByName == nil {
		channelLayoutsByName = make(map[string]astiav.ChannelLayout)
		for _, l := range channelLayouts {
			channelLayoutsByName[l.String()] = l
		}
	}
	l, ok := channelLayoutsByName[n]
	return l, ok
}

// defaultChannelLayout returns the native layout of a number of channels
func defaultChannelLayout(channels int) (astiav.ChannelLayout, bool) {
	for _, l := range channelLayouts {
		if l.NbChannels() == channels {
			return l, true
		}
	}
	return astiav.ChannelLayout{}, false
}

func formatFlagsFromLibav(fs astiav.IOFormatFlags) astipipeline.FormatFlags {
	return astipipeline.FormatFlags{
		GlobalHeader: fs.Has(astiav.IOFormatFlagGlobalheader),
		NeedNumber:   fs.Has(astiav.IOFormatFlagNeednumber),
		NoFile:       fs.Has(astiav.IOFormatFlagNofile),
		NoStreams:    fs.Has(astiav.IOFormatFlagNostreams),
		NoTimestamps: fs.Has(astiav.IOFormatFlagNotimestamps),
		SeekToPTS:    fs.Has(astiav.IOFormatFlagSeekToPts),
		TSNonStrict:  fs.Has(astiav.IOFormatFlagTsNonstrict),
		VariableFPS:  fs.Has(astiav.IOFormatFlagVariableFps),
	}
}

var dispositionFlags = map[string]astiav.DispositionFlag{
	"attached_pic":     astiav.DispositionFlagAttachedPic,
	"captions":         astiav.DispositionFlagCaptions,
	"clean_effects":    astiav.DispositionFlagCleanEffects,
	"comment":          astiav.DispositionFlagComment,
	"default":          astiav.DispositionFlagDefault,
	"descriptions":     astiav.DispositionFlagDescriptions,
	"dub":              astiav.DispositionFlagDub,
	"forced":           astiav.DispositionFlagForced,
	"hearing_impaired": astiav.DispositionFlagHearingImpaired,
	"karaoke":          astiav.DispositionFlagKaraoke,
	"lyrics":           astiav.DispositionFlagLyrics,
	"metadata":         astiav.DispositionFlagMetadata,
	"original":         astiav.DispositionFlagOriginal,
	"visual_impaired":  astiav.DispositionFlagVisualImpaired,
}

func dispositionsFromLibav(fs astiav.DispositionFlags) (ds []string) {
	for n, f := range dispositionFlags {
		if fs.Has(f) {
			ds = append(ds, n)
		}
	}
	sort.Strings(ds)
	return
}

// dispositionToLibav parses "+" separated disposition names, unknown names being ignored
func dispositionToLibav(s string) (fs astiav.DispositionFlags) {
	fs = astiav.NewDispositionFlags()
	for _, n := range strings.Split(s, "+") {
		if f, ok := dispositionFlags[strings.TrimSpace(n)]; ok {
			fs = fs.Add(f)
		}
	}
	return
}
