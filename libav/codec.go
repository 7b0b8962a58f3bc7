package astilibav

import (
	"github.com/asticode/go-astiav"
	astioptions "github.com/asticode/go-astitranscoder/options"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
)

var (
	bitmapSubtitleCodecs = map[string]bool{
		"dvb_subtitle":      true,
		"dvd_subtitle":      true,
		"hdmv_pgs_subtitle": true,
		"xsub":              true,
	}
	propertylessCodecs = map[string]bool{
		"bin_data":       true,
		"dvb_teletext":   true,
		"dvd_nav_packet": true,
		"epg":            true,
		"otf":            true,
		"scte_35":        true,
		"smpte_klv":      true,
		"timed_id3":      true,
		"ttf":            true,
	}
	textSubtitleCodecs = map[string]bool{
		"ass":       true,
		"jacosub":   true,
		"microdvd":  true,
		"mov_text":  true,
		"mpl2":      true,
		"pjs":       true,
		"realtext":  true,
		"sami":      true,
		"ssa":       true,
		"stl":       true,
		"subrip":    true,
		"subviewer": true,
		"text":      true,
		"ttml":      true,
		"vplayer":   true,
		"webvtt":    true,
	}
)

// codecIDByName looks a codec id up by its descriptor name
func codecIDByName(name string) (id astiav.CodecID, ok bool) {
	if name == "" {
		return
	}
	for _, fn := range []func(string) *astiav.Codec{astiav.FindDecoderByName, astiav.FindEncoderByName} {
		if c := fn(name); c != nil && c.ID().Name() == name {
			return c.ID(), true
		}
	}
	return
}

func codecFromLibav(c *astiav.Codec) (o astipipeline.Codec) {
	o = astipipeline.Codec{
		CodecName:      c.ID().Name(),
		MediaType:      mediaTypeFromLibav(c.ID().MediaType()),
		Name:           c.Name(),
		PrivateOptions: privateCodecOptions[c.Name()],
	}
	for _, v := range c.ChannelLayouts() {
		if n := channelLayoutName(v); n != "" {
			o.ChannelLayouts = append(o.ChannelLayouts, n)
		}
	}
	for _, v := range c.PixelFormats() {
		o.PixelFormats = append(o.PixelFormats, pixelFormatName(v))
	}
	for _, v := range c.SampleFormats() {
		o.SampleFormats = append(o.SampleFormats, sampleFormatName(v))
	}
	return
}

func findCodec(c *astiav.Codec) (astipipeline.Codec, bool) {
	if c == nil {
		return astipipeline.Codec{}, false
	}
	return codecFromLibav(c), true
}

// BitstreamFilterExists implements the astipipeline.CodecRegistry interface
func (s *SDK) BitstreamFilterExists(name string) bool {
	return astiav.FindBitStreamFilterByName(name) != nil
}

// DescriptorByName implements the astipipeline.CodecRegistry interface
func (s *SDK) DescriptorByName(name string) (d astipipeline.Descriptor, ok bool) {
	var id astiav.CodecID
	if id, ok = codecIDByName(name); !ok {
		return
	}
	d = astipipeline.Descriptor{
		BitmapSubtitle: bitmapSubtitleCodecs[name],
		MediaType:      mediaTypeFromLibav(id.MediaType()),
		Name:           name,
		NoProperties:   propertylessCodecs[name],
		TextSubtitle:   textSubtitleCodecs[name],
	}
	return
}

// FindDecoder implements the astipipeline.CodecRegistry interface
func (s *SDK) FindDecoder(codecName string) (astipipeline.Codec, bool) {
	id, ok := codecIDByName(codecName)
	if !ok {
		return astipipeline.Codec{}, false
	}
	return findCodec(astiav.FindDecoder(id))
}

// FindDecoderByName implements the astipipeline.CodecRegistry interface
func (s *SDK) FindDecoderByName(name string) (astipipeline.Codec, bool) {
	return findCodec(astiav.FindDecoderByName(name))
}

// FindEncoder implements the astipipeline.CodecRegistry interface
func (s *SDK) FindEncoder(codecName string) (astipipeline.Codec, bool) {
	id, ok := codecIDByName(codecName)
	if !ok {
		return astipipeline.Codec{}, false
	}
	return findCodec(astiav.FindEncoder(id))
}

// FindEncoderByName implements the astipipeline.CodecRegistry interface
func (s *SDK) FindEncoderByName(name string) (astipipeline.Codec, bool) {
	return findCodec(astiav.FindEncoderByName(name))
}

// IsPixelFormat implements the astipipeline.CodecRegistry interface
func (s *SDK) IsPixelFormat(name string) bool {
	_, ok := pixelFormatFromName(name)
	return ok
}

// IsSampleFormat implements the astipipeline.CodecRegistry interface
func (s *SDK) IsSampleFormat(name string) bool {
	_, ok := sampleFormatFromName(name)
	return ok
}

// IsCodecOption implements the astioptions.Classifier interface
func (s *SDK) IsCodecOption(name string) bool {
	if _, ok := genericCodecOptions[name]; ok {
		return true
	}
	_, ok := privateCodecOptionNames[name]
	return ok
}

// IsFormatOption implements the astioptions.Classifier interface
func (s *SDK) IsFormatOption(name string) bool {
	return formatOptions[name]
}

// CodecOption implements the astioptions.CodecOptionFinder interface
func (s *SDK) CodecOption(name string) (i astioptions.CodecOptionInfo, ok bool) {
	i, ok = genericCodecOptions[name]
	return
}

// FormatExists implements the astipipeline.Demuxer interface
func (s *SDK) FormatExists(name string) bool {
	return astiav.FindInputFormat(name) != nil
}

// FormatHasOption implements the astipipeline.Demuxer interface
func (s *SDK) FormatHasOption(format, option string) bool {
	return demuxerHasOption(format, option)
}
