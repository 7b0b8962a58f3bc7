package astilibav

import (
	"testing"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
	astispecifier "github.com/asticode/go-astitranscoder/specifier"
	"github.com/stretchr/testify/assert"
)

func TestTimestamps(t *testing.T) {
	assert.Equal(t, astipipeline.NoPTS, timestampFromLibav(astiav.NoPtsValue))
	assert.Equal(t, int64(10), timestampFromLibav(10))
	assert.Equal(t, astiav.NoPtsValue, timestampToLibav(astipipeline.NoPTS))
	assert.Equal(t, int64(10), timestampToLibav(10))
}

func TestRationals(t *testing.T) {
	r := rationalToLibav(astipipeline.Rational{Num: 1, Den: 25})
	assert.Equal(t, 1, r.Num())
	assert.Equal(t, 25, r.Den())
	assert.Equal(t, astipipeline.Rational{Num: 1001, Den: 30000}, rationalFromLibav(astiav.NewRational(1001, 30000)))
}

func TestMediaTypes(t *testing.T) {
	for _, mt := range []astispecifier.MediaType{
		astispecifier.MediaTypeAttachment,
		astispecifier.MediaTypeAudio,
		astispecifier.MediaTypeData,
		astispecifier.MediaTypeSubtitle,
		astispecifier.MediaTypeVideo,
	} {
		assert.Equal(t, mt, mediaTypeFromLibav(mediaTypeToLibav(mt)))
	}
	assert.Equal(t, astispecifier.MediaTypeUnknown, mediaTypeFromLibav(astiav.MediaTypeUnknown))
}

func TestDispositions(t *testing.T) {
	fs := dispositionToLibav("forced+default+unknown")
	assert.True(t, fs.Has(astiav.DispositionFlagDefault))
	assert.True(t, fs.Has(astiav.DispositionFlagForced))
	assert.False(t, fs.Has(astiav.DispositionFlagDub))
	assert.Equal(t, []string{"default", "forced"}, dispositionsFromLibav(fs))
	assert.Empty(t, dispositionsFromLibav(dispositionToLibav("")))
}

func TestSampleFormats(t *testing.T) {
	f, ok := sampleFormatFromName("fltp")
	assert.True(t, ok)
	assert.Equal(t, astiav.SampleFormatFltp, f)
	_, ok = sampleFormatFromName("invalid")
	assert.False(t, ok)
	assert.Equal(t, "", sampleFormatName(astiav.SampleFormatNone))
}

func TestChannelLayouts(t *testing.T) {
	l, ok := channelLayoutFromName("stereo")
	assert.True(t, ok)
	assert.Equal(t, 2, l.NbChannels())
	assert.Equal(t, "stereo", channelLayoutName(l))
	_, ok = channelLayoutFromName("invalid")
	assert.False(t, ok)
	l, ok = defaultChannelLayout(6)
	assert.True(t, ok)
	assert.Equal(t, "5.1", channelLayoutName(l))
	_, ok = defaultChannelLayout(42)
	assert.False(t, ok)
}
