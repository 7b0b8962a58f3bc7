package astipipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadataTarget(t *testing.T) {
	for s, e := range map[string]metadataTarget{
		"":      {typ: metadataTypeGlobal},
		"g":     {typ: metadataTypeGlobal},
		"s":     {typ: metadataTypeStream},
		"s:a:1": {streamSpec: "a:1", typ: metadataTypeStream},
		"c:2":   {index: 2, typ: metadataTypeChapter},
		"p:1":   {index: 1, typ: metadataTypeProgram},
	} {
		v, err := parseMetadataTarget(s)
		require.NoError(t, err, s)
		assert.Equal(t, e, v, s)
	}
	_, err := parseMetadataTarget("x")
	assert.EqualError(t, err, "astipipeline: invalid metadata type x")
	_, err = parseMetadataTarget("sa")
	assert.EqualError(t, err, "astipipeline: invalid metadata specifier sa")
}

func newMetadataSDK() *mockedSDK {
	s := newMockedSDK()
	v := videoStream("h264")
	v.Metadata = map[string]string{"encoder": "x", "language": "fre"}
	a := audioStream("aac", 2)
	a.Metadata = map[string]string{"language": "eng"}
	i := s.addInput("in0", []StreamInfo{v, a}, nil)
	i.metadata = map[string]string{"creation_time": "2020", "duration": "10", "title": "t"}
	i.chapters = []Chapter{
		{End: 5000, ID: 1, Metadata: map[string]string{"title": "c1"}, Start: 0, TimeBase: Rational{Num: 1, Den: 1000}},
		{End: 10000, ID: 2, Metadata: map[string]string{"title": "c2"}, Start: 5000, TimeBase: Rational{Num: 1, Den: 1000}},
	}
	return s
}

func TestAutomaticMetadata(t *testing.T) {
	s := newMetadataSDK()

	// Everything is copied
	p, _ := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "out.mp4"))
	of := p.OutputFiles()[0]
	assert.Equal(t, map[string]string{"duration": "10", "title": "t"}, of.Metadata())
	assert.Equal(t, map[string]string{"language": "fre"}, of.Streams()[0].Metadata())
	assert.Equal(t, map[string]string{"language": "eng"}, of.Streams()[1].Metadata())
	require.Len(t, of.Chapters(), 2)
	assert.Equal(t, map[string]string{"title": "c2"}, of.Chapters()[1].Metadata)

	// Recording time
	p, _ = newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-t", "4", "-c", "copy", "out.mp4"))
	of = p.OutputFiles()[0]
	assert.Equal(t, map[string]string{"title": "t"}, of.Metadata())
	assert.Equal(t, map[string]string{"encoder": "x", "language": "fre"}, of.Streams()[0].Metadata())
	require.Len(t, of.Chapters(), 1)
	assert.Equal(t, Chapter{End: 4000, ID: 1, Metadata: map[string]string{"title": "c1"}, TimeBase: Rational{Num: 1, Den: 1000}}, of.Chapters()[0])

	// Output start time
	p, _ = newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-ss", "6", "out.mp4"))
	of = p.OutputFiles()[0]
	require.Len(t, of.Chapters(), 1)
	assert.Equal(t, int64(0), of.Chapters()[0].Start)
	assert.Equal(t, int64(4000), of.Chapters()[0].End)

	// Disabled
	p, _ = newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-map_metadata", "-1", "out.mp4"))
	of = p.OutputFiles()[0]
	assert.Empty(t, of.Metadata())
	assert.Empty(t, of.Streams()[0].Metadata())
	require.Len(t, of.Chapters(), 2)
	assert.Empty(t, of.Chapters()[0].Metadata)

	// No chapters
	p, _ = newMockedPipeline(t, s)
	s.addInput("in1", []StreamInfo{videoStream("h264")}, nil)
	require.NoError(t, configure(t, p, s, "-i", "in1", "-i", "in0", "-map_chapters", "0", "out.mp4"))
	assert.Empty(t, p.OutputFiles()[0].Chapters())
}

func TestManualMetadata(t *testing.T) {
	s := newMetadataSDK()

	// Maps
	p, _ := newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-map_metadata:s:a", "0:g", "-map_metadata", "0:c:1", "out.mp4"))
	of := p.OutputFiles()[0]
	assert.Equal(t, map[string]string{"title": "c2"}, of.Metadata())
	assert.Empty(t, of.Streams()[0].Metadata())
	assert.Equal(t, map[string]string{"creation_time": "2020", "duration": "10", "title": "t"}, of.Streams()[1].Metadata())
	require.Len(t, of.Chapters(), 2)
	assert.Empty(t, of.Chapters()[0].Metadata)

	// Directives
	p, _ = newMockedPipeline(t, s)
	require.NoError(t, configure(t, p, s, "-i", "in0", "-metadata", "artist=a", "-metadata", "title=", "-metadata:s:v", "language=ger", "-metadata:c:1", "title=c", "out.mp4"))
	of = p.OutputFiles()[0]
	assert.Equal(t, map[string]string{"artist": "a", "duration": "10"}, of.Metadata())
	assert.Equal(t, map[string]string{"language": "ger"}, of.Streams()[0].Metadata())
	assert.Equal(t, map[string]string{"title": "c"}, of.Chapters()[1].Metadata)

	// Errors
	for _, v := range []struct {
		args []string
		err  string
	}{
		{args: []string{"-i", "in0", "-map_metadata", "0:p", "out.mp4"}, err: "astipipeline: program metadata maps are not supported"},
		{args: []string{"-i", "in0", "-map_metadata", "3", "out.mp4"}, err: "astipipeline: invalid input file index 3 while processing metadata maps"},
		{args: []string{"-i", "in0", "-map_metadata", "0:c:5", "out.mp4"}, err: "astipipeline: invalid chapter index 5 while processing metadata maps"},
		{args: []string{"-i", "in0", "-map_metadata:c:0", "0", "out.mp4"}, err: "astipipeline: invalid chapter index 0 while processing metadata maps"},
		{args: []string{"-i", "in0", "-map_metadata", "0:s:s", "out.mp4"}, err: "astipipeline: stream specifier s does not match any streams"},
		{args: []string{"-i", "in0", "-metadata", "novalue", "out.mp4"}, err: "astipipeline: no '=' character in metadata string novalue"},
		{args: []string{"-i", "in0", "-metadata:c:3", "k=v", "out.mp4"}, err: "astipipeline: invalid chapter index 3 in metadata specifier"},
		{args: []string{"-i", "in0", "-map_chapters", "2", "out.mp4"}, err: "astipipeline: invalid input file index 2 in chapter mapping"},
	} {
		p, _ = newMockedPipeline(t, s)
		assert.ErrorContains(t, configure(t, p, s, v.args...), v.err, v.args)
	}
}
