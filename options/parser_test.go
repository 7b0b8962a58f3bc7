package astioptions

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockedClassifier struct{}

func (mockedClassifier) IsCodecOption(name string) bool {
	return name == "b" || name == "ab" || name == "g" || name == "preset"
}

func (mockedClassifier) IsFormatOption(name string) bool {
	return name == "fflags" || name == "movflags"
}

func TestParseArgs(t *testing.T) {
	a, err := ParseArgs(strings.Fields("-y -ss 1.5 -c:v h264 -i in.mp4 -i in2.mkv -filter_complex [0:v]scale=640:480[out] -map [out] -map 1:a -b:v 1M -b:v:1 2M -ab 128k -vcodec libx264 -movflags +faststart -t 00:01:02.5 -fs 10M -shortest out.mp4"), mockedClassifier{})
	require.NoError(t, err)
	assert.Empty(t, a.Warnings)

	// Global
	assert.True(t, a.Global.Bool("y"))
	v, ok := a.Global.LastString("filter_complex")
	assert.True(t, ok)
	assert.Equal(t, "[0:v]scale=640:480[out]", v)

	// Inputs
	require.Len(t, a.Inputs, 2)
	assert.Equal(t, "in.mp4", a.Inputs[0].Path)
	assert.Equal(t, GroupKindInput, a.Inputs[0].Kind)
	ss, ok := a.Inputs[0].LastInt64("ss")
	assert.True(t, ok)
	assert.Equal(t, int64(1500000), ss)
	assert.Equal(t, []SpecifierOpt[Value]{{Specifier: "v", Value: StringValue("h264")}}, a.Inputs[0].Opts("c"))
	assert.Equal(t, 1, a.Inputs[1].Index)
	assert.False(t, a.Inputs[1].Has("ss"))

	// Output
	require.Len(t, a.Outputs, 1)
	o := a.Outputs[0]
	assert.Equal(t, "out.mp4", o.Path)
	assert.Equal(t, []SpecifierOpt[Value]{{Value: StringValue("[out]")}, {Value: StringValue("1:a")}}, o.Opts("map"))
	assert.Equal(t, []CodecOption{
		{Key: "b", Specifier: "v", Value: "1M"},
		{Key: "b", Specifier: "v:1", Value: "2M"},
		{Key: "ab", Value: "128k"},
	}, o.CodecOptions)
	assert.Equal(t, []FormatOption{{Key: "movflags", Value: "+faststart"}}, o.FormatOptions)
	assert.Equal(t, []SpecifierOpt[Value]{{Specifier: "v", Value: StringValue("libx264")}}, o.Opts("c"))
	d, _ := o.LastInt64("t")
	assert.Equal(t, int64(62500000), d)
	fs, _ := o.LastInt64("fs")
	assert.Equal(t, int64(10000000), fs)
	assert.True(t, o.Bool("shortest"))
}

func TestParseArgsErrors(t *testing.T) {
	for _, args := range []string{
		"-i",
		"-unknown 1 out.mp4",
		"-map 0 -i in.mp4",
		"-frames:v 10 -i in.mp4",
		"-sseof -1 out.mp4",
		"-t abc out.mp4",
		"-ar x out.mp4",
		"-f:v mp4 out.mp4",
	} {
		_, err := ParseArgs(strings.Fields(args), mockedClassifier{})
		assert.Error(t, err, args)
	}
}

func TestParseArgsTrailingOptions(t *testing.T) {
	a, err := ParseArgs(strings.Fields("-i in.mp4 out.mp4 -c copy"), mockedClassifier{})
	require.NoError(t, err)
	assert.Len(t, a.Warnings, 1)
}

func TestParseTime(t *testing.T) {
	for s, e := range map[string]int64{
		"1":          1000000,
		"1.5":        1500000,
		"-2":         -2000000,
		"200ms":      200000,
		"150us":      150,
		"3s":         3000000,
		"01:02":      62000000,
		"1:00:00.25": 3600250000,
	} {
		v, err := ParseTime(s)
		require.NoError(t, err, s)
		assert.Equal(t, e, v, s)
	}
	for _, s := range []string{"", "-", "a", "1:2:3:4", "1.5:00", "-1:-2"} {
		_, err := ParseTime(s)
		assert.Error(t, err, s)
	}
}

func TestParseNumber(t *testing.T) {
	for s, e := range map[string]float64{
		"1":    1,
		"128k": 128000,
		"1.5M": 1500000,
		"2Ki":  2048,
	} {
		v, err := ParseNumber(s)
		require.NoError(t, err, s)
		assert.Equal(t, e, v, s)
	}
	_, err := ParseNumber("1X")
	assert.Error(t, err)
}

func TestPreset(t *testing.T) {
	ss, err := ParsePreset(strings.NewReader("# comment\n\ncoder=1\nflags=+loop\n vcodec=libx264\n"))
	require.NoError(t, err)
	assert.Equal(t, []Setting{{Key: "coder", Value: "1"}, {Key: "flags", Value: "+loop"}, {Key: "vcodec", Value: "libx264"}}, ss)
	assert.False(t, ss[0].IsCodecName())
	assert.True(t, ss[2].IsCodecName())

	_, err = ParsePreset(strings.NewReader("coder=1\ninvalid\n"))
	assert.Error(t, err)
}

func TestFindPresetFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "libx264-fast.avpreset"), []byte("coder=1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fast.avpreset"), []byte("coder=0\n"), 0644))

	p, err := FindPresetFile([]string{dir}, "fast", "libx264")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "libx264-fast.avpreset"), p)

	p, err = FindPresetFile([]string{dir}, "fast", "libvpx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fast.avpreset"), p)

	_, err = FindPresetFile([]string{dir}, "slow", "libx264")
	assert.ErrorIs(t, err, ErrPresetNotFound)
}
