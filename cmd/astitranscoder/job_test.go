package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	// No args
	_, err := args("", nil)
	assert.EqualError(t, err, "main: no args provided, use -j or pass ffmpeg-style args after the flags")

	// Command line only
	as, err := args("", []string{"-i", "in.mp4", "out.mkv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-i", "in.mp4", "out.mkv"}, as)

	// Job
	p := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"args":["-y","-i","in.mp4"]}`), 0644))
	as, err = args(p, []string{"out.mkv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-y", "-i", "in.mp4", "out.mkv"}, as)

	// Invalid job
	require.NoError(t, os.WriteFile(p, []byte(`{`), 0644))
	_, err = args(p, nil)
	assert.Error(t, err)
}
