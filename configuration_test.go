package astitranscoder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfiguration(t *testing.T) {
	// Default
	c, err := NewConfiguration("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfiguration(), c)

	// File
	dir := t.TempDir()
	p := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(`[log]
level = "warn"
message_merging_period = "5s"

[pipeline]
max_muxing_queue_size = 256
vsync = "cfr"

[server]
addr = "127.0.0.1:4000"

[stats]
enabled = true
`), 0644))
	c, err = NewConfiguration(p)
	require.NoError(t, err)
	assert.Equal(t, "error", c.Log.LibavLevel)
	assert.Equal(t, 5*time.Second, c.Log.MessageMergingPeriod)
	assert.Equal(t, 500*time.Millisecond, c.Log.ProgressPeriod)
	assert.Equal(t, 256, c.Pipeline.MaxMuxingQueueSize)
	assert.Equal(t, "cfr", c.Pipeline.VSync)
	assert.Equal(t, "127.0.0.1:4000", c.Server.Addr)
	assert.True(t, c.Stats.Enabled)
	assert.Equal(t, time.Second, c.Stats.Period)
	lv, err := c.Log.LoggerLevel()
	require.NoError(t, err)
	assert.Equal(t, astikit.LoggerLevelWarn, lv)

	// Unknown keys
	require.NoError(t, os.WriteFile(p, []byte("[server]\naddr = \"a\"\nport = 1\n"), 0644))
	_, err = NewConfiguration(p)
	assert.EqualError(t, err, "astitranscoder: unknown keys in "+p+": server.port")

	// Invalid level
	_, err = ConfigurationLog{Level: "loud"}.LoggerLevel()
	assert.EqualError(t, err, "astitranscoder: invalid log level loud")
}
