package astitranscoder

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/asticode/go-astikit"
)

// Configuration represents a transcoder configuration
type Configuration struct {
	Log      ConfigurationLog      `toml:"log"`
	Pipeline ConfigurationPipeline `toml:"pipeline"`
	Server   ConfigurationServer   `toml:"server"`
	Stats    ConfigurationStats    `toml:"stats"`
}

// ConfigurationLog represents a log configuration
type ConfigurationLog struct {
	// Libav log level among "quiet", "panic", "fatal", "error", "warning", "info", "verbose" and "debug"
	LibavLevel           string        `toml:"libav_level"`
	Level                string        `toml:"level"`
	MessageMergingPeriod time.Duration `toml:"message_merging_period"`
	ProgressPeriod       time.Duration `toml:"progress_period"`
}

// ConfigurationPipeline represents the pipeline defaults
type ConfigurationPipeline struct {
	MaxMuxingQueueSize int      `toml:"max_muxing_queue_size"`
	NoOverwrite        bool     `toml:"no_overwrite"`
	Overwrite          bool     `toml:"overwrite"`
	PassLogPrefix      string   `toml:"pass_log_prefix"`
	PresetDirs         []string `toml:"preset_dirs"`
	ThreadQueueSize    int      `toml:"thread_queue_size"`
	VSync              string   `toml:"vsync"`
}

// ConfigurationServer represents a server configuration. The server is disabled when addr is empty.
type ConfigurationServer struct {
	Addr string `toml:"addr"`
}

// ConfigurationStats represents a stats configuration
type ConfigurationStats struct {
	Enabled bool          `toml:"enabled"`
	Host    bool          `toml:"host"`
	Period  time.Duration `toml:"period"`
}

// DefaultConfiguration returns the default configuration
func DefaultConfiguration() Configuration {
	return Configuration{
		Log: ConfigurationLog{
			LibavLevel:     "error",
			Level:          "info",
			ProgressPeriod: 500 * time.Millisecond,
		},
		Stats: ConfigurationStats{
			Period: time.Second,
		},
	}
}

// NewConfiguration creates a configuration based on the default one and the content of path, if any
func NewConfiguration(path string) (c Configuration, err error) {
	// Default
	c = DefaultConfiguration()

	// No path
	if path == "" {
		return
	}

	// Decode
	var m toml.MetaData
	if m, err = toml.DecodeFile(path, &c); err != nil {
		err = fmt.Errorf("astitranscoder: decoding %s failed: %w", path, err)
		return
	}

	// Unknown keys
	if ks := m.Undecoded(); len(ks) > 0 {
		var ss []string
		for _, k := range ks {
			ss = append(ss, k.String())
		}
		sort.Strings(ss)
		err = fmt.Errorf("astitranscoder: unknown keys in %s: %s", path, strings.Join(ss, ", "))
		return
	}
	return
}

// LoggerLevel parses the log level
func (c ConfigurationLog) LoggerLevel() (l astikit.LoggerLevel, err error) {
	switch strings.ToLower(c.Level) {
	case "debug":
		l = astikit.LoggerLevelDebug
	case "", "info":
		l = astikit.LoggerLevelInfo
	case "warn", "warning":
		l = astikit.LoggerLevelWarn
	case "error":
		l = astikit.LoggerLevelError
	case "fatal":
		l = astikit.LoggerLevelFatal
	default:
		err = fmt.Errorf("astitranscoder: invalid log level %s", c.Level)
	}
	return
}
