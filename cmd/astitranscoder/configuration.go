package main

import (
	"flag"
	"fmt"

	astitranscoder "github.com/asticode/go-astitranscoder"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
)

// Flags
var (
	configPath    = flag.String("c", "", "the config path")
	jobPath       = flag.String("j", "", "the path to the job in JSON format")
	recordingPath = flag.String("r", "", "the path where events are recorded in CSV format")
	serverAddr    = flag.String("s", "", "the server addr, overrides the configuration")
	stats         = flag.Bool("stats", false, "whether stats are computed, overrides the configuration")
)

func newConfiguration() (c astitranscoder.Configuration, err error) {
	// Create configuration
	if c, err = astitranscoder.NewConfiguration(*configPath); err != nil {
		err = fmt.Errorf("main: creating configuration failed: %w", err)
		return
	}

	// Override with flags
	if *serverAddr != "" {
		c.Server.Addr = *serverAddr
	}
	if *stats {
		c.Stats.Enabled = true
	}
	return
}

func pipelineOptions(c astitranscoder.Configuration, eh *astitranscoder.EventHandler, s *astitranscoder.Stater) (o astipipeline.Options, err error) {
	// Create options
	o = astipipeline.Options{
		EventHandler:       eh,
		MaxMuxingQueueSize: c.Pipeline.MaxMuxingQueueSize,
		NoOverwrite:        c.Pipeline.NoOverwrite,
		Overwrite:          c.Pipeline.Overwrite,
		PassLogPrefix:      c.Pipeline.PassLogPrefix,
		PresetDirs:         c.Pipeline.PresetDirs,
		ProgressPeriod:     c.Log.ProgressPeriod,
		Stater:             s,
		ThreadQueueSize:    c.Pipeline.ThreadQueueSize,
	}

	// Parse vsync
	if c.Pipeline.VSync != "" {
		if o.VSync, err = astipipeline.ParseVSyncMethod(c.Pipeline.VSync); err != nil {
			err = fmt.Errorf("main: parsing vsync failed: %w", err)
			return
		}
	}
	return
}
