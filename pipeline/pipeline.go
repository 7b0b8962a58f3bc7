package astipipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/asticode/go-astikit"
	astitranscoder "github.com/asticode/go-astitranscoder"
	astioptions "github.com/asticode/go-astitranscoder/options"
)

// Defaults
const (
	DefaultMaxMuxingQueueSize = 128
	DefaultPassLogPrefix      = "astitranscoder2pass"
	DefaultProgressPeriod     = 500 * time.Millisecond
	DefaultThreadQueueSize    = 8
)

// Options represents pipeline options
type Options struct {
	Codecs               CodecRegistry
	Decoders             DecoderFactory
	Demuxer              Demuxer
	Encoders             EncoderFactory
	EventHandler         *astitranscoder.EventHandler
	Filters              FilterGraphFactory
	HardwareAccelerators *HardwareAccelerators
	MaxMuxingQueueSize   int
	Muxer                Muxer
	NoOverwrite          bool
	Overwrite            bool
	PassLogPrefix        string
	PresetDirs           []string
	ProgressPeriod       time.Duration
	Stater               *astitranscoder.Stater
	ThreadQueueSize      int
	VSync                VSyncMethod
}

// Pipeline ties inputs, filter graphs, encoders and outputs together
type Pipeline struct {
	c             *astikit.Closer
	filterGraphs  []*FilterGraph
	inputFiles    []*InputFile
	inputStreams  []*InputStream
	o             Options
	outputFiles   []*OutputFile
	outputStreams []*OutputStream
	stats         []pipelineStats
}

// New creates a new pipeline
func New(o Options) *Pipeline {
	if o.HardwareAccelerators == nil {
		o.HardwareAccelerators = NewHardwareAccelerators()
	}
	if o.MaxMuxingQueueSize <= 0 {
		o.MaxMuxingQueueSize = DefaultMaxMuxingQueueSize
	}
	if o.PassLogPrefix == "" {
		o.PassLogPrefix = DefaultPassLogPrefix
	}
	if o.PresetDirs == nil {
		o.PresetDirs = astioptions.DefaultPresetDirs()
	}
	if o.ProgressPeriod <= 0 {
		o.ProgressPeriod = DefaultProgressPeriod
	}
	if o.ThreadQueueSize <= 0 {
		o.ThreadQueueSize = DefaultThreadQueueSize
	}
	return &Pipeline{
		c: astikit.NewCloser(),
		o: o,
	}
}

// Close closes the pipeline
func (p *Pipeline) Close() error {
	return p.c.Close()
}

// InputFiles returns the input files
func (p *Pipeline) InputFiles() []*InputFile { return p.inputFiles }

// InputStreams returns the input streams
func (p *Pipeline) InputStreams() []*InputStream { return p.inputStreams }

// OutputFiles returns the output files
func (p *Pipeline) OutputFiles() []*OutputFile { return p.outputFiles }

// OutputStreams returns the output streams
func (p *Pipeline) OutputStreams() []*OutputStream { return p.outputStreams }

// FilterGraphs returns the filter graphs
func (p *Pipeline) FilterGraphs() []*FilterGraph { return p.filterGraphs }

// Configure opens every input, builds complex filter graphs and opens every output
func (p *Pipeline) Configure(ctx context.Context, a *astioptions.Args) (err error) {
	// Warnings
	for _, w := range a.Warnings {
		p.warn(nil, "%s", w)
	}

	// Global options
	if a.Global.Bool("y") && a.Global.Bool("n") {
		err = configurationError("both -y and -n supplied. Exiting")
		return
	}
	if a.Global.Bool("y") {
		p.o.Overwrite = true
	}
	if a.Global.Bool("n") {
		p.o.NoOverwrite = true
	}
	if v, ok := a.Global.LastString("vsync"); ok {
		if p.o.VSync, err = ParseVSyncMethod(v); err != nil {
			err = configurationError("parsing vsync failed: %w", err)
			return
		}
	}

	// Complex filter graph descriptions
	var ds []string
	for _, n := range []string{"filter_complex", "lavfi"} {
		for _, o := range a.Global.Opts(n) {
			v, _ := o.Value.Str()
			ds = append(ds, v)
		}
	}
	for _, o := range a.Global.Opts("filter_complex_script") {
		path, _ := o.Value.Str()
		var b []byte
		if b, err = os.ReadFile(path); err != nil {
			err = resourceError("reading filter script %s failed: %w", path, err)
			return
		}
		ds = append(ds, string(b))
	}

	// Open inputs
	for _, g := range a.Inputs {
		if _, err = p.OpenInputFile(ctx, g); err != nil {
			err = fmt.Errorf("astipipeline: opening input file %s failed: %w", g.Path, err)
			return
		}
	}

	// Add complex filter graphs
	for _, d := range ds {
		if _, err = p.AddComplexFilterGraph(d); err != nil {
			err = fmt.Errorf("astipipeline: adding complex filter graph failed: %w", err)
			return
		}
	}

	// Open outputs
	if len(a.Outputs) == 0 {
		err = configurationError("at least one output file must be specified")
		return
	}
	for _, g := range a.Outputs {
		if _, err = p.OpenOutputFile(ctx, g); err != nil {
			err = fmt.Errorf("astipipeline: opening output file %s failed: %w", g.Path, err)
			return
		}
	}

	// Bind filter graphs
	if err = p.BindFilterGraphs(); err != nil {
		err = fmt.Errorf("astipipeline: binding filter graphs failed: %w", err)
		return
	}
	return
}

func (p *Pipeline) emit(e astitranscoder.Event) {
	if p.o.EventHandler != nil {
		p.o.EventHandler.Emit(e)
	}
}

func (p *Pipeline) warn(target interface{}, format string, args ...interface{}) {
	p.emit(astitranscoder.EventWarning(target, format, args...))
}

func (p *Pipeline) info(target interface{}, format string, args ...interface{}) {
	p.emit(astitranscoder.EventInfo(target, format, args...))
}
