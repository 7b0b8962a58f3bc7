package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	astitranscoder "github.com/asticode/go-astitranscoder"
	astilibav "github.com/asticode/go-astitranscoder/libav"
	astioptions "github.com/asticode/go-astitranscoder/options"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
	"golang.org/x/term"
)

func main() {
	// Parse flags
	flag.Parse()

	// Create logger
	l := log.New(log.Writer(), log.Prefix(), log.Flags())

	// Create configuration
	c, err := newConfiguration()
	if err != nil {
		l.Fatal(fmt.Errorf("main: creating configuration failed: %w", err))
	}

	// Get args
	as, err := args(*jobPath, flag.Args())
	if err != nil {
		l.Fatal(fmt.Errorf("main: getting args failed: %w", err))
	}

	// Create worker
	w := astikit.NewWorker(astikit.WorkerOptions{Logger: l})

	// Handle signals
	w.HandleSignals()

	// Run
	if err = run(w, c, as, l); err != nil {
		l.Fatal(fmt.Errorf("main: running failed: %w", err))
	}
}

func run(w *astikit.Worker, c astitranscoder.Configuration, as []string, l *log.Logger) (err error) {
	// Create event handler
	eh := astitranscoder.NewEventHandler()

	// Create log adapters
	var lv astikit.LoggerLevel
	if lv, err = c.Log.LoggerLevel(); err != nil {
		err = fmt.Errorf("main: parsing log level failed: %w", err)
		return
	}
	var llv astiav.LogLevel
	if llv, err = astilibav.ParseLogLevel(c.Log.LibavLevel); err != nil {
		err = fmt.Errorf("main: parsing libav log level failed: %w", err)
		return
	}
	ads := []astitranscoder.EventHandlerLogAdapter{
		astitranscoder.WithMinimumLevel(lv),
		astilibav.WithLog(astilibav.LogOptions{Level: llv}),
	}
	if c.Log.MessageMergingPeriod > 0 {
		ads = append(ads, astitranscoder.WithMessageMerging(c.Log.MessageMergingPeriod))
	}

	// Log event handler
	el := eh.Log(astitranscoder.EventHandlerLogOptions{
		Adapters: ads,
		Logger:   l,
	}).Start(w.Context())
	defer el.Close()

	// Report progress
	newProgress(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), el).adapt(eh)

	// Create stater
	var s *astitranscoder.Stater
	if c.Stats.Enabled {
		s = astitranscoder.NewStater(c.Stats.Period, eh)
		if c.Stats.Host {
			s.AddHostStats()
		}
		go s.Start(w.Context())
		defer s.Stop()
	}

	// Serve
	if c.Server.Addr != "" {
		// Create metrics
		m := astitranscoder.NewMetrics()
		m.EventHandlerAdapter(eh)

		// Create server
		srv := astitranscoder.NewServer(astitranscoder.ServerOptions{
			Logger:  l,
			Metrics: m,
		})
		srv.EventHandlerAdapter(eh)

		// Serve
		astikit.ServeHTTP(w, astikit.ServeHTTPOptions{
			Addr:    c.Server.Addr,
			Handler: srv.Handler(),
		})
	}

	// Record
	if *recordingPath != "" {
		r := astitranscoder.NewRecording(astitranscoder.RecordingOptions{
			Dst:    *recordingPath,
			Logger: l,
		}, eh)
		go func() {
			if err := r.Start(w.Context()); err != nil {
				l.Println(fmt.Errorf("main: recording failed: %w", err))
			}
		}()
		defer r.Stop()
	}

	// Create sdk
	sdk := astilibav.New(eh)
	defer sdk.Close()

	// Create pipeline options
	var o astipipeline.Options
	if o, err = pipelineOptions(c, eh, s); err != nil {
		err = fmt.Errorf("main: creating pipeline options failed: %w", err)
		return
	}
	if o, err = sdk.PipelineOptions(o); err != nil {
		err = fmt.Errorf("main: filling pipeline options failed: %w", err)
		return
	}

	// Create pipeline
	p := astipipeline.New(o)
	defer p.Close()

	// Parse args
	var a *astioptions.Args
	if a, err = astioptions.ParseArgs(as, sdk); err != nil {
		err = fmt.Errorf("main: parsing args failed: %w", err)
		return
	}

	// Run in a task so that the worker waits for the pipeline to be stopped
	t := w.NewTask()
	go func() {
		defer t.Done()
		defer w.Stop()
		err = configureAndRun(w.Context(), p, a)
	}()

	// Wait
	w.Wait()
	return
}

func configureAndRun(ctx context.Context, p *astipipeline.Pipeline, a *astioptions.Args) (err error) {
	// Configure
	if err = p.Configure(ctx, a); err != nil {
		err = fmt.Errorf("main: configuring pipeline failed: %w", err)
		return
	}

	// Run
	if err = p.Run(ctx); err != nil {
		err = fmt.Errorf("main: running pipeline failed: %w", err)
		return
	}
	return
}
