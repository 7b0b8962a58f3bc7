package astilibav

import (
	"fmt"

	"github.com/asticode/go-astikit"
	astitranscoder "github.com/asticode/go-astitranscoder"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
)

// SDK implements the pipeline backend interfaces on top of libav
type SDK struct {
	c  *astikit.Closer
	eh *astitranscoder.EventHandler
	fp *framePool
	pp *pktPool
}

// New creates a new libav SDK
func New(eh *astitranscoder.EventHandler) (s *SDK) {
	// Create sdk
	s = &SDK{
		c:  astikit.NewCloser(),
		eh: eh,
		fp: newFramePool(),
		pp: newPktPool(),
	}

	// Add pools to closer
	s.c.Add(s.fp.close)
	s.c.Add(s.pp.close)
	return
}

// Close closes the SDK. It must be called once every pipeline using it has been closed.
func (s *SDK) Close() error {
	return s.c.Close()
}

// PipelineOptions fills the backend fields of pipeline options and registers the hardware
// accelerators supported by libav
func (s *SDK) PipelineOptions(o astipipeline.Options) (astipipeline.Options, error) {
	// Fill backends
	o.Codecs = s
	o.Decoders = s
	o.Demuxer = s
	o.Encoders = s
	o.EventHandler = s.eh
	o.Filters = s
	o.Muxer = s

	// Register hardware accelerators
	if o.HardwareAccelerators == nil {
		o.HardwareAccelerators = astipipeline.NewHardwareAccelerators()
	}
	for _, a := range hardwareAccelerators() {
		if err := o.HardwareAccelerators.Register(a); err != nil {
			return o, fmt.Errorf("astilibav: registering hardware accelerator %s failed: %w", a.Name(), err)
		}
	}
	return o, nil
}

func (s *SDK) warn(target interface{}, format string, args ...interface{}) {
	if s.eh == nil {
		return
	}
	s.eh.Emit(astitranscoder.EventWarning(target, format, args...))
}
