package astilibav

import (
	"fmt"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
)

// Pixel format of the frames output by each device type
var hardwarePixelFormats = map[string]string{
	"cuda":         "cuda",
	"d3d11va":      "d3d11",
	"drm":          "drm_prime",
	"dxva2":        "dxva2_vld",
	"opencl":       "opencl",
	"qsv":          "qsv",
	"vaapi":        "vaapi",
	"vdpau":        "vdpau",
	"videotoolbox": "videotoolbox_vld",
	"vulkan":       "vulkan",
}

var hardwareDeviceTypeNames = []string{"cuda", "vaapi", "qsv", "videotoolbox", "d3d11va", "dxva2", "vdpau", "drm", "opencl", "vulkan"}

type hardwareAccelerator struct {
	name        string
	pixelFormat string
	t           astiav.HardwareDeviceType
}

// hardwareAccelerators returns the accelerators whose device type is supported by libav
func hardwareAccelerators() (as []*hardwareAccelerator) {
	for _, n := range hardwareDeviceTypeNames {
		t := astiav.FindHardwareDeviceTypeByName(n)
		if t == astiav.HardwareDeviceTypeNone {
			continue
		}
		as = append(as, &hardwareAccelerator{
			name:        n,
			pixelFormat: hardwarePixelFormats[n],
			t:           t,
		})
	}
	return
}

// Name implements the astipipeline.HardwareAccelerator interface
func (a *hardwareAccelerator) Name() string { return a.name }

// PixelFormat implements the astipipeline.HardwareAccelerator interface
func (a *hardwareAccelerator) PixelFormat() string { return a.pixelFormat }

// Init implements the astipipeline.HardwareAccelerator interface
func (a *hardwareAccelerator) Init(device string) (_ astipipeline.HardwareDevice, err error) {
	d := &hardwareDevice{t: a.t}
	if d.ctx, err = astiav.CreateHardwareDeviceContext(a.t, device, nil, 0); err != nil {
		err = fmt.Errorf("astilibav: creating %s device context failed: %w", a.name, err)
		return
	}
	return d, nil
}

type hardwareDevice struct {
	ctx *astiav.HardwareDeviceContext
	t   astiav.HardwareDeviceType
}

// Close implements the astipipeline.HardwareDevice interface
func (d *hardwareDevice) Close() error {
	if d.ctx != nil {
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}
