package astipipeline

import (
	"fmt"
	"sort"
	"sync"
)

// HardwareAccelerator represents a hardware decoding backend
type HardwareAccelerator interface {
	// Init creates a device, device being empty when the default device should be used
	Init(device string) (HardwareDevice, error)
	Name() string
	// PixelFormat is the pixel format of the frames output by the accelerator
	PixelFormat() string
}

// HardwareDevice is an initialized hardware device
type HardwareDevice interface {
	Close() error
}

// Special hardware accelerator names
const (
	HardwareAcceleratorAuto = "auto"
	HardwareAcceleratorNone = "none"
)

var hardwareAcceleratorAliases = map[string]string{
	"cuvid": "cuda",
	"nvdec": "cuda",
}

// HardwareAccelerators is a registry of hardware accelerators indexed by name
type HardwareAccelerators struct {
	as map[string]HardwareAccelerator
	m  *sync.Mutex // Locks as and ns
	ns []string
}

// NewHardwareAccelerators creates a new hardware accelerators registry
func NewHardwareAccelerators() *HardwareAccelerators {
	return &HardwareAccelerators{
		as: make(map[string]HardwareAccelerator),
		m:  &sync.Mutex{},
	}
}

// Register registers a hardware accelerator
func (hs *HardwareAccelerators) Register(a HardwareAccelerator) error {
	hs.m.Lock()
	defer hs.m.Unlock()
	n := a.Name()
	if n == HardwareAcceleratorAuto || n == HardwareAcceleratorNone {
		return fmt.Errorf("astipipeline: hardware accelerator name %s is reserved", n)
	}
	if _, ok := hs.as[n]; ok {
		return fmt.Errorf("astipipeline: hardware accelerator %s already registered", n)
	}
	hs.as[n] = a
	hs.ns = append(hs.ns, n)
	return nil
}

// Lookup looks a hardware accelerator up by name
func (hs *HardwareAccelerators) Lookup(name string) (HardwareAccelerator, bool) {
	if v, ok := hardwareAcceleratorAliases[name]; ok {
		name = v
	}
	hs.m.Lock()
	defer hs.m.Unlock()
	a, ok := hs.as[name]
	return a, ok
}

// All returns the registered hardware accelerators in registration order
func (hs *HardwareAccelerators) All() (as []HardwareAccelerator) {
	hs.m.Lock()
	defer hs.m.Unlock()
	for _, n := range hs.ns {
		as = append(as, hs.as[n])
	}
	return
}

// Names returns the sorted names of the registered hardware accelerators
func (hs *HardwareAccelerators) Names() (ns []string) {
	hs.m.Lock()
	ns = append(ns, hs.ns...)
	hs.m.Unlock()
	sort.Strings(ns)
	return
}

// initHardwareDevice initializes the device requested by an input stream
func (hs *HardwareAccelerators) initHardwareDevice(name, device string) (a HardwareAccelerator, d HardwareDevice, err error) {
	switch name {
	case "", HardwareAcceleratorNone:
		return
	case HardwareAcceleratorAuto:
		for _, v := range hs.All() {
			if d, err = v.Init(device); err == nil {
				a = v
				return
			}
		}
		// No accelerator could be initialized, decode in software
		err = nil
		return
	}
	var ok bool
	if a, ok = hs.Lookup(name); !ok {
		err = fmt.Errorf("astipipeline: unrecognized hwaccel %s", name)
		return
	}
	if d, err = a.Init(device); err != nil {
		err = fmt.Errorf("astipipeline: initializing %s device %q failed: %w", name, device, err)
		return
	}
	return
}
