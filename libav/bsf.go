package astilibav

import (
	"errors"
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
)

type bitstreamFilter struct {
	bsfc *astiav.BitStreamFilterContext
	name string
}

// newBitstreamFilters creates a chain of bitstream filters out of a comma separated list of names
func newBitstreamFilters(list string, cp *astiav.CodecParameters, tb astiav.Rational) (fs []*bitstreamFilter, err error) {
	// Make sure filters are freed on error
	defer func() {
		if err != nil {
			for _, f := range fs {
				f.free()
			}
			fs = nil
		}
	}()

	// Loop through names
	for _, n := range strings.Split(list, ",") {
		// Options
		n = strings.TrimSpace(n)
		if strings.Contains(n, "=") {
			err = fmt.Errorf("astilibav: bitstream filter options are not supported: %s", n)
			return
		}

		// Find filter
		bsf := astiav.FindBitStreamFilterByName(n)
		if bsf == nil {
			err = fmt.Errorf("astilibav: unknown bitstream filter %s", n)
			return
		}

		// Alloc context
		f := &bitstreamFilter{name: n}
		if f.bsfc, err = astiav.AllocBitStreamFilterContext(bsf); err != nil {
			err = fmt.Errorf("astilibav: allocating %s bitstream filter context failed: %w", n, err)
			return
		}
		fs = append(fs, f)

		// Input parameters are the output parameters of the previous filter
		if len(fs) > 1 {
			prev := fs[len(fs)-2]
			cp, tb = prev.bsfc.OutputCodecParameters(), prev.bsfc.OutputTimeBase()
		}
		if err = cp.Copy(f.bsfc.InputCodecParameters()); err != nil {
			err = fmt.Errorf("astilibav: copying %s bitstream filter input codec parameters failed: %w", n, err)
			return
		}
		f.bsfc.SetInputTimeBase(tb)

		// Initialize
		if err = f.bsfc.Initialize(); err != nil {
			err = fmt.Errorf("astilibav: initializing %s bitstream filter failed: %w", n, err)
			return
		}
	}
	return
}

func (f *bitstreamFilter) free() {
	if f.bsfc != nil {
		f.bsfc.Free()
		f.bsfc = nil
	}
}

// filterPacket sends a packet through the chain and calls fn for every packet coming out of it.
// A nil packet flushes the chain.
func filterPacket(fs []*bitstreamFilter, pp *pktPool, pkt *astiav.Packet, fn func(pkt *astiav.Packet) error) error {
	// End of chain
	if len(fs) == 0 {
		return fn(pkt)
	}

	// Send
	if err := fs[0].bsfc.SendPacket(pkt); err != nil {
		return fmt.Errorf("astilibav: sending packet to %s bitstream filter failed: %w", fs[0].name, err)
	}

	// Receive
	for {
		out := pp.get()
		if err := fs[0].bsfc.ReceivePacket(out); err != nil {
			pp.put(out)
			if errors.Is(err, astiav.ErrEagain) {
				return nil
			} else if errors.Is(err, astiav.ErrEof) {
				// Propagate the flush
				if pkt == nil && len(fs) > 1 {
					return filterPacket(fs[1:], pp, nil, fn)
				}
				return nil
			}
			return fmt.Errorf("astilibav: receiving packet from %s bitstream filter failed: %w", fs[0].name, err)
		}

		// Next filter
		err := filterPacket(fs[1:], pp, out, fn)
		pp.put(out)
		if err != nil {
			return err
		}
	}
}
