package astilibav

import (
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
)

// openCodecContext opens a codec context with options, threads defaulting to auto
func (s *SDK) openCodecContext(cc *astiav.CodecContext, c *astiav.Codec, options map[string]string) (err error) {
	// Default options
	m := make(map[string]string)
	for k, v := range options {
		m[k] = v
	}
	if _, ok := m["threads"]; !ok {
		m["threads"] = "auto"
	}

	// Create dictionary
	var d *dictionary
	if d, err = newDictionary(m); err != nil {
		err = fmt.Errorf("astilibav: creating dictionary failed: %w", err)
		return
	}
	defer d.free()

	// Open
	if err = cc.Open(c, d.d); err != nil {
		err = fmt.Errorf("astilibav: opening codec context of %s failed: %w", c.Name(), err)
		return
	}

	// Unused options
	if ks := d.unused(); len(ks) > 0 {
		s.warn(nil, "%s: options not found: %s", c.Name(), strings.Join(ks, ", "))
	}
	return
}
