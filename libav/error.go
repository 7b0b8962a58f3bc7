package astilibav

import (
	"errors"
	"io"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
)

// convertError converts libav sentinel errors into their pipeline counterparts
func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEof):
		return io.EOF
	case errors.Is(err, astiav.ErrEagain):
		return astipipeline.ErrAgain
	}
	return err
}
