package dump

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/searchcore/internal/domain/errcode"
)

var (
	// ErrUnsupportedVersion signals a dump written by a newer or unknown format.
	ErrUnsupportedVersion = errors.New("unsupported dump version")
	// ErrIncomplete signals an archive without a valid completion marker.
	ErrIncomplete = errors.New("dump archive is incomplete")
	// ErrUnexpectedEntry signals an entry that is unknown or out of order.
	ErrUnexpectedEntry = errors.New("unexpected dump entry")
)

// ImportError reports the first segment of an archive that could not be read.
// It classifies as dump_process_failed whatever the underlying cause.
type ImportError struct {
	Segment string
	Err     error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import dump: segment %s: %s", e.Segment, e.Err.Error())
}

func (e *ImportError) Unwrap() error { return e.Err }

// As exposes the error as a catalogued dump_process_failed error.
func (e *ImportError) As(target any) bool {
	p, ok := target.(**errcode.Error)
	if !ok {
		return false
	}
	*p = errcode.Wrap(errcode.DumpProcessFailed, e, "%s", e.Error())
	return true
}

func importErr(segment string, err error) error {
	var ie *ImportError
	if errors.As(err, &ie) {
		return err
	}
	return &ImportError{Segment: segment, Err: err}
}
