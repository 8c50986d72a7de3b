package engine

import (
	"errors"
	"fmt"
)

var (
	ErrConcurrentSession = errors.New("capture already running on this surface")
	ErrMount             = errors.New("surface not mounted")
	ErrCanceled          = errors.New("capture canceled")
)

// EncodingError is returned when the muxer fails to open, accept a frame or
// finalize. The partial output is always discarded.
type EncodingError struct {
	Stage string
	Frame int
	Err   error
}

func (e *EncodingError) Error() string {
	if e.Stage == "frame" {
		return fmt.Sprintf("encoding failed at frame %d: %v", e.Frame, e.Err)
	}
	return fmt.Sprintf("encoding failed (%s): %v", e.Stage, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
