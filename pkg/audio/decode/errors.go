// ABOUTME: Decoder error values
// ABOUTME: Sentinel errors and the DecodeError wrapper for malformed input
package decode

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownFormat       = errors.New("unrecognized audio format")
	ErrUnsupportedCodec    = errors.New("unsupported codec")
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	ErrUnsupportedEncoding = errors.New("unsupported sample encoding")
	ErrSeekUnsupported     = errors.New("seek not supported")
	ErrNoChannels          = errors.New("stream has no channels")
)

// DecodeError reports malformed or unreadable input for a codec
type DecodeError struct {
	Codec string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Codec, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(codec string, err error) error {
	if err == nil {
		return nil
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Codec: codec, Err: err}
}
