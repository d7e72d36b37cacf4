// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for sinks of interleaved float32 audio
package encode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

var (
	ErrUnsupportedCodec    = errors.New("unsupported codec")
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
)

// Encoder writes interleaved float32 samples
type Encoder interface {
	// Write encodes whole frames of interleaved samples
	Write(samples []float32) error

	// Close flushes headers and trailing data. It does not close the
	// underlying writer.
	Close() error
}

// New returns an encoder for format.Codec writing to w
func New(w io.WriteSeeker, format audio.Format) (Encoder, error) {
	switch format.Codec {
	case audio.CodecPCM:
		return NewPCM(w, format)
	case audio.CodecWAV:
		return NewWAV(w, format)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, format.Codec)
	}
}

func checkBitDepth(depth int) error {
	if depth != 16 && depth != 24 {
		return fmt.Errorf("%w: %d (supported: 16, 24)", ErrUnsupportedBitDepth, depth)
	}
	return nil
}
