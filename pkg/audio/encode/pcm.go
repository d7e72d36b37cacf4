// ABOUTME: PCM audio encoder
// ABOUTME: Encodes float32 samples to 16-bit or 24-bit little-endian PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

// PCMEncoder writes headerless PCM
type PCMEncoder struct {
	w        io.Writer
	bitDepth int
	scratch  []byte
}

// NewPCM creates a new PCM encoder
func NewPCM(w io.Writer, format audio.Format) (*PCMEncoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, fmt.Errorf("%w: %s for PCM encoder", ErrUnsupportedCodec, format.Codec)
	}
	if err := checkBitDepth(format.BitDepth); err != nil {
		return nil, err
	}
	return &PCMEncoder{w: w, bitDepth: format.BitDepth}, nil
}

// Encode converts samples to PCM bytes. The slice is reused by the next call.
func (e *PCMEncoder) Encode(samples []float32) []byte {
	width := e.bitDepth / 8
	n := len(samples) * width
	if cap(e.scratch) < n {
		e.scratch = make([]byte, n)
	}
	out := e.scratch[:n]

	if e.bitDepth == 24 {
		for i, s := range samples {
			b := audio.SampleTo24Bit(audio.FloatToInt24(s))
			copy(out[i*3:], b[:])
		}
		return out
	}
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.FloatToInt16(s)))
	}
	return out
}

// Write encodes samples and writes them
func (e *PCMEncoder) Write(samples []float32) error {
	_, err := e.w.Write(e.Encode(samples))
	return err
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
