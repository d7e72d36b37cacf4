// ABOUTME: PCM audio decoder
// ABOUTME: Decodes headerless 16-bit and 24-bit little-endian PCM to float32
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

// PCMDecoder decodes raw PCM audio
type PCMDecoder struct {
	r      io.ReadSeeker
	format audio.Format
	width  int
	frames int64
	buf    []byte
}

// NewPCM creates a new PCM decoder over r. The stream carries no header so
// the format must be supplied.
func NewPCM(r io.ReadSeeker, format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	if format.Channels < 1 {
		return nil, ErrNoChannels
	}

	d := &PCMDecoder{
		r:      r,
		format: format,
		width:  format.BitDepth / 8,
		frames: -1,
	}

	if end, err := r.Seek(0, io.SeekEnd); err == nil {
		d.frames = end / int64(d.width*format.Channels)
		if err := rewind(r); err != nil {
			return nil, decodeErr(audio.CodecPCM, err)
		}
	}

	return d, nil
}

// PCMFactory returns a registry factory for raw PCM in the given format
func PCMFactory(format audio.Format) Factory {
	return func(r io.ReadSeeker) (Decoder, error) {
		return NewPCM(r, format)
	}
}

func (d *PCMDecoder) Format() audio.Format { return d.format }
func (d *PCMDecoder) Length() int64        { return d.frames }

// Read converts PCM bytes to float32 samples
func (d *PCMDecoder) Read(dst []float32) (int, error) {
	ch := d.format.Channels
	samples := len(dst) / ch * ch
	if samples == 0 {
		return 0, nil
	}

	need := samples * d.width
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	buf := d.buf[:need]

	n, err := io.ReadFull(d.r, buf)
	frameBytes := d.width * ch
	n = n / frameBytes * frameBytes
	count := n / d.width

	if d.width == 3 {
		for i := 0; i < count; i++ {
			b := [3]byte{buf[i*3], buf[i*3+1], buf[i*3+2]}
			dst[i] = audio.Int24ToFloat(audio.SampleFrom24Bit(b))
		}
	} else {
		for i := 0; i < count; i++ {
			dst[i] = audio.Int16ToFloat(int16(binary.LittleEndian.Uint16(buf[i*2:])))
		}
	}

	switch err {
	case nil:
		return count, nil
	case io.EOF, io.ErrUnexpectedEOF:
		if count == 0 {
			return 0, io.EOF
		}
		return count, nil
	default:
		return count, decodeErr(audio.CodecPCM, err)
	}
}

// Seek moves to the given frame
func (d *PCMDecoder) Seek(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	_, err := d.r.Seek(frame*int64(d.width*d.format.Channels), io.SeekStart)
	return err
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
