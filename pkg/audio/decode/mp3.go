// ABOUTME: MP3 audio decoder
// ABOUTME: Wraps go-mp3, which always yields 16-bit little-endian stereo
package decode

import (
	"encoding/binary"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

// go-mp3 output is fixed at two 16-bit channels
const mp3FrameBytes = 4

// MP3Decoder decodes MP3 audio
type MP3Decoder struct {
	dec    *mp3.Decoder
	format audio.Format
	buf    []byte
}

// NewMP3 creates an MP3 decoder reading from r
func NewMP3(r io.ReadSeeker) (Decoder, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, decodeErr(audio.CodecMP3, err)
	}

	return &MP3Decoder{
		dec: dec,
		format: audio.Format{
			Codec:      audio.CodecMP3,
			SampleRate: dec.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
	}, nil
}

func (d *MP3Decoder) Format() audio.Format { return d.format }

// Length returns the decoded length in frames
func (d *MP3Decoder) Length() int64 {
	n := d.dec.Length()
	if n < 0 {
		return -1
	}
	return n / mp3FrameBytes
}

// Read converts decoded int16 stereo to float32
func (d *MP3Decoder) Read(dst []float32) (int, error) {
	frames := len(dst) / 2
	if frames == 0 {
		return 0, nil
	}
	need := frames * mp3FrameBytes
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	buf := d.buf[:need]

	n, err := io.ReadFull(d.dec, buf)
	count := n / mp3FrameBytes * 2
	for i := 0; i < count; i++ {
		dst[i] = audio.Int16ToFloat(int16(binary.LittleEndian.Uint16(buf[i*2:])))
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
		return count, decodeErr(audio.CodecMP3, err)
	}
}

// Seek moves to the given frame using the decoder's byte offset
func (d *MP3Decoder) Seek(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if _, err := d.dec.Seek(frame*mp3FrameBytes, io.SeekStart); err != nil {
		return decodeErr(audio.CodecMP3, err)
	}
	return nil
}

// Close releases decoder resources
func (d *MP3Decoder) Close() error {
	return nil
}
