// ABOUTME: AIFF audio decoder
// ABOUTME: Wraps go-audio/aiff and normalizes integer PCM to float32
package decode

import (
	"errors"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

var errNotAIFF = errors.New("not a FORM/AIFF file")

// AIFFDecoder decodes uncompressed AIFF files
type AIFFDecoder struct {
	r      io.ReadSeeker
	dec    intPCMReader
	format audio.Format
	intBuf *goaudio.IntBuffer
}

// NewAIFF creates an AIFF decoder reading from r
func NewAIFF(r io.ReadSeeker) (Decoder, error) {
	d := &AIFFDecoder{r: r}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *AIFFDecoder) open() error {
	dec := aiff.NewDecoder(d.r)
	if !dec.IsValidFile() {
		return decodeErr(audio.CodecAIFF, errNotAIFF)
	}
	dec.ReadInfo()

	f := dec.Format()
	if f == nil {
		return decodeErr(audio.CodecAIFF, errNotAIFF)
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return decodeErr(audio.CodecAIFF, ErrUnsupportedBitDepth)
	}
	if f.NumChannels == 0 {
		return decodeErr(audio.CodecAIFF, ErrNoChannels)
	}

	d.format = audio.Format{
		Codec:      audio.CodecAIFF,
		SampleRate: f.SampleRate,
		Channels:   f.NumChannels,
		BitDepth:   int(dec.BitDepth),
	}
	d.dec = dec
	d.intBuf = &goaudio.IntBuffer{Format: f, SourceBitDepth: d.format.BitDepth}
	return nil
}

func (d *AIFFDecoder) Format() audio.Format { return d.format }

// Length is unknown until the stream has been read
func (d *AIFFDecoder) Length() int64 { return -1 }

// Read decodes the next block of frames
func (d *AIFFDecoder) Read(dst []float32) (int, error) {
	return readIntBuffer(d.dec, d.intBuf, d.format, dst)
}

// Seek rewinds the file and skips to frame
func (d *AIFFDecoder) Seek(frame int64) error {
	if err := rewind(d.r); err != nil {
		return err
	}
	if err := d.open(); err != nil {
		return err
	}
	return skipFrames(d, frame)
}

// Close releases decoder resources
func (d *AIFFDecoder) Close() error {
	return nil
}
