// ABOUTME: WAV audio decoder
// ABOUTME: Wraps go-audio/wav and normalizes integer PCM to float32
package decode

import (
	"errors"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

var errNotWAV = errors.New("not a RIFF/WAVE file")

// WAVDecoder decodes PCM WAV files
type WAVDecoder struct {
	r      io.ReadSeeker
	dec    intPCMReader
	format audio.Format
	frames int64
	intBuf *goaudio.IntBuffer
}

// NewWAV creates a WAV decoder reading from r
func NewWAV(r io.ReadSeeker) (Decoder, error) {
	d := &WAVDecoder{r: r}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *WAVDecoder) open() error {
	dec := wav.NewDecoder(d.r)
	if !dec.IsValidFile() {
		return decodeErr(audio.CodecWAV, errNotWAV)
	}
	if err := dec.FwdToPCM(); err != nil {
		return decodeErr(audio.CodecWAV, err)
	}
	// 1 = integer PCM
	if dec.WavAudioFormat != 1 {
		return decodeErr(audio.CodecWAV, ErrUnsupportedEncoding)
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return decodeErr(audio.CodecWAV, ErrUnsupportedBitDepth)
	}
	if dec.NumChans == 0 {
		return decodeErr(audio.CodecWAV, ErrNoChannels)
	}

	d.format = audio.Format{
		Codec:      audio.CodecWAV,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	d.frames = -1
	if n := dec.PCMLen(); n > 0 {
		d.frames = n / int64(d.format.Channels*d.format.BitDepth/8)
	}
	d.dec = dec
	d.intBuf = &goaudio.IntBuffer{
		Format:         dec.Format(),
		SourceBitDepth: d.format.BitDepth,
	}
	return nil
}

func (d *WAVDecoder) Format() audio.Format { return d.format }
func (d *WAVDecoder) Length() int64        { return d.frames }

// Read decodes the next block of frames
func (d *WAVDecoder) Read(dst []float32) (int, error) {
	return readIntBuffer(d.dec, d.intBuf, d.format, dst)
}

// Seek rewinds the file and skips to frame
func (d *WAVDecoder) Seek(frame int64) error {
	if err := rewind(d.r); err != nil {
		return err
	}
	if err := d.open(); err != nil {
		return err
	}
	return skipFrames(d, frame)
}

// Close releases decoder resources
func (d *WAVDecoder) Close() error {
	return nil
}

// intPCMReader is satisfied by go-audio's wav and aiff decoders, narrowed
// to allow testing
type intPCMReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// readIntBuffer pulls integer PCM through a go-audio decoder and
// normalizes it by the source bit depth.
func readIntBuffer(dec intPCMReader, buf *goaudio.IntBuffer, format audio.Format, dst []float32) (int, error) {
	ch := format.FrameSize()
	want := len(dst) / ch * ch
	if want == 0 {
		return 0, nil
	}
	if cap(buf.Data) < want {
		buf.Data = make([]int, want)
	}
	buf.Data = buf.Data[:want]

	n, err := dec.PCMBuffer(buf)
	n = n / ch * ch
	for i := 0; i < n; i++ {
		dst[i] = audio.IntToFloat(buf.Data[i], format.BitDepth)
	}

	if n == 0 {
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, decodeErr(format.Codec, err)
		}
		return 0, io.EOF
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return n, decodeErr(format.Codec, err)
	}
	return n, nil
}
