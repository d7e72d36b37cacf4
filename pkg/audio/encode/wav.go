// ABOUTME: WAV audio encoder
// ABOUTME: Quantizes float32 samples into go-audio IntBuffers for go-audio/wav
package encode

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

// wavFormatPCM is the RIFF format tag for integer PCM
const wavFormatPCM = 1

// WAVEncoder writes a RIFF/WAVE file. The header is completed by Close.
type WAVEncoder struct {
	enc      *wav.Encoder
	buf      *goaudio.IntBuffer
	bitDepth int
}

// NewWAV creates a new WAV encoder
func NewWAV(w io.WriteSeeker, format audio.Format) (*WAVEncoder, error) {
	if format.Codec != audio.CodecWAV {
		return nil, fmt.Errorf("%w: %s for WAV encoder", ErrUnsupportedCodec, format.Codec)
	}
	if err := checkBitDepth(format.BitDepth); err != nil {
		return nil, err
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid WAV stream %dHz/%dch", format.SampleRate, format.Channels)
	}

	return &WAVEncoder{
		enc: wav.NewEncoder(w, format.SampleRate, format.BitDepth, format.Channels, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: format.BitDepth,
		},
		bitDepth: format.BitDepth,
	}, nil
}

// Write quantizes and appends samples
func (e *WAVEncoder) Write(samples []float32) error {
	if cap(e.buf.Data) < len(samples) {
		e.buf.Data = make([]int, len(samples))
	}
	e.buf.Data = e.buf.Data[:len(samples)]

	for i, s := range samples {
		if e.bitDepth == 24 {
			e.buf.Data[i] = int(audio.FloatToInt24(s))
		} else {
			e.buf.Data[i] = int(audio.FloatToInt16(s))
		}
	}
	return e.enc.Write(e.buf)
}

// Close writes the final chunk sizes
func (e *WAVEncoder) Close() error {
	return e.enc.Close()
}
