// ABOUTME: Ogg Vorbis audio decoder
// ABOUTME: Wraps jfreymuth/oggvorbis, which decodes straight to float32
package decode

import (
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

// VorbisDecoder decodes Ogg Vorbis audio
type VorbisDecoder struct {
	dec    *oggvorbis.Reader
	format audio.Format
}

// NewVorbis creates a Vorbis decoder reading from r
func NewVorbis(r io.ReadSeeker) (Decoder, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, decodeErr(audio.CodecVorbis, err)
	}
	if dec.Channels() < 1 {
		return nil, decodeErr(audio.CodecVorbis, ErrNoChannels)
	}

	return &VorbisDecoder{
		dec: dec,
		format: audio.Format{
			Codec:      audio.CodecVorbis,
			SampleRate: dec.SampleRate(),
			Channels:   dec.Channels(),
			BitDepth:   32,
		},
	}, nil
}

func (d *VorbisDecoder) Format() audio.Format { return d.format }
func (d *VorbisDecoder) Length() int64        { return d.dec.Length() }

// Read decodes the next block of frames
func (d *VorbisDecoder) Read(dst []float32) (int, error) {
	ch := d.format.Channels
	want := len(dst) / ch * ch
	if want == 0 {
		return 0, nil
	}

	n, err := d.dec.Read(dst[:want])
	switch err {
	case nil:
		return n, nil
	case io.EOF:
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	default:
		return n, decodeErr(audio.CodecVorbis, err)
	}
}

// Seek moves to the given frame
func (d *VorbisDecoder) Seek(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	if err := d.dec.SetPosition(frame); err != nil {
		return decodeErr(audio.CodecVorbis, err)
	}
	return nil
}

// Close releases decoder resources
func (d *VorbisDecoder) Close() error {
	return nil
}
