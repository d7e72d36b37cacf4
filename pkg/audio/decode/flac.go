// ABOUTME: FLAC audio decoder
// ABOUTME: Wraps mewkiz/flac frame parsing and interleaves subframes to float32
package decode

import (
	"io"

	"github.com/mewkiz/flac"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

// FLACDecoder decodes FLAC audio
type FLACDecoder struct {
	stream  *flac.Stream
	format  audio.Format
	pending []float32 // decoded but unread interleaved samples
	offset  int
}

// NewFLAC creates a seekable FLAC decoder reading from r
func NewFLAC(r io.ReadSeeker) (Decoder, error) {
	stream, err := flac.NewSeek(r)
	if err != nil {
		return nil, decodeErr(audio.CodecFLAC, err)
	}
	if stream.Info.NChannels == 0 {
		stream.Close()
		return nil, decodeErr(audio.CodecFLAC, ErrNoChannels)
	}

	return &FLACDecoder{
		stream: stream,
		format: audio.Format{
			Codec:      audio.CodecFLAC,
			SampleRate: int(stream.Info.SampleRate),
			Channels:   int(stream.Info.NChannels),
			BitDepth:   int(stream.Info.BitsPerSample),
		},
	}, nil
}

func (d *FLACDecoder) Format() audio.Format { return d.format }

// Length returns the total sample count from STREAMINFO
func (d *FLACDecoder) Length() int64 {
	if d.stream.Info.NSamples == 0 {
		return -1
	}
	return int64(d.stream.Info.NSamples)
}

// Read interleaves decoded frames into dst
func (d *FLACDecoder) Read(dst []float32) (int, error) {
	ch := d.format.Channels
	want := len(dst) / ch * ch
	written := 0

	for written < want {
		if d.offset >= len(d.pending) {
			if err := d.parseNext(); err != nil {
				if err == io.EOF {
					if written == 0 {
						return 0, io.EOF
					}
					return written, nil
				}
				return written, decodeErr(audio.CodecFLAC, err)
			}
		}
		n := copy(dst[written:want], d.pending[d.offset:])
		d.offset += n
		written += n
	}
	return written, nil
}

func (d *FLACDecoder) parseNext() error {
	frame, err := d.stream.ParseNext()
	if err != nil {
		return err
	}

	ch := d.format.Channels
	n := len(frame.Subframes[0].Samples)
	if cap(d.pending) < n*ch {
		d.pending = make([]float32, n*ch)
	}
	d.pending = d.pending[:n*ch]
	for c := 0; c < ch && c < len(frame.Subframes); c++ {
		samples := frame.Subframes[c].Samples
		for i := 0; i < n && i < len(samples); i++ {
			d.pending[i*ch+c] = audio.IntToFloat(int(samples[i]), d.format.BitDepth)
		}
	}
	d.offset = 0
	return nil
}

// Seek moves to the frame boundary at or before frame and skips the rest
func (d *FLACDecoder) Seek(frame int64) error {
	if frame < 0 {
		frame = 0
	}
	pos, err := d.stream.Seek(uint64(frame))
	if err != nil {
		return decodeErr(audio.CodecFLAC, err)
	}
	d.pending = d.pending[:0]
	d.offset = 0
	if skip := frame - int64(pos); skip > 0 {
		return skipFrames(d, skip)
	}
	return nil
}

// Close releases decoder resources
func (d *FLACDecoder) Close() error {
	return d.stream.Close()
}
