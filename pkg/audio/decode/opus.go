// ABOUTME: Ogg Opus audio decoder
// ABOUTME: Wraps libopusfile streams through hraban/opus, always at 48 kHz
package decode

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/hraban/opus.v2"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

// Opus always decodes at 48 kHz regardless of the input rate tag
const opusSampleRate = 48000

var errNoOpusHead = errors.New("missing OpusHead packet")

// OpusDecoder decodes Ogg Opus streams
type OpusDecoder struct {
	r      io.ReadSeeker
	stream *opus.Stream
	format audio.Format
}

// NewOpus creates an Opus decoder. The channel count is read from the
// stream's identification header.
func NewOpus(r io.ReadSeeker) (Decoder, error) {
	channels, err := opusChannels(r)
	if err != nil {
		return nil, decodeErr(audio.CodecOpus, err)
	}

	d := &OpusDecoder{
		r: r,
		format: audio.Format{
			Codec:      audio.CodecOpus,
			SampleRate: opusSampleRate,
			Channels:   channels,
			BitDepth:   16,
		},
	}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *OpusDecoder) open() error {
	if err := rewind(d.r); err != nil {
		return err
	}
	stream, err := opus.NewStream(d.r)
	if err != nil {
		return decodeErr(audio.CodecOpus, err)
	}
	d.stream = stream
	return nil
}

func (d *OpusDecoder) Format() audio.Format { return d.format }
func (d *OpusDecoder) Length() int64        { return -1 }

// Read decodes the next block of frames
func (d *OpusDecoder) Read(dst []float32) (int, error) {
	ch := d.format.Channels
	want := len(dst) / ch * ch
	if want == 0 {
		return 0, nil
	}

	n, err := d.stream.ReadFloat32(dst[:want])
	count := n * ch
	switch err {
	case nil:
		return count, nil
	case io.EOF:
		if count == 0 {
			return 0, io.EOF
		}
		return count, nil
	default:
		return count, decodeErr(audio.CodecOpus, err)
	}
}

// Seek reopens the stream and skips to frame
func (d *OpusDecoder) Seek(frame int64) error {
	if d.stream != nil {
		d.stream.Close()
		d.stream = nil
	}
	if err := d.open(); err != nil {
		return err
	}
	return skipFrames(d, frame)
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	if d.stream == nil {
		return nil
	}
	err := d.stream.Close()
	d.stream = nil
	return err
}

// opusChannels reads the channel count from the OpusHead packet in the
// first Ogg page and rewinds r.
func opusChannels(r io.ReadSeeker) (int, error) {
	head := make([]byte, 27+255+19)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return 0, err
	}
	head = head[:n]
	if err := rewind(r); err != nil {
		return 0, err
	}

	if len(head) < 27 || !bytes.Equal(head[:4], []byte("OggS")) {
		return 0, errNoOpusHead
	}
	start := 27 + int(head[26])
	if len(head) < start+10 || !bytes.Equal(head[start:start+8], []byte("OpusHead")) {
		return 0, errNoOpusHead
	}
	channels := int(head[start+9])
	if channels < 1 {
		return 0, ErrNoChannels
	}
	return channels, nil
}
