// ABOUTME: Decoder interface definition
// ABOUTME: Common pull interface for all audio decoders feeding sound buffers
package decode

import (
	"io"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

// Decoder produces interleaved float32 samples in [-1, 1] from an encoded
// stream. Implementations are used from one goroutine at a time.
type Decoder interface {
	// Format reports the decoded stream's sample rate, channels and source bit depth
	Format() audio.Format

	// Read fills dst with whole frames and returns the number of samples
	// written. It returns io.EOF once the stream is exhausted.
	Read(dst []float32) (int, error)

	// Seek positions the decoder at the given frame
	Seek(frame int64) error

	// Length returns the stream length in frames, or -1 when unknown
	Length() int64

	// Close releases decoder resources
	Close() error
}

// Factory builds a Decoder over a seekable stream
type Factory func(r io.ReadSeeker) (Decoder, error)

// skipFrames discards frames by reading them into a scratch buffer.
func skipFrames(d Decoder, frames int64) error {
	ch := int64(d.Format().FrameSize())
	scratch := make([]float32, 4096*ch)
	for frames > 0 {
		want := int64(len(scratch)) / ch
		if want > frames {
			want = frames
		}
		n, err := d.Read(scratch[:want*ch])
		frames -= int64(n) / ch
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}

// rewind returns the underlying stream to its start
func rewind(r io.ReadSeeker) error {
	_, err := r.Seek(0, io.SeekStart)
	return err
}

// ReadAll decodes the remainder of a stream into one interleaved slice.
func ReadAll(d Decoder) ([]float32, error) {
	ch := d.Format().FrameSize()
	capHint := 0
	if n := d.Length(); n > 0 {
		capHint = int(n) * ch
	}
	out := make([]float32, 0, capHint)
	buf := make([]float32, 4096*ch)
	for {
		n, err := d.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}
