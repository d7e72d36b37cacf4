// ABOUTME: Sound buffers shared by sources, fully decoded or streamed
// ABOUTME: Reference counted; the last release stops any refill goroutine
package sound

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
	"github.com/Resonate-Protocol/soundscape/pkg/audio/decode"
)

// Buffer holds audio for sources to play. Its channel count and sample
// rate never change. A static buffer may back any number of sources; a
// streaming buffer backs one source at a time.
type Buffer struct {
	channels   int
	sampleRate int
	frames     int64 // -1 when a stream's length is unknown
	samples    []float32
	stream     *stream

	refs     atomic.Int32
	attached atomic.Bool
}

func checkLayout(channels, sampleRate int) error {
	if channels != 1 && channels != 2 {
		return fmt.Errorf("%w: got %d", ErrUnsupportedChannels, channels)
	}
	if sampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	return nil
}

// NewStaticBuffer wraps interleaved samples. Non-finite samples are
// replaced with silence; the slice must not be modified afterwards.
func NewStaticBuffer(samples []float32, channels, sampleRate int) (*Buffer, error) {
	if err := checkLayout(channels, sampleRate); err != nil {
		return nil, err
	}
	frames := len(samples) / channels
	samples = samples[:frames*channels]
	for i, s := range samples {
		if !audio.Finite(s) {
			samples[i] = 0
		}
	}
	b := &Buffer{
		channels:   channels,
		sampleRate: sampleRate,
		frames:     int64(frames),
		samples:    samples,
	}
	b.refs.Store(1)
	return b, nil
}

// LoadStaticBuffer decodes dec to the end and closes it
func LoadStaticBuffer(dec decode.Decoder) (*Buffer, error) {
	defer dec.Close()

	f := dec.Format()
	if err := checkLayout(f.Channels, f.SampleRate); err != nil {
		return nil, err
	}
	samples, err := decode.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.Codec, err)
	}
	log.Debugf("Loaded static buffer: %s %d Hz, %d ch, %d frames", f.Codec, f.SampleRate, f.Channels, len(samples)/f.Channels)
	return NewStaticBuffer(samples, f.Channels, f.SampleRate)
}

// NewStreamingBuffer starts a refill goroutine that decodes dec ahead of
// playback. The buffer owns dec from here on.
func NewStreamingBuffer(dec decode.Decoder, opts StreamOptions) (*Buffer, error) {
	f := dec.Format()
	if err := checkLayout(f.Channels, f.SampleRate); err != nil {
		return nil, err
	}
	s := newStream(dec, f.Channels, opts)
	b := &Buffer{
		channels:   f.Channels,
		sampleRate: f.SampleRate,
		frames:     dec.Length(),
		stream:     s,
	}
	b.refs.Store(1)
	go s.run()
	log.Debugf("Streaming buffer started: %s %d Hz, %d ch, %d x %d frame chunks",
		f.Codec, f.SampleRate, f.Channels, len(s.chunks), opts.withDefaults().ChunkFrames)
	return b, nil
}

// Channels returns 1 or 2
func (b *Buffer) Channels() int { return b.channels }

// SampleRate returns the buffer's native rate
func (b *Buffer) SampleRate() int { return b.sampleRate }

// Frames returns the length in frames, or -1 when a stream's length is unknown
func (b *Buffer) Frames() int64 { return b.frames }

// Streaming reports whether the buffer decodes on demand
func (b *Buffer) Streaming() bool { return b.stream != nil }

// Duration returns the playback length at the native rate, or -1
func (b *Buffer) Duration() time.Duration {
	if b.frames < 0 {
		return -1
	}
	return time.Duration(b.frames) * time.Second / time.Duration(b.sampleRate)
}

// Acquire adds a reference
func (b *Buffer) Acquire() {
	b.refs.Add(1)
}

// Release drops a reference. The last release stops streaming and lets
// the refill goroutine close the decoder. Safe to call from the render side.
func (b *Buffer) Release() {
	n := b.refs.Add(-1)
	if n == 0 && b.stream != nil {
		b.stream.stop()
	}
}

// Seek repositions a streaming buffer and waits until the refill
// goroutine has applied it
func (b *Buffer) Seek(ctx context.Context, frame int64) error {
	if b.stream == nil {
		return ErrNotStreaming
	}
	if frame < 0 {
		frame = 0
	}
	return b.stream.seekWait(ctx, frame)
}

// WaitReady blocks until a streaming buffer has decoded its first chunk.
// Static buffers are always ready.
func (b *Buffer) WaitReady(ctx context.Context) error {
	if b.stream == nil {
		return nil
	}
	return b.stream.waitReady(ctx)
}

// attach claims a streaming buffer for one source
func (b *Buffer) attach() error {
	if b.stream == nil {
		return nil
	}
	if !b.attached.CompareAndSwap(false, true) {
		return ErrStreamingBufferInUse
	}
	return nil
}

// detach is the render-side counterpart of attach plus the source's reference
func (b *Buffer) detach() {
	if b.stream != nil {
		b.attached.Store(false)
	}
	b.Release()
}

// claim takes a source reference on the control side
func (b *Buffer) claim() error {
	if err := b.attach(); err != nil {
		return err
	}
	b.Acquire()
	return nil
}
