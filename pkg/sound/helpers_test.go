// ABOUTME: Shared fixtures for sound engine tests
// ABOUTME: In-memory decoders, engine setup and event collection helpers
package sound

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

var errBroken = errors.New("broken stream")

// sliceDecoder decodes from memory; failAt > 0 fails once that many
// samples were read
type sliceDecoder struct {
	format audio.Format
	data   []float32
	pos    int
	failAt int
}

func newSliceDecoder(data []float32, channels, rate int) *sliceDecoder {
	return &sliceDecoder{
		format: audio.Format{Codec: audio.CodecPCM, SampleRate: rate, Channels: channels, BitDepth: 32},
		data:   data,
	}
}

func (d *sliceDecoder) Format() audio.Format { return d.format }

func (d *sliceDecoder) Read(dst []float32) (int, error) {
	if d.failAt > 0 && d.pos >= d.failAt {
		return 0, errBroken
	}
	if d.pos >= len(d.data) {
		return 0, io.EOF
	}
	ch := d.format.Channels
	n := copy(dst[:len(dst)-len(dst)%ch], d.data[d.pos:])
	d.pos += n
	return n, nil
}

func (d *sliceDecoder) Seek(frame int64) error {
	d.pos = int(frame) * d.format.Channels
	if d.pos > len(d.data) {
		d.pos = len(d.data)
	}
	return nil
}

func (d *sliceDecoder) Length() int64 { return int64(len(d.data) / d.format.Channels) }

func (d *sliceDecoder) Close() error { return nil }

// stallDecoder blocks every Read until unblock is closed
type stallDecoder struct {
	unblock chan struct{}
}

func (d *stallDecoder) Format() audio.Format {
	return audio.Format{Codec: audio.CodecPCM, SampleRate: 48000, Channels: 1, BitDepth: 16}
}

func (d *stallDecoder) Read(dst []float32) (int, error) {
	<-d.unblock
	return 0, io.EOF
}

func (d *stallDecoder) Seek(int64) error { return nil }
func (d *stallDecoder) Length() int64    { return -1 }
func (d *stallDecoder) Close() error     { return nil }

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func renderFrames(t *testing.T, e *Engine, frames int) []float32 {
	t.Helper()
	out := make([]float32, frames*2)
	if err := e.Render(out); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return out
}

func staticBuffer(t *testing.T, samples []float32, channels, rate int) *Buffer {
	t.Helper()
	b, err := NewStaticBuffer(samples, channels, rate)
	if err != nil {
		t.Fatalf("NewStaticBuffer: %v", err)
	}
	return b
}

func ramp(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i) / float32(n)
	}
	return v
}

func constant(n int, value float32) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = value
	}
	return v
}

func sine(freq float64, rate, frames int) []float32 {
	v := make([]float32, frames)
	for i := range v {
		v[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(rate)))
	}
	return v
}

// pendingEvents collects everything currently queued
func pendingEvents(e *Engine) []Event {
	var evs []Event
	for {
		select {
		case ev := <-e.Events():
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func countKind(evs []Event, kind EventKind) int {
	n := 0
	for _, ev := range evs {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func mustPlay(t *testing.T, e *Engine, o SourceOptions) Handle {
	t.Helper()
	h, err := e.CreateSource(o)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	if err := e.Play(h); err != nil {
		t.Fatalf("Play: %v", err)
	}
	return h
}

// waitStream blocks until the ring is full or the refill goroutine has
// published the end of the stream, consumed or not
func waitStream(t *testing.T, b *Buffer) {
	t.Helper()
	s := b.stream
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w, r := s.written.Load(), s.consumed.Load()
		if w-r == uint64(len(s.chunks)) || s.failure.Load() != nil ||
			(w > 0 && s.chunks[(w-1)%uint64(len(s.chunks))].eof) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("stream never filled")
}
