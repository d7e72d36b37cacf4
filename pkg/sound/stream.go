// ABOUTME: Single-producer single-consumer chunk ring behind streaming buffers
// ABOUTME: A refill goroutine decodes ahead while the render side consumes without blocking
package sound

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/Resonate-Protocol/soundscape/pkg/audio/decode"
)

// ErrStreamClosed is returned by waits on a stream whose refill goroutine exited
var ErrStreamClosed = errors.New("stream closed")

// StreamOptions sizes a streaming buffer's ring
type StreamOptions struct {
	ChunkFrames int
	Chunks      int
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.ChunkFrames <= 0 {
		o.ChunkFrames = 8192
	}
	if o.Chunks < 2 {
		o.Chunks = 4
	}
	return o
}

// Seek requests pack a 24-bit epoch above a 40-bit frame position so both
// travel in one atomic word.
const (
	epochShift = 40
	epochMask  = 1<<24 - 1
	frameMask  = 1<<epochShift - 1
)

type chunk struct {
	data  []float32
	n     int // valid samples
	eof   bool
	epoch uint32
}

type frameResult int

const (
	frameOK frameResult = iota
	frameUnderrun
	frameEnd
)

type streamError struct{ err error }

type stream struct {
	dec      decode.Decoder
	channels int
	chunks   []chunk

	written  atomic.Uint64 // chunks published by the refill goroutine
	consumed atomic.Uint64 // chunks released by the render side
	request  atomic.Uint64 // epoch<<epochShift | frame
	acked    atomic.Uint32
	looping  atomic.Bool
	stopped  atomic.Bool
	failure  atomic.Pointer[streamError]
	reported atomic.Bool

	wake  chan struct{}
	ack   chan struct{}
	quit  chan struct{}
	done  chan struct{}
	ready chan struct{}

	// Render side only
	cur       *chunk
	pos       int
	seenEpoch uint32
	ended     bool
	frame     int64
}

func newStream(dec decode.Decoder, channels int, opts StreamOptions) *stream {
	opts = opts.withDefaults()
	s := &stream{
		dec:      dec,
		channels: channels,
		chunks:   make([]chunk, opts.Chunks),
		wake:     make(chan struct{}, 1),
		ack:      make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
	}
	for i := range s.chunks {
		s.chunks[i].data = make([]float32, opts.ChunkFrames*channels)
	}
	return s
}

func (s *stream) epoch() uint32 {
	return uint32(s.request.Load() >> epochShift)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// requestSeek publishes a new epoch without blocking and returns the
// packed request
func (s *stream) requestSeek(frame int64) uint64 {
	for {
		old := s.request.Load()
		e := (uint32(old>>epochShift) + 1) & epochMask
		next := uint64(e)<<epochShift | uint64(frame)&frameMask
		if s.request.CompareAndSwap(old, next) {
			signal(s.wake)
			return next
		}
	}
}

func (s *stream) seekWait(ctx context.Context, frame int64) error {
	e := uint32(s.requestSeek(frame) >> epochShift)
	for {
		if s.acked.Load() == e || s.epoch() != e {
			return nil
		}
		select {
		case <-s.ack:
		case <-s.done:
			return ErrStreamClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *stream) waitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop asks the refill goroutine to exit; it never blocks
func (s *stream) stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.quit)
	}
}

func (s *stream) fail(err error) {
	s.failure.Store(&streamError{err: err})
}

// takeError returns a refill failure once
func (s *stream) takeError() error {
	f := s.failure.Load()
	if f == nil || s.reported.Swap(true) {
		return nil
	}
	return f.err
}

// run is the refill goroutine
func (s *stream) run() {
	defer close(s.done)
	defer func() {
		if err := s.dec.Close(); err != nil {
			log.Debugf("Closing stream decoder: %v", err)
		}
	}()

	var (
		epoch   uint32
		atEOF   bool
		readied bool
	)
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		req := s.request.Load()
		if e := uint32(req >> epochShift); e != epoch {
			epoch = e
			atEOF = false
			if err := s.dec.Seek(int64(req & frameMask)); err != nil {
				log.Warnf("Stream seek failed: %v", err)
				s.fail(err)
				atEOF = true
			}
			s.acked.Store(e)
			signal(s.ack)
		}

		if !atEOF && s.written.Load()-s.consumed.Load() < uint64(len(s.chunks)) {
			atEOF = s.fill(epoch)
			if !readied {
				readied = true
				close(s.ready)
			}
			continue
		}

		select {
		case <-s.quit:
			return
		case <-s.wake:
		}
	}
}

// fill decodes the next free chunk and publishes it. It reports whether
// the stream ended.
func (s *stream) fill(epoch uint32) bool {
	c := &s.chunks[s.written.Load()%uint64(len(s.chunks))]
	c.n = 0
	c.eof = false
	c.epoch = epoch

	idle := 0
	sinceRewind := 0
	for c.n < len(c.data) {
		n, err := s.dec.Read(c.data[c.n:])
		n -= n % s.channels
		c.n += n
		sinceRewind += n

		switch {
		case err == io.EOF:
			if s.looping.Load() && sinceRewind > 0 {
				if serr := s.dec.Seek(0); serr != nil {
					s.fail(serr)
					c.eof = true
				}
				sinceRewind = 0
				continue
			}
			c.eof = true
		case err != nil:
			log.Warnf("Stream decode failed: %v", err)
			s.fail(err)
			c.eof = true
		case n == 0:
			idle++
			if idle > 8 {
				s.fail(io.ErrNoProgress)
				c.eof = true
			}
		default:
			idle = 0
		}
		if c.eof || s.epoch() != epoch || s.stopped.Load() {
			break
		}
	}
	s.written.Add(1)
	return c.eof
}

// nextFrame copies the next frame into f. Underruns yield silence.
// Render side only.
func (s *stream) nextFrame(f *[2]float32) frameResult {
	if req := s.request.Load(); uint32(req>>epochShift) != s.seenEpoch {
		s.resync(req)
	}
	for {
		if s.cur == nil {
			if s.ended {
				f[0], f[1] = 0, 0
				return frameEnd
			}
			if !s.acquire() {
				f[0], f[1] = 0, 0
				return frameUnderrun
			}
		}
		if s.pos < s.cur.n {
			f[0] = s.cur.data[s.pos]
			f[1] = f[0]
			if s.channels == 2 {
				f[1] = s.cur.data[s.pos+1]
			}
			s.pos += s.channels
			s.frame++
			return frameOK
		}
		if s.cur.eof {
			s.ended = true
		}
		s.releaseChunk()
	}
}

// acquire takes the next published chunk of the current epoch
func (s *stream) acquire() bool {
	for {
		r := s.consumed.Load()
		if r == s.written.Load() {
			return false
		}
		c := &s.chunks[r%uint64(len(s.chunks))]
		if c.epoch != s.seenEpoch {
			s.consumed.Add(1)
			signal(s.wake)
			continue
		}
		s.cur = c
		s.pos = 0
		return true
	}
}

func (s *stream) releaseChunk() {
	s.cur = nil
	s.pos = 0
	s.consumed.Add(1)
	signal(s.wake)
}

// resync drops consumer state left over from an older epoch
func (s *stream) resync(req uint64) {
	if s.cur != nil {
		s.releaseChunk()
	}
	s.seenEpoch = uint32(req >> epochShift)
	s.ended = false
	s.frame = int64(req & frameMask)
}

// seek repositions from the render side without waiting
func (s *stream) seek(frame int64) {
	s.resync(s.requestSeek(frame))
}

// rewind restarts from frame 0 unless the stream is already there. A
// pending seek from Buffer.Seek takes precedence. It returns the frame
// playback resumes at.
func (s *stream) rewind() int64 {
	if req := s.request.Load(); uint32(req>>epochShift) != s.seenEpoch {
		s.resync(req)
		return s.frame
	}
	if s.frame == 0 && !s.ended && (s.cur == nil || s.pos == 0) {
		return 0
	}
	s.seek(0)
	return 0
}
