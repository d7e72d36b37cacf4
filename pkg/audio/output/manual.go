// ABOUTME: Hardware-free output device driven explicitly or by a ticker
// ABOUTME: Used for offline rendering, headless runs and deterministic tests
package output

import (
	"context"
	"sync"
	"time"
)

// Manual is a Device without hardware. Blocks are produced by Pull or,
// after Run, at the pace of a real device clock.
type Manual struct {
	mu     sync.Mutex
	cfg    Config
	cb     Callback
	buf    []float32
	errs   errorSink
	opened bool
}

// NewManual creates an unopened manual device
func NewManual() *Manual {
	return &Manual{errs: newErrorSink()}
}

// Open stores the callback
func (m *Manual) Open(cfg Config, cb Callback) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.BlockFrames <= 0 {
		cfg.BlockFrames = 512
	}
	m.cfg = cfg
	m.cb = cb
	m.buf = make([]float32, cfg.BlockFrames*cfg.Channels)
	m.opened = true
	return nil
}

// Start is a no-op; blocks are pulled by the caller or by Run
func (m *Manual) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return ErrNotOpen
	}
	return nil
}

// Config returns the stream configuration passed to Open
func (m *Manual) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Pull runs the callback for the given number of frames and returns the
// rendered block. The slice is reused by the next Pull.
func (m *Manual) Pull(frames int) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return nil
	}
	n := frames * m.cfg.Channels
	if cap(m.buf) < n {
		m.buf = make([]float32, n)
	}
	out := m.buf[:n]
	m.cb(out)
	return out
}

// Run pulls one block per block period until ctx is done. Each rendered
// block is passed to sink when it is non-nil.
func (m *Manual) Run(ctx context.Context, sink func([]float32)) error {
	cfg := m.Config()
	if cfg.SampleRate <= 0 {
		return ErrNotOpen
	}
	period := time.Duration(cfg.BlockFrames) * time.Second / time.Duration(cfg.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			block := m.Pull(cfg.BlockFrames)
			if sink != nil {
				sink(block)
			}
		}
	}
}

// Fail simulates an asynchronous device failure
func (m *Manual) Fail(err error) {
	m.errs.report(err)
}

// Errors delivers failures injected with Fail
func (m *Manual) Errors() <-chan error {
	return m.errs
}

// Close detaches the callback
func (m *Manual) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opened = false
	m.cb = nil
	return nil
}
