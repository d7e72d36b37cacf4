// ABOUTME: Oto-based audio output implementation
// ABOUTME: Feeds an oto player from an io.Reader that invokes the render callback
package output

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Oto output implementation using oto library
type Oto struct {
	mu     sync.Mutex
	otoCtx *oto.Context
	player *oto.Player
	reader *callbackReader
	cfg    Config
	errs   errorSink
	done   chan struct{}
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{errs: newErrorSink()}
}

// callbackReader turns pull requests from the oto mixer into render callbacks
type callbackReader struct {
	cb       Callback
	channels int
	scratch  []float32
}

// Read fills p with whole float32 frames
func (r *callbackReader) Read(p []byte) (int, error) {
	frameBytes := 4 * r.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}
	total := frames * r.channels
	if cap(r.scratch) < total {
		r.scratch = make([]float32, total)
	}
	samples := r.scratch[:total]
	r.cb(samples)

	for i, s := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return frames * frameBytes, nil
}

// Open initializes the output device. Oto allows one context per process,
// so reopening with a different format is refused.
func (o *Oto) Open(cfg Config, cb Callback) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := cfg.validate(); err != nil {
		return err
	}

	if o.otoCtx != nil && (o.cfg.SampleRate != cfg.SampleRate || o.cfg.Channels != cfg.Channels) {
		return fmt.Errorf("%w: oto cannot change format from %dHz/%dch to %dHz/%dch",
			ErrDeviceOpen, o.cfg.SampleRate, o.cfg.Channels, cfg.SampleRate, cfg.Channels)
	}

	if o.otoCtx == nil {
		bufferSize := time.Duration(cfg.BlockFrames) * time.Second / time.Duration(cfg.SampleRate) * 2
		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   bufferSize,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return fmt.Errorf("%w: oto context: %v", ErrDeviceOpen, err)
		}
		<-readyChan
		o.otoCtx = ctx
	}

	if o.player != nil {
		o.player.Close()
	}

	o.cfg = cfg
	o.reader = &callbackReader{
		cb:       cb,
		channels: cfg.Channels,
		scratch:  make([]float32, cfg.BlockFrames*cfg.Channels),
	}
	o.player = o.otoCtx.NewPlayer(o.reader)
	o.player.SetBufferSize(cfg.BlockFrames * cfg.Channels * 4)

	log.Infof("Audio output initialized: %dHz, %d channels (oto)", cfg.SampleRate, cfg.Channels)
	return nil
}

// Start begins playback and watches the player for errors
func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return ErrNotOpen
	}
	if err := o.otoCtx.Resume(); err != nil {
		return fmt.Errorf("failed to resume oto context: %w", err)
	}
	o.player.Play()

	if o.done == nil {
		o.done = make(chan struct{})
		go o.watch(o.player, o.done)
	}
	return nil
}

// watch polls the player for asynchronous failures
func (o *Oto) watch(p *oto.Player, done <-chan struct{}) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := p.Err(); err != nil {
				o.errs.report(fmt.Errorf("%w: %v", ErrDeviceLost, err))
				return
			}
		}
	}
}

// Errors delivers player failures
func (o *Oto) Errors() <-chan error {
	return o.errs
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.done != nil {
		close(o.done)
		o.done = nil
	}
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.Warnf("oto player close error: %v", err)
		}
		o.player = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			log.Warnf("oto suspend error: %v", err)
		}
	}
	return nil
}
