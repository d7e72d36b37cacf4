//go:build portaudio

// ABOUTME: PortAudio output implementation
// ABOUTME: Cross-platform callback stream using PortAudio
package output

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudio output implementation
type PortAudio struct {
	stream *portaudio.Stream
	errs   errorSink
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() *PortAudio {
	return &PortAudio{errs: newErrorSink()}
}

// Open initializes PortAudio and opens a callback stream
func (p *PortAudio) Open(cfg Config, cb Callback) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: portaudio: %v", ErrDeviceOpen, err)
	}

	stream, err := portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), cfg.BlockFrames,
		func(out []float32) {
			cb(out)
		})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}

	p.stream = stream
	log.Infof("Audio output initialized: %dHz, %d channels (portaudio)", cfg.SampleRate, cfg.Channels)
	return nil
}

// Start begins playback
func (p *PortAudio) Start() error {
	if p.stream == nil {
		return ErrNotOpen
	}
	return p.stream.Start()
}

// Errors delivers stream failures
func (p *PortAudio) Errors() <-chan error {
	return p.errs
}

// Close releases resources
func (p *PortAudio) Close() error {
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			return err
		}
		if err := p.stream.Close(); err != nil {
			return err
		}
		p.stream = nil
	}
	return portaudio.Terminate()
}
