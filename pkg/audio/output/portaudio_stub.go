//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"
)

var errPortAudioDisabled = fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrDeviceOpen)

// PortAudio output implementation (stub)
type PortAudio struct {
	errs errorSink
}

// NewPortAudio creates a new PortAudio output
func NewPortAudio() *PortAudio {
	return &PortAudio{errs: newErrorSink()}
}

// Open always fails without the portaudio build tag
func (p *PortAudio) Open(cfg Config, cb Callback) error {
	return errPortAudioDisabled
}

// Start always fails without the portaudio build tag
func (p *PortAudio) Start() error {
	return errPortAudioDisabled
}

// Errors never delivers
func (p *PortAudio) Errors() <-chan error {
	return p.errs
}

// Close is a no-op
func (p *PortAudio) Close() error {
	return nil
}
