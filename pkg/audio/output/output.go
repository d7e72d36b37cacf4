// ABOUTME: Audio output device interface definition
// ABOUTME: Devices pull interleaved float32 blocks from a render callback
package output

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDeviceOpen    = errors.New("failed to open audio device")
	ErrDeviceLost    = errors.New("audio device lost")
	ErrNotOpen       = errors.New("device not opened")
	ErrUnknownDevice = errors.New("unknown output backend")
)

// Callback fills out with interleaved float32 samples. It runs on the
// device's real-time thread and must not block.
type Callback func(out []float32)

// Config describes the stream a device should open
type Config struct {
	SampleRate  int
	Channels    int
	BlockFrames int // preferred callback size; devices may deliver other sizes
}

// Device represents an audio output device driven by a render callback
type Device interface {
	// Open initializes the device. Failures are returned to the caller.
	Open(cfg Config, cb Callback) error

	// Start begins invoking the callback
	Start() error

	// Close stops the callback and releases device resources
	Close() error

	// Errors delivers asynchronous runtime failures such as device loss
	Errors() <-chan error
}

// New returns an unopened device for the named backend
func New(backend string) (Device, error) {
	switch strings.ToLower(backend) {
	case "", "malgo", "miniaudio":
		return NewMalgo(), nil
	case "oto":
		return NewOto(), nil
	case "portaudio":
		return NewPortAudio(), nil
	case "manual", "null", "none":
		return NewManual(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, backend)
	}
}

func (c Config) validate() error {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return fmt.Errorf("%w: invalid stream %dHz/%dch", ErrDeviceOpen, c.SampleRate, c.Channels)
	}
	return nil
}

// errorSink is a 1-slot error channel that never blocks the sender
type errorSink chan error

func newErrorSink() errorSink {
	return make(errorSink, 1)
}

func (s errorSink) report(err error) {
	select {
	case s <- err:
	default:
	}
}
