// ABOUTME: Engine error values
// ABOUTME: Sentinel errors returned by the control API
package sound

import "errors"

var (
	ErrEngineClosed         = errors.New("engine closed")
	ErrCommandQueueFull     = errors.New("command queue full")
	ErrInvalidHandle        = errors.New("invalid or expired handle")
	ErrTooManySources       = errors.New("source limit reached")
	ErrTooManyBuses         = errors.New("bus limit reached")
	ErrTooManyEffects       = errors.New("effect limit reached for bus")
	ErrUnknownBus           = errors.New("unknown bus")
	ErrUnknownEffect        = errors.New("unknown effect")
	ErrUnsupportedChannels  = errors.New("buffers must have one or two channels")
	ErrInvalidSampleRate    = errors.New("sample rate must be positive")
	ErrInvalidParameter     = errors.New("parameter is not a finite number")
	ErrStreamingBufferInUse = errors.New("streaming buffer is already attached to a source")
	ErrNotStreaming         = errors.New("buffer is not streaming")
	ErrNoHRTF               = errors.New("engine has no HRTF sphere")
	ErrDeviceAttached       = errors.New("engine is driven by a device")
)
