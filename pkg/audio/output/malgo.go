// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo with the render callback on the device thread
package output

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	cfg      Config
	cb       Callback
	format   malgo.FormatType
	scratch  []float32
	closing  atomic.Bool
	errs     errorSink

	// BitDepth selects the device sample format: 32 (float, default) or 16
	BitDepth int
}

// NewMalgo creates a new Malgo output
func NewMalgo() *Malgo {
	return &Malgo{errs: newErrorSink(), BitDepth: 32}
}

// Open initializes the playback device
func (m *Malgo) Open(cfg Config, cb Callback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := cfg.validate(); err != nil {
		return err
	}
	if m.device != nil {
		m.closeDevice()
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
			log.Debugf("miniaudio: %s", message)
		})
		if err != nil {
			return fmt.Errorf("%w: malgo context: %v", ErrDeviceOpen, err)
		}
		m.malgoCtx = ctx
	}

	switch m.BitDepth {
	case 16:
		m.format = malgo.FormatS16
	default:
		m.format = malgo.FormatF32
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = m.format
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BlockFrames)
	deviceConfig.Alsa.NoMMap = 1

	m.cfg = cfg
	m.cb = cb
	m.scratch = make([]float32, cfg.BlockFrames*cfg.Channels)

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(pOutputSample, frameCount)
		},
		Stop: func() {
			if !m.closing.Load() {
				m.errs.report(ErrDeviceLost)
			}
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}
	m.device = device

	log.Infof("Audio output initialized: %dHz, %d channels (malgo/%s)",
		cfg.SampleRate, cfg.Channels, formatName(m.format))
	return nil
}

// Start begins playback
func (m *Malgo) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return ErrNotOpen
	}
	m.closing.Store(false)
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	total := int(frameCount) * m.cfg.Channels
	if cap(m.scratch) < total {
		// Devices may exceed the requested period once; keep the larger size
		m.scratch = make([]float32, total)
	}
	samples := m.scratch[:total]
	m.cb(samples)

	switch m.format {
	case malgo.FormatS16:
		write16Bit(pOutput, samples)
	default:
		writeFloat32(pOutput, samples)
	}
}

// write16Bit converts float samples to 16-bit little-endian output
func write16Bit(output []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.FloatToInt16(s)))
	}
}

// writeFloat32 packs float samples little-endian
func writeFloat32(output []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(s))
	}
}

// Errors delivers device loss notifications
func (m *Malgo) Errors() <-chan error {
	return m.errs
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Warnf("malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device == nil {
		return
	}
	m.closing.Store(true)
	if err := m.device.Stop(); err != nil {
		log.Warnf("device stop error: %v", err)
	}
	m.device.Uninit()
	m.device = nil
}

// formatName returns human-readable format name
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatF32:
		return "F32"
	default:
		return fmt.Sprintf("Unknown(%d)", format)
	}
}
