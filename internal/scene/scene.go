// ABOUTME: Builds an engine scene from configuration and animates it
// ABOUTME: Creates buses, effect chains and sources, then moves orbiting sources
package scene

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Resonate-Protocol/soundscape/internal/config"
	"github.com/Resonate-Protocol/soundscape/pkg/audio/decode"
	"github.com/Resonate-Protocol/soundscape/pkg/sound"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/effect"
)

// Opener decodes a file named in the scene
type Opener func(path string) (decode.Decoder, error)

// Engine is the part of sound.Engine a scene drives
type Engine interface {
	Config() sound.Config
	AddBus(name string, parent sound.BusHandle) (sound.BusHandle, error)
	SetBusGain(bus sound.BusHandle, gain float32) error
	AddEffect(bus sound.BusHandle, p effect.Params) (sound.EffectHandle, error)
	CreateStaticBuffer(dec decode.Decoder) (*sound.Buffer, error)
	CreateStreamingBuffer(dec decode.Decoder) (*sound.Buffer, error)
	CreateSource(o sound.SourceOptions) (sound.Handle, error)
	Play(h sound.Handle) error
	SetPosition(h sound.Handle, p mgl32.Vec3) error
	SetVelocity(h sound.Handle, v mgl32.Vec3) error
}

// Voice is one playing scene source
type Voice struct {
	Handle sound.Handle
	Name   string
	cfg    config.SourceConfig
	buf    *sound.Buffer
	phase  float64
}

// Scene tracks the voices created from a scene description
type Scene struct {
	engine Engine
	buses  map[string]sound.BusHandle
	voices []Voice
}

// Build creates every bus and source described by sc and starts playback.
// Buffers are released to their sources; the engine frees them when the
// sources are destroyed.
func Build(e Engine, sc config.SceneConfig, open Opener) (*Scene, error) {
	if open == nil {
		open = decode.Open
	}
	s := &Scene{
		engine: e,
		buses:  map[string]sound.BusHandle{"": sound.MasterBus, "master": sound.MasterBus},
	}

	for _, bc := range sc.Buses {
		if err := s.addBus(bc); err != nil {
			return s, err
		}
	}

	for i, src := range sc.Sources {
		if err := s.addSource(i, len(sc.Sources), src, open); err != nil {
			return s, fmt.Errorf("source %d: %w", i, err)
		}
	}
	return s, nil
}

func (s *Scene) addBus(bc config.BusConfig) error {
	parent, ok := s.buses[bc.Parent]
	if !ok {
		return fmt.Errorf("bus %q: unknown parent %q", bc.Name, bc.Parent)
	}
	bus, err := s.engine.AddBus(bc.Name, parent)
	if err != nil {
		return fmt.Errorf("bus %q: %w", bc.Name, err)
	}
	s.buses[bc.Name] = bus

	if bc.Gain > 0 {
		if err := s.engine.SetBusGain(bus, bc.Gain); err != nil {
			return fmt.Errorf("bus %q gain: %w", bc.Name, err)
		}
	}
	for _, p := range bc.Effects {
		if _, err := s.engine.AddEffect(bus, p); err != nil {
			return fmt.Errorf("bus %q %s: %w", bc.Name, p.Kind, err)
		}
	}
	return nil
}

func (s *Scene) addSource(i, n int, src config.SourceConfig, open Opener) error {
	bus, ok := s.buses[src.Bus]
	if !ok {
		return fmt.Errorf("unknown bus %q", src.Bus)
	}

	buf, name, err := s.buffer(src, open)
	if err != nil {
		return err
	}
	// The source holds its own reference once created
	defer buf.Release()

	looping := src.Looping || src.File == ""
	h, err := s.engine.CreateSource(sound.SourceOptions{
		Buffer:      buf,
		Gain:        src.Gain,
		Pitch:       src.Pitch,
		Looping:     looping,
		Spatial:     src.IsSpatial(),
		Renderer:    src.RendererKind(),
		Bus:         bus,
		Position:    mgl32.Vec3(src.Position),
		Radius:      src.Radius,
		MaxDistance: src.MaxDistance,
		Rolloff:     src.Rolloff,
	})
	if err != nil {
		return err
	}

	v := Voice{
		Handle: h,
		Name:   name,
		cfg:    src,
		buf:    buf,
		phase:  2 * math.Pi * float64(i) / float64(n),
	}
	s.voices = append(s.voices, v)

	if v.orbits() {
		pos, vel := v.orbit(0)
		s.engine.SetPosition(h, pos)
		s.engine.SetVelocity(h, vel)
	}
	return s.engine.Play(h)
}

// buffer decodes the source's file or synthesizes its tone
func (s *Scene) buffer(src config.SourceConfig, open Opener) (*sound.Buffer, string, error) {
	if src.File == "" {
		rate := s.engine.Config().SampleRate
		buf, err := sound.NewStaticBuffer(Tone(src.Tone, rate), 1, rate)
		return buf, fmt.Sprintf("tone %.0fHz", src.Tone), err
	}

	dec, err := open(src.File)
	if err != nil {
		return nil, "", err
	}
	if !src.Streaming {
		// CreateStaticBuffer closes dec
		buf, err := s.engine.CreateStaticBuffer(dec)
		return buf, src.File, err
	}
	buf, err := s.engine.CreateStreamingBuffer(dec)
	if err != nil {
		dec.Close()
		return nil, "", err
	}
	return buf, src.File, nil
}

// Voices returns the sources created by Build
func (s *Scene) Voices() []Voice {
	return s.voices
}

// WaitReady blocks until every streaming voice has decoded its first
// chunk. Offline renders call it so the opening passes are not silent.
func (s *Scene) WaitReady(ctx context.Context) error {
	for _, v := range s.voices {
		if !v.buf.Streaming() {
			continue
		}
		if err := v.buf.WaitReady(ctx); err != nil {
			return fmt.Errorf("%s: %w", v.Name, err)
		}
	}
	return nil
}

// Update moves orbiting voices to their positions at elapsed
func (s *Scene) Update(elapsed time.Duration) error {
	for _, v := range s.voices {
		if !v.orbits() {
			continue
		}
		pos, vel := v.orbit(elapsed)
		if err := s.engine.SetPosition(v.Handle, pos); err != nil {
			return err
		}
		if err := s.engine.SetVelocity(v.Handle, vel); err != nil {
			return err
		}
	}
	return nil
}

func (v Voice) orbits() bool {
	return v.cfg.IsSpatial() && v.cfg.OrbitRadius > 0 && v.cfg.OrbitPeriod > 0
}

// orbit returns position and velocity on a horizontal circle around the
// scene's centre point
func (v Voice) orbit(elapsed time.Duration) (mgl32.Vec3, mgl32.Vec3) {
	r := float64(v.cfg.OrbitRadius)
	omega := 2 * math.Pi / v.cfg.OrbitPeriod
	theta := omega*elapsed.Seconds() + v.phase
	sin, cos := math.Sincos(theta)

	centre := mgl32.Vec3(v.cfg.Position)
	pos := centre.Add(mgl32.Vec3{float32(r * sin), 0, float32(r * cos)})
	vel := mgl32.Vec3{float32(r * omega * cos), 0, float32(-r * omega * sin)}
	return pos, vel
}

// Tone returns one second of a mono sine. The frequency is rounded to a
// whole number of cycles per second so the buffer loops without a seam.
func Tone(freq float64, sampleRate int) []float32 {
	cycles := math.Round(freq)
	if cycles < 1 {
		cycles = 1
	}
	out := make([]float32, sampleRate)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*cycles*float64(i)/float64(sampleRate)))
	}
	return out
}
