// ABOUTME: Engine configuration with defaults for every unset field
// ABOUTME: Sizes all render-side storage up front
package sound

import (
	"github.com/Resonate-Protocol/soundscape/pkg/audio/resample"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/hrtf"
)

// Config sizes and tunes an Engine. Zero values select defaults.
type Config struct {
	SampleRate         int
	Quantum            int // frames per render pass
	MaxSources         int
	MaxBuses           int
	MaxEffectsPerBus   int
	CommandQueue       int
	MaxCommandsPerPass int
	EventQueue         int

	// Streaming buffers
	StreamChunkFrames int
	StreamChunks      int

	DistanceModel DistanceModel
	Interpolation resample.Mode
	DopplerFactor float32
	NoDoppler     bool
	SpeedOfSound  float32

	// HRTF enables binaural rendering for sources that select it
	HRTF *hrtf.Sphere
}

// withDefaults fills unset fields
func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Quantum <= 0 {
		c.Quantum = 512
	}
	if c.MaxSources <= 0 {
		c.MaxSources = 256
	}
	if c.MaxBuses <= 0 {
		c.MaxBuses = 16
	}
	if c.MaxEffectsPerBus <= 0 {
		c.MaxEffectsPerBus = 8
	}
	if c.CommandQueue <= 0 {
		c.CommandQueue = 1024
	}
	if c.MaxCommandsPerPass <= 0 {
		c.MaxCommandsPerPass = 512
	}
	if c.EventQueue <= 0 {
		c.EventQueue = 256
	}
	if c.StreamChunkFrames <= 0 {
		c.StreamChunkFrames = 8192
	}
	if c.StreamChunks < 2 {
		c.StreamChunks = 4
	}
	if c.SpeedOfSound <= 0 {
		c.SpeedOfSound = 343.3
	}
	if c.DopplerFactor <= 0 || !finite32(c.DopplerFactor) {
		c.DopplerFactor = 1
	}
	if c.NoDoppler {
		c.DopplerFactor = 0
	}
	return c
}

// StreamOptions returns the ring geometry for streaming buffers
func (c Config) StreamOptions() StreamOptions {
	c = c.withDefaults()
	return StreamOptions{ChunkFrames: c.StreamChunkFrames, Chunks: c.StreamChunks}
}
