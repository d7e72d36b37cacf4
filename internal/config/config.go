// ABOUTME: YAML and command-line configuration for soundscape binaries
// ABOUTME: Loads a scene file, applies flag overrides and builds the engine config
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/decred/slog"
	"gopkg.in/yaml.v3"

	"github.com/Resonate-Protocol/soundscape/pkg/audio/resample"
	"github.com/Resonate-Protocol/soundscape/pkg/sound"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/effect"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/hrtf"
)

var ErrInvalid = errors.New("invalid configuration")

// SyntheticHRTF selects the built-in spherical head model instead of a file
const SyntheticHRTF = "synthetic"

// Config is the complete configuration of a soundscape binary
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Engine   EngineConfig  `yaml:"engine"`
	Output   OutputConfig  `yaml:"output"`
	Monitor  MonitorConfig `yaml:"monitor"`
	Scene    SceneConfig   `yaml:"scene"`
}

// EngineConfig mirrors sound.Config in file form
type EngineConfig struct {
	SampleRate        int     `yaml:"sample_rate"`
	Quantum           int     `yaml:"quantum"`
	MaxSources        int     `yaml:"max_sources"`
	MaxBuses          int     `yaml:"max_buses"`
	CommandQueue      int     `yaml:"command_queue"`
	StreamChunkFrames int     `yaml:"stream_chunk_frames"`
	StreamChunks      int     `yaml:"stream_chunks"`
	DistanceModel     string  `yaml:"distance_model"`
	Interpolation     string  `yaml:"interpolation"`
	DopplerFactor     float32 `yaml:"doppler_factor"`
	NoDoppler         bool    `yaml:"no_doppler"`
	SpeedOfSound      float32 `yaml:"speed_of_sound"`
	HRTF              string  `yaml:"hrtf"` // sphere file, "synthetic" or empty
	HRTFLength        int     `yaml:"hrtf_length"`
}

// OutputConfig selects the playback device
type OutputConfig struct {
	Backend  string `yaml:"backend"`
	BitDepth int    `yaml:"bit_depth"`
}

// MonitorConfig configures the telemetry server
type MonitorConfig struct {
	Addr     string        `yaml:"addr"` // empty disables the monitor
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
	MDNS     bool          `yaml:"mdns"`
	Name     string        `yaml:"name"`
}

// SceneConfig describes what the demo plays
type SceneConfig struct {
	Buses   []BusConfig    `yaml:"buses"`
	Sources []SourceConfig `yaml:"sources"`
}

// BusConfig declares a submix bus and its effect chain
type BusConfig struct {
	Name    string          `yaml:"name"`
	Parent  string          `yaml:"parent"` // empty routes to master
	Gain    float32         `yaml:"gain"`
	Effects []effect.Params `yaml:"effects"`
}

// SourceConfig declares one sound. A file is decoded; otherwise a sine
// tone at Tone Hz is generated.
type SourceConfig struct {
	File        string     `yaml:"file"`
	Tone        float64    `yaml:"tone"`
	Gain        float32    `yaml:"gain"`
	Pitch       float32    `yaml:"pitch"`
	Looping     bool       `yaml:"looping"`
	Streaming   bool       `yaml:"streaming"`
	Spatial     *bool      `yaml:"spatial"` // default true
	Renderer    string     `yaml:"renderer"`
	Bus         string     `yaml:"bus"`
	Position    [3]float32 `yaml:"position"`
	OrbitRadius float32    `yaml:"orbit_radius"`
	OrbitPeriod float64    `yaml:"orbit_period"` // seconds per revolution
	Radius      float32    `yaml:"radius"`
	MaxDistance float32    `yaml:"max_distance"`
	Rolloff     float32    `yaml:"rolloff"`
}

// IsSpatial reports whether the source is positioned in 3D
func (s SourceConfig) IsSpatial() bool {
	return s.Spatial == nil || *s.Spatial
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		LogLevel: "info",
		Engine: EngineConfig{
			SampleRate:    48000,
			Quantum:       512,
			MaxSources:    256,
			DistanceModel: sound.DistanceInverse.String(),
			Interpolation: resample.Cubic.String(),
			DopplerFactor: 1,
			SpeedOfSound:  343.3,
			HRTFLength:    128,
		},
		Output: OutputConfig{
			Backend:  "malgo",
			BitDepth: 32,
		},
		Monitor: MonitorConfig{
			Path:     "/monitor",
			Interval: 250 * time.Millisecond,
		},
	}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Default(), fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseFlags loads the file named by -config, when present, and then
// applies the remaining flags on top. Binary-specific flags registered on
// fs before the call are parsed in the same pass.
func ParseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	path := configArg(args)
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return cfg, err
		}
	}

	fs.String("config", path, "YAML configuration file")
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// RegisterFlags binds command-line overrides to c's fields, using the
// current values as defaults
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (trace, debug, info, warn, error, critical, off)")

	fs.IntVar(&c.Engine.SampleRate, "rate", c.Engine.SampleRate, "Engine sample rate in Hz")
	fs.IntVar(&c.Engine.Quantum, "quantum", c.Engine.Quantum, "Frames per render pass")
	fs.IntVar(&c.Engine.MaxSources, "max-sources", c.Engine.MaxSources, "Maximum simultaneous sources")
	fs.StringVar(&c.Engine.DistanceModel, "distance-model", c.Engine.DistanceModel, "Distance model (inverse, inverse-square, linear, exponent, none)")
	fs.StringVar(&c.Engine.Interpolation, "interpolation", c.Engine.Interpolation, "Resampling interpolation (cubic, linear)")
	fs.Var((*float32Value)(&c.Engine.DopplerFactor), "doppler", "Doppler factor")
	fs.BoolVar(&c.Engine.NoDoppler, "no-doppler", c.Engine.NoDoppler, "Disable doppler shift")
	fs.StringVar(&c.Engine.HRTF, "hrtf", c.Engine.HRTF, "HRIR sphere file, or \"synthetic\"")

	fs.StringVar(&c.Output.Backend, "backend", c.Output.Backend, "Output backend (malgo, oto, portaudio, manual)")
	fs.IntVar(&c.Output.BitDepth, "bit-depth", c.Output.BitDepth, "Device sample format for malgo (16 or 32)")

	fs.StringVar(&c.Monitor.Addr, "monitor", c.Monitor.Addr, "Telemetry monitor listen address (empty disables)")
	fs.BoolVar(&c.Monitor.MDNS, "mdns", c.Monitor.MDNS, "Advertise the monitor via mDNS")
	fs.StringVar(&c.Monitor.Name, "name", c.Monitor.Name, "Monitor name for mDNS")
}

// Validate checks every field that the engine would otherwise reject later
func (c Config) Validate() error {
	if _, ok := slog.LevelFromString(c.LogLevel); !ok {
		return fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	e := c.Engine
	if e.SampleRate < 8000 || e.SampleRate > 384000 {
		return fmt.Errorf("%w: sample rate %d outside 8000-384000", ErrInvalid, e.SampleRate)
	}
	if e.Quantum < 16 || e.Quantum > 8192 {
		return fmt.Errorf("%w: quantum %d outside 16-8192", ErrInvalid, e.Quantum)
	}
	if e.MaxSources < 0 {
		return fmt.Errorf("%w: max sources %d", ErrInvalid, e.MaxSources)
	}
	if _, err := sound.ParseDistanceModel(e.DistanceModel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if e.Interpolation != resample.Cubic.String() && e.Interpolation != resample.Linear.String() {
		return fmt.Errorf("%w: interpolation %q", ErrInvalid, e.Interpolation)
	}
	if c.Output.BitDepth != 16 && c.Output.BitDepth != 32 {
		return fmt.Errorf("%w: bit depth %d", ErrInvalid, c.Output.BitDepth)
	}

	buses := map[string]bool{"": true, "master": true}
	for _, b := range c.Scene.Buses {
		if b.Name == "" || buses[b.Name] {
			return fmt.Errorf("%w: bus name %q missing or duplicated", ErrInvalid, b.Name)
		}
		if !buses[b.Parent] {
			return fmt.Errorf("%w: bus %q routes to undeclared parent %q", ErrInvalid, b.Name, b.Parent)
		}
		buses[b.Name] = true
	}

	for i, s := range c.Scene.Sources {
		if s.File == "" && s.Tone <= 0 {
			return fmt.Errorf("%w: source %d needs a file or a tone", ErrInvalid, i)
		}
		if _, err := parseRenderer(s.Renderer); err != nil {
			return fmt.Errorf("%w: source %d: %v", ErrInvalid, i, err)
		}
		if strings.EqualFold(s.Renderer, "hrtf") && e.HRTF == "" {
			return fmt.Errorf("%w: source %d uses hrtf but engine.hrtf is not set", ErrInvalid, i)
		}
		if !buses[s.Bus] {
			return fmt.Errorf("%w: source %d routes to undeclared bus %q", ErrInvalid, i, s.Bus)
		}
		if s.OrbitPeriod < 0 {
			return fmt.Errorf("%w: source %d orbit period is negative", ErrInvalid, i)
		}
	}
	return nil
}

// Level returns the parsed log level
func (c Config) Level() slog.Level {
	lvl, ok := slog.LevelFromString(c.LogLevel)
	if !ok {
		return slog.LevelInfo
	}
	return lvl
}

// SoundConfig converts the engine section, loading or synthesizing the HRIR
// sphere it names
func (c Config) SoundConfig() (sound.Config, error) {
	e := c.Engine
	model, err := sound.ParseDistanceModel(e.DistanceModel)
	if err != nil {
		return sound.Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	sc := sound.Config{
		SampleRate:        e.SampleRate,
		Quantum:           e.Quantum,
		MaxSources:        e.MaxSources,
		MaxBuses:          e.MaxBuses,
		CommandQueue:      e.CommandQueue,
		StreamChunkFrames: e.StreamChunkFrames,
		StreamChunks:      e.StreamChunks,
		DistanceModel:     model,
		Interpolation:     resample.ParseMode(e.Interpolation),
		DopplerFactor:     e.DopplerFactor,
		NoDoppler:         e.NoDoppler,
		SpeedOfSound:      e.SpeedOfSound,
	}

	switch e.HRTF {
	case "":
	case SyntheticHRTF:
		sc.HRTF = hrtf.Synthesize(e.SampleRate, e.HRTFLength)
	default:
		if sc.HRTF, err = hrtf.LoadFile(e.HRTF); err != nil {
			return sc, fmt.Errorf("failed to load HRTF: %w", err)
		}
	}
	return sc, nil
}

// RendererKind returns the source's parsed renderer
func (s SourceConfig) RendererKind() sound.Renderer {
	r, _ := parseRenderer(s.Renderer)
	return r
}

func parseRenderer(name string) (sound.Renderer, error) {
	switch strings.ToLower(name) {
	case "", "panning", "pan":
		return sound.RendererPanning, nil
	case "hrtf", "binaural":
		return sound.RendererHRTF, nil
	}
	return 0, fmt.Errorf("unknown renderer %q", name)
}

// configArg finds the -config value without disturbing the other flags
func configArg(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// float32Value adapts a float32 field to flag.Value
type float32Value float32

func (f *float32Value) String() string {
	return fmt.Sprint(float32(*f))
}

func (f *float32Value) Set(s string) error {
	var v float64
	if _, err := fmt.Sscan(s, &v); err != nil {
		return err
	}
	*f = float32Value(v)
	return nil
}
