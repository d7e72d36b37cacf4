// ABOUTME: Tests for configuration loading, flag overrides and validation
// ABOUTME: Uses in-memory YAML and temp files
package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/soundscape/pkg/audio/resample"
	"github.com/Resonate-Protocol/soundscape/pkg/sound"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/effect"
)

const sceneYAML = `
log_level: debug
engine:
  sample_rate: 44100
  quantum: 256
  distance_model: linear
  interpolation: linear
  hrtf: synthetic
  hrtf_length: 64
monitor:
  addr: ":8927"
  interval: 100ms
scene:
  buses:
    - name: ambience
      gain: 0.5
      effects:
        - kind: reverb
          decay_time: 2.5
          wet: 0.4
          dry: 1
        - kind: lowpass
          cutoff: 4000
  sources:
    - file: rain.ogg
      streaming: true
      looping: true
      bus: ambience
      spatial: false
    - tone: 440
      renderer: hrtf
      orbit_radius: 2
      orbit_period: 8
`

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParseScene(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(strings.NewReader(sceneYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Engine.SampleRate != 44100 || cfg.Engine.Quantum != 256 {
		t.Errorf("engine section not applied: %+v", cfg.Engine)
	}
	if cfg.Engine.SpeedOfSound != 343.3 {
		t.Errorf("expected default speed of sound to survive, got %f", cfg.Engine.SpeedOfSound)
	}
	if cfg.Monitor.Interval != 100*time.Millisecond {
		t.Errorf("expected 100ms interval, got %v", cfg.Monitor.Interval)
	}
	if cfg.Output.Backend != "malgo" {
		t.Errorf("expected default backend, got %s", cfg.Output.Backend)
	}

	if len(cfg.Scene.Buses) != 1 || len(cfg.Scene.Buses[0].Effects) != 2 {
		t.Fatalf("unexpected buses: %+v", cfg.Scene.Buses)
	}
	fx := cfg.Scene.Buses[0].Effects
	if fx[0].Kind != effect.KindReverb || fx[0].DecayTime != 2.5 {
		t.Errorf("unexpected reverb params: %+v", fx[0])
	}
	if fx[1].Kind != effect.KindLowPass || fx[1].Cutoff != 4000 {
		t.Errorf("unexpected lowpass params: %+v", fx[1])
	}
	// Fields left out of the file take the kind's defaults
	if fx[0].Damping != 0.5 || fx[1].Q != 0.7071 {
		t.Errorf("omitted effect fields not defaulted: %+v, %+v", fx[0], fx[1])
	}

	if len(cfg.Scene.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Scene.Sources))
	}
	rain, tone := cfg.Scene.Sources[0], cfg.Scene.Sources[1]
	if rain.IsSpatial() || !rain.Streaming || rain.Bus != "ambience" {
		t.Errorf("unexpected file source: %+v", rain)
	}
	if !tone.IsSpatial() || tone.RendererKind() != sound.RendererHRTF || tone.OrbitPeriod != 8 {
		t.Errorf("unexpected tone source: %+v", tone)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	_, err := Parse(strings.NewReader("engine:\n  sample_rat: 48000\n"))
	if err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestParseRejectsUnknownEffect(t *testing.T) {
	t.Parallel()
	_, err := Parse(strings.NewReader("scene:\n  buses:\n    - name: a\n      effects:\n        - kind: flanger\n"))
	if err == nil {
		t.Fatal("expected unknown effect kind to be rejected")
	}
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty input should yield defaults: %v", err)
	}
	if cfg.Engine.SampleRate != 48000 {
		t.Errorf("expected default sample rate, got %d", cfg.Engine.SampleRate)
	}
}

func TestParseFlagsOverridesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "scene.yaml")
	if err := os.WriteFile(path, []byte(sceneYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	out := fs.String("o", "", "output")
	cfg, err := ParseFlags(fs, []string{"-config", path, "-quantum", "128", "-doppler", "0.5", "-o", "x.wav", "extra"})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}

	if cfg.Engine.Quantum != 128 {
		t.Errorf("expected flag to override quantum, got %d", cfg.Engine.Quantum)
	}
	if cfg.Engine.SampleRate != 44100 {
		t.Errorf("expected file sample rate to survive, got %d", cfg.Engine.SampleRate)
	}
	if cfg.Engine.DopplerFactor != 0.5 {
		t.Errorf("expected doppler 0.5, got %f", cfg.Engine.DopplerFactor)
	}
	if *out != "x.wav" {
		t.Errorf("expected binary flag to parse, got %q", *out)
	}
	if fs.NArg() != 1 || fs.Arg(0) != "extra" {
		t.Errorf("expected positional args to remain, got %v", fs.Args())
	}
}

func TestParseFlagsWithoutFile(t *testing.T) {
	t.Parallel()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := ParseFlags(fs, []string{"--backend=manual"})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if cfg.Output.Backend != "manual" {
		t.Errorf("expected backend manual, got %s", cfg.Output.Backend)
	}
}

func TestParseFlagsMissingFile(t *testing.T) {
	t.Parallel()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if _, err := ParseFlags(fs, []string{"-config=/does/not/exist.yaml"}); err == nil {
		t.Fatal("expected missing config file to fail")
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"sample rate", func(c *Config) { c.Engine.SampleRate = 100 }},
		{"quantum", func(c *Config) { c.Engine.Quantum = 4 }},
		{"distance model", func(c *Config) { c.Engine.DistanceModel = "cubic" }},
		{"interpolation", func(c *Config) { c.Engine.Interpolation = "sinc" }},
		{"bit depth", func(c *Config) { c.Output.BitDepth = 24 }},
		{"empty source", func(c *Config) { c.Scene.Sources = []SourceConfig{{}} }},
		{"renderer", func(c *Config) { c.Scene.Sources = []SourceConfig{{Tone: 1, Renderer: "ambisonic"}} }},
		{"hrtf without sphere", func(c *Config) { c.Scene.Sources = []SourceConfig{{Tone: 1, Renderer: "hrtf"}} }},
		{"unknown bus", func(c *Config) { c.Scene.Sources = []SourceConfig{{Tone: 1, Bus: "nowhere"}} }},
		{"duplicate bus", func(c *Config) { c.Scene.Buses = []BusConfig{{Name: "a"}, {Name: "a"}} }},
		{"bus parent", func(c *Config) { c.Scene.Buses = []BusConfig{{Name: "a", Parent: "b"}} }},
		{"orbit period", func(c *Config) { c.Scene.Sources = []SourceConfig{{Tone: 1, OrbitPeriod: -1}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestSoundConfig(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(strings.NewReader(sceneYAML))
	if err != nil {
		t.Fatal(err)
	}
	sc, err := cfg.SoundConfig()
	if err != nil {
		t.Fatalf("SoundConfig failed: %v", err)
	}

	if sc.SampleRate != 44100 || sc.Quantum != 256 {
		t.Errorf("unexpected engine geometry: %d/%d", sc.SampleRate, sc.Quantum)
	}
	if sc.DistanceModel != sound.DistanceLinear {
		t.Errorf("expected linear distance model, got %s", sc.DistanceModel)
	}
	if sc.Interpolation != resample.Linear {
		t.Errorf("expected linear interpolation, got %s", sc.Interpolation)
	}
	if sc.HRTF == nil || sc.HRTF.Length != 64 || sc.HRTF.SampleRate != 44100 {
		t.Errorf("expected a synthetic 64-tap sphere at 44100 Hz, got %+v", sc.HRTF)
	}
}

func TestSoundConfigMissingSphere(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Engine.HRTF = filepath.Join(t.TempDir(), "missing.hrir")
	if _, err := cfg.SoundConfig(); err == nil {
		t.Fatal("expected missing sphere file to fail")
	}
}

func TestLevel(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.LogLevel = "debug"
	if cfg.Level().String() != "DBG" {
		t.Errorf("expected DBG, got %s", cfg.Level())
	}
}

func TestConfigArg(t *testing.T) {
	t.Parallel()
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-config", "a.yaml"}, "a.yaml"},
		{[]string{"--config=b.yaml", "-rate", "1"}, "b.yaml"},
		{[]string{"-rate", "1"}, ""},
		{[]string{"-config"}, ""},
	}
	for _, tt := range tests {
		if got := configArg(tt.args); got != tt.want {
			t.Errorf("configArg(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
