// ABOUTME: Entry point for offline scene rendering
// ABOUTME: Renders a configured scene faster than real time into a WAV or raw PCM file
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/decred/slog"

	"github.com/Resonate-Protocol/soundscape/internal/config"
	"github.com/Resonate-Protocol/soundscape/internal/logging"
	"github.com/Resonate-Protocol/soundscape/internal/scene"
	"github.com/Resonate-Protocol/soundscape/pkg/audio"
	"github.com/Resonate-Protocol/soundscape/pkg/audio/encode"
	"github.com/Resonate-Protocol/soundscape/pkg/sound"
)

var (
	outPath  = flag.String("o", "soundscape.wav", "Output file (.wav, or .pcm for raw little-endian PCM)")
	duration = flag.Duration("duration", 10*time.Second, "Length of the render")
	outBits  = flag.Int("out-bits", 16, "Output bit depth (16 or 24)")
)

func main() {
	cfg, err := config.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.Setup(os.Stderr, cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, cfg); err != nil {
		log.Errorf("Render failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log slog.Logger, cfg config.Config) error {
	soundCfg, err := cfg.SoundConfig()
	if err != nil {
		return err
	}
	engine, err := sound.NewEngine(soundCfg, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	s, err := scene.Build(engine, cfg.Scene, nil)
	if err != nil {
		return err
	}
	if len(s.Voices()) == 0 {
		return fmt.Errorf("scene has no sources")
	}

	f, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := encode.New(f, audio.Format{
		Codec:      codecForPath(*outPath),
		SampleRate: soundCfg.SampleRate,
		Channels:   sound.Channels,
		BitDepth:   *outBits,
	})
	if err != nil {
		return err
	}

	frames := int64(duration.Seconds() * float64(soundCfg.SampleRate))
	log.Infof("Rendering %v (%d frames) of %d sources to %s", *duration, frames, len(s.Voices()), *outPath)

	start := time.Now()
	if err := render(ctx, engine, s, enc, frames); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	st := engine.Stats()
	log.Infof("Rendered %d passes in %v (max pass %v, %d underruns)",
		st.Passes, time.Since(start).Round(time.Millisecond), st.MaxPass, st.Underruns)
	return f.Close()
}

// render pulls frames from the engine one quantum at a time, advancing the
// scene clock by the audio rendered rather than by wall time
func render(ctx context.Context, engine *sound.Engine, s *scene.Scene, enc encode.Encoder, frames int64) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}

	cfg := engine.Config()
	block := make([]float32, cfg.Quantum*sound.Channels)
	for done := int64(0); done < frames; {
		if err := ctx.Err(); err != nil {
			return err
		}

		elapsed := time.Duration(done) * time.Second / time.Duration(cfg.SampleRate)
		if err := s.Update(elapsed); err != nil {
			return err
		}

		n := min(int64(cfg.Quantum), frames-done)
		out := block[:n*sound.Channels]
		if err := engine.Render(out); err != nil {
			return err
		}
		if err := enc.Write(out); err != nil {
			return err
		}
		done += n
	}
	return nil
}

func codecForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".pcm") {
		return audio.CodecPCM
	}
	return audio.CodecWAV
}
