// ABOUTME: Subsystem logger setup for soundscape binaries
// ABOUTME: One slog backend feeds a tagged logger into every package
package logging

import (
	"io"

	"github.com/decred/slog"

	"github.com/Resonate-Protocol/soundscape/internal/discovery"
	"github.com/Resonate-Protocol/soundscape/internal/monitor"
	"github.com/Resonate-Protocol/soundscape/pkg/audio/decode"
	"github.com/Resonate-Protocol/soundscape/pkg/audio/output"
	"github.com/Resonate-Protocol/soundscape/pkg/sound"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/hrtf"
)

// Subsystem tags
const (
	TagMain      = "MAIN"
	TagSound     = "SND"
	TagDecode    = "DEC"
	TagOutput    = "OUT"
	TagHRTF      = "HRTF"
	TagMonitor   = "MON"
	TagDiscovery = "DISC"
)

var installers = map[string]func(slog.Logger){
	TagSound:     sound.UseLogger,
	TagDecode:    decode.UseLogger,
	TagOutput:    output.UseLogger,
	TagHRTF:      hrtf.UseLogger,
	TagMonitor:   monitor.UseLogger,
	TagDiscovery: discovery.UseLogger,
}

// Setup writes every subsystem to w at level and returns the logger for
// the binary itself
func Setup(w io.Writer, level slog.Level) slog.Logger {
	backend := slog.NewBackend(w)
	for tag, install := range installers {
		logger := backend.Logger(tag)
		logger.SetLevel(level)
		install(logger)
	}

	logger := backend.Logger(TagMain)
	logger.SetLevel(level)
	return logger
}
