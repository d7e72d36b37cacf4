// ABOUTME: Package logger for the sound engine
// ABOUTME: Disabled by default until the caller installs a subsystem logger
package sound

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the logger used by the sound package. The render pass
// never logs; only control-side calls do.
func UseLogger(logger slog.Logger) {
	log = logger
}
