// ABOUTME: Package logger for decoders
// ABOUTME: Disabled by default until the caller installs a subsystem logger
package decode

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the logger used by the decode package
func UseLogger(logger slog.Logger) {
	log = logger
}
