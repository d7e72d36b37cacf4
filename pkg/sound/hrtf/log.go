// ABOUTME: Package logger for HRTF loading
// ABOUTME: Disabled by default until the caller installs a subsystem logger
package hrtf

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the logger used by the hrtf package
func UseLogger(logger slog.Logger) {
	log = logger
}
