// ABOUTME: Package logger for the telemetry monitor
// ABOUTME: Disabled by default until the caller installs a subsystem logger
package monitor

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the logger used by the monitor package
func UseLogger(logger slog.Logger) {
	log = logger
}
