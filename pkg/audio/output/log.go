// ABOUTME: Package logger for output devices
// ABOUTME: Disabled by default until the caller installs a subsystem logger
package output

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the logger used by the output package
func UseLogger(logger slog.Logger) {
	log = logger
}
