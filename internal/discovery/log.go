// ABOUTME: Package logger for mDNS discovery
// ABOUTME: Disabled by default until the caller installs a subsystem logger
package discovery

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the logger used by the discovery package
func UseLogger(logger slog.Logger) {
	log = logger
}
