// ABOUTME: Version and product identification for soundscape binaries
// ABOUTME: Reported in monitor handshakes, mDNS records and -version output
package version

// Version is overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.3.0"

const (
	Product      = "soundscape"
	Manufacturer = "Resonate Protocol"
)

// String returns "product version"
func String() string {
	return Product + " " + Version
}
