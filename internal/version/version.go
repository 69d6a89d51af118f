// ABOUTME: Version and product identification constants
// ABOUTME: Reported in handshakes, mDNS records, and the CLI
package version

const (
	// Version is the release version of this build
	Version = "0.3.0"

	// Product is the human readable product name
	Product = "Check Time"

	// Manufacturer identifies the publisher in device info
	Manufacturer = "checktime"

	// ProtocolVersion is the websocket time protocol revision
	ProtocolVersion = 1
)

// String returns "Product Version"
func String() string {
	return Product + " " + Version
}
