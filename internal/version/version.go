// ABOUTME: Build and product identification constants
// ABOUTME: Reported in client/hello and server/hello device info
package version

const (
	// Version is the release string
	Version = "0.3.0"

	// Product is announced to gateways as the device product name
	Product = "Resonate Voice"

	// Manufacturer is announced to gateways as the device manufacturer
	Manufacturer = "Resonate"
)
