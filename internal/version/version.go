// Package version provides build and version information for hydronet.
package version

// Version is the current release version of hydronet.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/mthorley/hydronet/internal/version.Version=x.y.z"
var Version = "0.3.0"
