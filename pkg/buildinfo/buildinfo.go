package buildinfo

import "github.com/carlmjohnson/versioninfo"

// Version holds the application's version string.
// It's a `var` so it can be set at compile time using ldflags.
// Example: go build -ldflags="-X github.com/paulschiretz/pgl-mirror/pkg/buildinfo.Version=1.0.0"
var Version = "dev"

// Name is the canonical name of the application used for logging.
var Name = "PGL-Mirror"

// Describe returns the ldflags version, or the VCS revision recorded by the Go
// toolchain when the binary was built without one.
func Describe() string {
	if Version != "dev" {
		return Version
	}
	return versioninfo.Short()
}
