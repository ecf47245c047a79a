// Package version provides build and version information for treewatch.
package version

import (
	"fmt"
	"runtime"
)

// Version is the treewatch release. Set via ldflags, "dev" otherwise:
// -X github.com/Aman-CERP/treewatch/pkg/version.Version=$(VERSION)
var Version = "dev"

// Build information set via ldflags at build time.
var (
	// Commit is the short git commit hash.
	Commit = "unknown"

	// Date is the build date in RFC3339 format.
	Date = "unknown"

	// GoVersion is the Go version used to build the binary (set at runtime).
	GoVersion = runtime.Version()
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// String returns a one-line version string with all build info.
func String() string {
	return fmt.Sprintf("treewatch %s (commit: %s, built: %s, go: %s, %s)",
		Version, Commit, Date, GoVersion, Platform())
}

// Short returns just the version string.
func Short() string {
	return Version
}

// Platform returns GOOS/GOARCH.
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// IsDev reports whether this is a build without an injected version.
func IsDev() bool {
	return Version == "dev"
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		Platform:  Platform(),
	}
}
