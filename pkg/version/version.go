// Package version holds build information for codecoach, injected via ldflags.
package version

import "fmt"

// Set at build time, e.g. go build -ldflags "-X codecoach/pkg/version.Version=v0.3.0".
//
//nolint:gochecknoglobals // ldflags injection needs package-level vars
var (
	// Version is the semantic version, "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the build information on one line.
func String() string {
	return fmt.Sprintf("codecoach %s (commit %s, built %s)", Version, Commit, Date)
}
