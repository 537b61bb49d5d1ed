// Package version carries the build identity stamped into the smith
// binary at link time. Unstamped builds report themselves as "dev".
package version

import (
	"fmt"
	"runtime"
)

// Overridden via -ldflags "-X github.com/brunoamancio/Smith/internal/version.Version=..."
// (and likewise for Commit and Date).
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info renders the banner printed by "smith version".
func Info() string {
	return fmt.Sprintf("smith %s (%s, built %s, %s/%s)",
		Version, shortCommit(), Date, runtime.GOOS, runtime.GOARCH)
}

// shortCommit abbreviates a full commit hash to the usual 8 characters.
func shortCommit() string {
	if len(Commit) > 8 {
		return Commit[:8]
	}
	return Commit
}
