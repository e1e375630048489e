// Package version records build information for overpassmcp
package version

import "fmt"

// Build information, overridable at link time
var (
	BuildVersion = "0.1.0"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// String returns a human-readable version string
func String() string {
	return fmt.Sprintf("overpassmcp %s (commit %s, built %s)", BuildVersion, BuildCommit, BuildDate)
}
