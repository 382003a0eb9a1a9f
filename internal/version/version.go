package version

import "fmt"

// Build-time variables set by ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version information
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// String returns a single-line version description for CLI output.
func String() string {
	return fmt.Sprintf("vanish %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
