package version

import "runtime"

// Build-time variables (set via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String returns a one-line version description
func String() string {
	return "Medguide v" + Version + " (" + GitCommit + ")"
}

// Info returns version information
func Info() map[string]interface{} {
	return map[string]interface{}{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
		"go_version": runtime.Version(),
	}
}
