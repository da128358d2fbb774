// Package version holds build metadata injected via ldflags.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build as "v1.2.3 (abc1234, 2025-03-14)".
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
