// Package version holds build metadata shared by the CLI and the tracing
// resource.
package version

// Set by goreleaser ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
