// Package version holds build metadata injected via -ldflags.
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String renders the build metadata in one line for logs.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
