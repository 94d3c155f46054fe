// Package version holds build-time identifiers injected via -ldflags, shared
// by the broker, renderer, and controller binaries for diagnostics.
package version

// Version, Commit, and BuildDate default to "dev"/"unknown" for local builds
// and are overwritten at release build time via:
//
//	-ldflags "-X github.com/rapidaai/padbroker/internal/version.Version=... \
//	          -X github.com/rapidaai/padbroker/internal/version.Commit=... \
//	          -X github.com/rapidaai/padbroker/internal/version.BuildDate=..."
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the three fields as a single line for --version output.
func String() string {
	return Version + " (" + Commit + ", " + BuildDate + ")"
}
