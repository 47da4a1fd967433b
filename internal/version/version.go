// Package version carries build metadata stamped in via ldflags:
//
//	go build -ldflags "-X github.com/openderiv/ledgerx-data/internal/version.Version=0.3.0 \
//	                   -X github.com/openderiv/ledgerx-data/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/openderiv/ledgerx-data/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the semantic version of this build.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String formats the full version for startup logs.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
