// Package version holds build information for the lotwatch binaries.
//
// Set at build time:
//
//	go build -ldflags "-X github.com/rickgao/lot-watch/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/lot-watch/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/lot-watch/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	         ./cmd/lotwatch
package version

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Info is the build information reported by /health.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the build information.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String returns "version (commit) built time".
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
