package core

// Build information, set at build time via ldflags:
//
//	go build -ldflags "-X preview_engine/core.Version=$(git describe --tags --always) \
//	    -X preview_engine/core.GitCommit=$(git rev-parse --short HEAD) \
//	    -X preview_engine/core.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" .
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo is the build information reported by /health and --version.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// GetVersionInfo returns the injected build information.
func GetVersionInfo() VersionInfo {
	return VersionInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit}
}

// String formats the version for the command line.
//
// Example: "v1.0.0 (built 2024-01-15T10:30:00Z, commit abc1234)"
func (v VersionInfo) String() string {
	return v.Version + " (built " + v.BuildTime + ", commit " + v.GitCommit + ")"
}
