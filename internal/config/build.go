package config

// Linker-injected build metadata variables. These are set at compile time via
// -ldflags, for example:
//
//	go build -ldflags "-X envmonitor/internal/config.version=1.4.0 \
//	    -X envmonitor/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X envmonitor/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// The defaults below are what `go run` and the tests see.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
// LoadConfig calls it once to populate Config.Build; the API logs it at
// startup and the CLI prints it under --version.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
