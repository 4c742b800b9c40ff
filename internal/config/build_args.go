package config

import "fmt"

// Set through -ldflags "-X github/chapool/wallet-core/internal/config.BuildVersion=..." at build time.
var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// GetFormattedBuildArgs renders the build information for --version.
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v @ %v (%v)", BuildVersion, BuildCommit, BuildDate)
}
