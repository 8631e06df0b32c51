// Package analytics provides a local SQLite log of upstream calls and CLI
// commands, summarised by `fidchannels stats`.
package analytics

import "os"

// Event represents a single analytics event
type Event struct {
	ID         int64
	Timestamp  int64
	Operation  string // fetch_channels, membership, frames, or command:<name>
	Backend    string
	FID        uint64
	RequestID  string
	Success    bool
	DurationMs int64
	ErrorType  string
	Flags      string // JSON string of flags
}

// IsEnabledFromEnv checks the FIDCHANNELS_ANALYTICS_ENABLED environment
// variable and returns the effective enabled state. Environment variable
// overrides the config value.
func IsEnabledFromEnv(configEnabled bool) bool {
	envVal := os.Getenv("FIDCHANNELS_ANALYTICS_ENABLED")
	if envVal == "" {
		return configEnabled
	}
	return envVal == "true" || envVal == "1"
}
