package config

// Default values for configuration options, used both as the starting
// point for TOML decoding and as the fallback when no config file exists.
const (
	defaultStartupConflictPolicy = string(PolicyRemoteWins)
	defaultDebounceMillis        = 300
	defaultLogLevel              = "info"
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Peer: PeerConfig{},
		Sync: SyncConfig{
			StartupConflictPolicy: defaultStartupConflictPolicy,
			DebounceMillis:        defaultDebounceMillis,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}
