// Package config implements TOML configuration loading, validation, and
// atomic persistence for the PearSync group config (data-model.md section
// "ConfigMetadata") and the peer's local ambient settings.
package config

// Config is the top-level configuration structure persisted at
// <sync_root>/.pearsync/config.toml.
type Config struct {
	Peer    PeerConfig    `toml:"peer"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
}

// PeerConfig describes this peer. Name is the human-readable peer name
// published in PeerMetadata; SyncFolder records the local sync root for
// diagnostics (it is never replicated). WriterKey persists the identity
// `pearsync init` minted so every subsequent `pearsync watch` keeps the
// same manifest writer key instead of re-rolling one each run.
type PeerConfig struct {
	Name       string `toml:"name"`
	SyncFolder string `toml:"sync_folder"`
	WriterKey  string `toml:"writer_key"`
}

// StartupConflictPolicy names the three policies the engine's first
// remote-reconcile pass can be forced into (spec section 4.7.8).
type StartupConflictPolicy string

// Recognized startup conflict policies.
const (
	PolicyRemoteWins StartupConflictPolicy = "remote-wins"
	PolicyLocalWins  StartupConflictPolicy = "local-wins"
	PolicyKeepBoth   StartupConflictPolicy = "keep-both"
)

// SyncConfig controls engine behavior that is group-visible (published in
// ConfigMetadata.settings) or purely local to this peer's process.
type SyncConfig struct {
	StartupConflictPolicy string `toml:"startup_conflict_policy"`
	DebounceMillis        int    `toml:"debounce_millis"`
}

// LoggingConfig controls log output. Local-only; never published.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Policy returns the configured StartupConflictPolicy, or "" if unset or
// unrecognized.
func (c *SyncConfig) Policy() StartupConflictPolicy {
	switch StartupConflictPolicy(c.StartupConflictPolicy) {
	case PolicyRemoteWins, PolicyLocalWins, PolicyKeepBoth:
		return StartupConflictPolicy(c.StartupConflictPolicy)
	default:
		return ""
	}
}
