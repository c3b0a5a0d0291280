package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the config file within the .pearsync
// control directory (spec section 6.3).
const ConfigFileName = "config.toml"

// EnvSyncRoot overrides the sync root directory when --sync-root is not
// given, taking precedence over the current working directory.
const EnvSyncRoot = "PEARSYNC_SYNC_ROOT"

// Load reads and validates the config file at path. If the file does not
// exist, DefaultConfig is returned without error — a fresh sync root has
// no config file until the engine first writes one (spec section 3,
// ConfigMetadata lifecycle: "written at engine start").
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("no config file found, using defaults", slog.String("path", path))
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}

	logger.Debug("config loaded", slog.String("path", path))

	return cfg, nil
}

// ReadSyncRootEnv returns the PEARSYNC_SYNC_ROOT override, or "" if unset.
func ReadSyncRootEnv() string {
	return os.Getenv(EnvSyncRoot)
}
