package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pearsync/pearsync/internal/config"
)

func resetRootFlags(t *testing.T) {
	t.Helper()

	oldRoot, oldJSON, oldVerbose, oldQuiet := flagSyncRoot, flagJSON, flagVerbose, flagQuiet
	t.Cleanup(func() {
		flagSyncRoot, flagJSON, flagVerbose, flagQuiet = oldRoot, oldJSON, oldVerbose, oldQuiet
	})

	flagSyncRoot, flagJSON, flagVerbose, flagQuiet = "", false, false, false
}

func TestCliContextFrom_ReturnsNilWithoutContext(t *testing.T) {
	assert.Nil(t, cliContextFrom(context.Background()))
}

func TestMustCLIContext_PanicsWithoutContext(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

func TestResolveSyncRoot_PrefersFlagOverEnv(t *testing.T) {
	resetRootFlags(t)

	dir := t.TempDir()
	flagSyncRoot = dir

	got, err := resolveSyncRoot()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestResolveSyncRoot_FallsBackToEnv(t *testing.T) {
	resetRootFlags(t)

	dir := t.TempDir()
	t.Setenv(config.EnvSyncRoot, dir)

	got, err := resolveSyncRoot()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestLoadCLIContext_PopulatesContextWithDefaultsWhenNoConfigExists(t *testing.T) {
	resetRootFlags(t)

	dir := t.TempDir()
	flagSyncRoot = dir

	cmd := &cobra.Command{Use: "test"}
	cmd.SetContext(context.Background())

	require.NoError(t, loadCLIContext(cmd))

	cc := mustCLIContext(cmd.Context())
	assert.Equal(t, dir, cc.SyncRoot)
	assert.Equal(t, "remote-wins", cc.Cfg.Sync.StartupConflictPolicy)
	require.NotNil(t, cc.Logger)
}

func TestLoadCLIContext_ReadsExistingConfig(t *testing.T) {
	resetRootFlags(t)

	dir := t.TempDir()
	flagSyncRoot = dir

	cfg := config.DefaultConfig()
	cfg.Peer.Name = "laptop"
	cfgPath := filepath.Join(dir, metaDirName, config.ConfigFileName)
	require.NoError(t, config.Write(cfgPath, cfg))

	cmd := &cobra.Command{Use: "test"}
	cmd.SetContext(context.Background())

	require.NoError(t, loadCLIContext(cmd))

	cc := mustCLIContext(cmd.Context())
	assert.Equal(t, "laptop", cc.Cfg.Peer.Name)
}

func TestBuildLogger_VerboseOverridesConfigLevel(t *testing.T) {
	resetRootFlags(t)
	flagVerbose = true

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"

	logger := buildLogger(cfg)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"init", "join", "watch", "status", "config"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}
