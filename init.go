package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pearsync/pearsync/internal/blockstore"
	"github.com/pearsync/pearsync/internal/config"
	"github.com/pearsync/pearsync/internal/manifestlog"
	"github.com/pearsync/pearsync/internal/syncengine"
)

func newInitCmd() *cobra.Command {
	var flagName string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a sync root in the current (or --sync-root) directory",
		Long: `Create the .pearsync control directory, mint this peer's writer key,
and write a default config.toml. Run this once per machine before
'pearsync watch' or 'pearsync join'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, flagName)
		},
	}

	cmd.Flags().StringVar(&flagName, "name", "", "human-readable name for this peer (defaults to the hostname)")

	return cmd
}

func runInit(cmd *cobra.Command, name string) error {
	cc := mustCLIContext(cmd.Context())
	metaDir := filepath.Join(cc.SyncRoot, metaDirName)
	cfgPath := filepath.Join(metaDir, config.ConfigFileName)

	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("pearsync is already initialized at %s", cfgPath)
	}

	if name == "" {
		if host, err := os.Hostname(); err == nil {
			name = host
		}
	}

	cfg := config.DefaultConfig()
	cfg.Peer.Name = name
	cfg.Peer.SyncFolder = cc.SyncRoot
	cfg.Peer.WriterKey = strings.ReplaceAll(uuid.New().String(), "-", "")

	if err := config.Write(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// A single-peer bootstrap: register this peer's self-description record
	// against an in-process log so 'init' proves the engine can reach Ready
	// before the user ever attaches to a real group (spec.md section 4.7.1).
	// The MemLog itself is not persisted; 'pearsync join' or a future
	// transport-backed Log replaces it once this peer attaches to a group.
	store, err := blockstore.NewFileStore(filepath.Join(metaDir, "blocks"))
	if err != nil {
		return fmt.Errorf("creating block store: %w", err)
	}

	eng := syncengine.New(syncengine.Options{
		SyncRoot:  cc.SyncRoot,
		Config:    cfg,
		Logger:    cc.Logger,
		Log:       manifestlog.NewMemLog(),
		Store:     store,
		WriterKey: cfg.Peer.WriterKey,
	})

	if err := eng.Ready(cmd.Context()); err != nil {
		return fmt.Errorf("registering peer record: %w", err)
	}

	if err := eng.Close(); err != nil {
		return fmt.Errorf("closing bootstrap engine: %w", err)
	}

	cc.Statusf("Initialized %s\n", metaDir)
	cc.Statusf("  peer:       %s (%s)\n", cfg.Peer.Name, shortKey(cfg.Peer.WriterKey))
	cc.Statusf("  sync root:  %s\n", cc.SyncRoot)

	return nil
}
