package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask a running 'pearsync watch' to reload config.toml",
		Long: `Send SIGHUP to the watch daemon for this sync root. The daemon
re-reads and validates config.toml without restarting the engine or
losing its in-flight reconcile state. The running engine keeps the
configuration it started with, and the log level does not change.`,
		Args: cobra.NoArgs,
		RunE: runReload,
	}
}

func runReload(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	pidPath := filepath.Join(cc.SyncRoot, metaDirName, pidFileName)

	if err := sendSIGHUP(pidPath); err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	cc.Statusf("sent reload signal to pearsync watch for %s\n", cc.SyncRoot)

	return nil
}
