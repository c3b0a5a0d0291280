package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pearsync/pearsync/internal/config"
	"github.com/pearsync/pearsync/internal/journal"
	"github.com/pearsync/pearsync/internal/manifestlog"
	"github.com/pearsync/pearsync/internal/syncengine"
)

const pidFileName = "pearsync.pid"

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the sync engine in the foreground until signaled",
		Long: `Start watching the sync root, reconciling against the attached
manifest, until SIGINT or SIGTERM. SIGHUP reloads config.toml without
restarting the engine.`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	metaDir := filepath.Join(cc.SyncRoot, metaDirName)
	cfgPath := filepath.Join(metaDir, config.ConfigFileName)

	if cc.Cfg.Peer.WriterKey == "" {
		return fmt.Errorf("no writer key configured — run 'pearsync init' first")
	}

	cleanup, err := writePIDFile(filepath.Join(metaDir, pidFileName), cc.Cfg.Peer.WriterKey)
	if err != nil {
		return err
	}
	defer cleanup()

	journalStore, err := journal.Open(cmd.Context(), metaDir, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer journalStore.Close()

	// TODO(join): once a join session's attached Log can be persisted
	// across process restarts, load it here instead of bootstrapping a
	// fresh in-process MemLog every run.
	eng := syncengine.New(syncengine.Options{
		SyncRoot:  cc.SyncRoot,
		Config:    cc.Cfg,
		Logger:    cc.Logger,
		Log:       manifestlog.NewMemLog(),
		WriterKey: cc.Cfg.Peer.WriterKey,
		Recorder:  journalStore,
	})

	if err := eng.Ready(cmd.Context()); err != nil {
		return fmt.Errorf("engine not ready: %w", err)
	}

	sig := newWatchSignals(cmd.Context(), cc.Logger)
	defer sig.stop()

	if err := eng.Start(sig.ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer eng.Close()

	events, unsubscribe := eng.Subscribe()
	defer unsubscribe()

	cc.Statusf("pearsync watching %s (peer %s)\n", cc.SyncRoot, shortKey(cc.Cfg.Peer.WriterKey))

	for {
		select {
		case ev := <-events:
			logWatchEvent(cc, ev)
		case <-sig.reload:
			reloadWatchConfig(cc, cfgPath)
		case <-sig.ctx.Done():
			cc.Statusf("shutting down\n")
			return nil
		}
	}
}

func reloadWatchConfig(cc *CLIContext, cfgPath string) {
	cfg, err := config.Load(cfgPath, cc.Logger)
	if err != nil {
		cc.Logger.Warn("reloading config on SIGHUP", "error", err)
		return
	}

	cc.Cfg = cfg
	cc.Logger.Info("config reloaded on SIGHUP")
}

func logWatchEvent(cc *CLIContext, ev syncengine.Event) {
	switch {
	case ev.Sync != nil:
		s := ev.Sync
		if s.Type == syncengine.ChangeConflict {
			cc.Statusf("conflict  %s -> %s (%s)\n", s.Path, s.ConflictPath, s.Direction)
			return
		}

		cc.Statusf("%-8s %s (%s)\n", s.Type, s.Path, s.Direction)
	case ev.Audit != nil:
		cc.Statusf("startup reconcile (%s): %d paths affected\n", ev.Audit.Policy, len(ev.Audit.AffectedPaths))
	case ev.Error != nil:
		cc.Logger.Error("sync error", "message", ev.Error.Message)
	}
}
