package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pearsync/pearsync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// metaDirName is the engine's control directory, relative to the sync root.
const metaDirName = ".pearsync"

// Global persistent flags, bound in newRootCmd.
var (
	flagSyncRoot string
	flagJSON     bool
	flagVerbose  bool
	flagQuiet    bool
)

// skipConfigAnnotation marks commands that handle config loading themselves.
// No registered command sets it: init goes through the normal loading, which
// falls back to defaults when no config file exists yet.
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles the resolved sync root, config, and logger. Built once
// in PersistentPreRunE so RunE handlers never repeat the resolution.
type CLIContext struct {
	SyncRoot string
	Cfg      *config.Config
	Logger   *slog.Logger
	Flags    CLIFlags
}

// CLIFlags carries the persistent flag values a command may need without
// reaching for the package-level vars directly.
type CLIFlags struct {
	JSON  bool
	Quiet bool
}

type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context, or nil
// if none was loaded.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics — a programmer error,
// since the command tree guarantees PersistentPreRunE populates it before
// RunE runs for any command without skipConfigAnnotation.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — command needs skipConfigAnnotation or its own config loading")
	}

	return cc
}

// newRootCmd builds the fully-assembled root command with all subcommands
// registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pearsync",
		Short:         "Peer-to-peer folder synchronization",
		Long:          "pearsync keeps a local folder in sync with a group of peers over a replicated manifest log.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadCLIContext(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagSyncRoot, "sync-root", "", "sync root directory (default: current directory, or $PEARSYNC_SYNC_ROOT)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newJoinCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newReloadCmd())

	return cmd
}

// resolveSyncRoot applies the override precedence: --sync-root flag, then
// PEARSYNC_SYNC_ROOT, then the current directory.
func resolveSyncRoot() (string, error) {
	if flagSyncRoot != "" {
		return filepath.Abs(flagSyncRoot)
	}

	if env := config.ReadSyncRootEnv(); env != "" {
		return filepath.Abs(env)
	}

	return os.Getwd()
}

// loadCLIContext resolves the sync root and config file, builds the logger,
// and stores the result in the command's context for subcommands.
func loadCLIContext(cmd *cobra.Command) error {
	syncRoot, err := resolveSyncRoot()
	if err != nil {
		return fmt.Errorf("resolving sync root: %w", err)
	}

	logger := buildLogger(nil)

	cfgPath := filepath.Join(syncRoot, metaDirName, config.ConfigFileName)

	cfg, err := config.Load(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	finalLogger := buildLogger(cfg)

	cc := &CLIContext{
		SyncRoot: syncRoot,
		Cfg:      cfg,
		Logger:   finalLogger,
		Flags:    CLIFlags{JSON: flagJSON, Quiet: flagQuiet},
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap. Config-file log level is
// the baseline; --verbose and --quiet override it since CLI flags always
// win (enforced mutually exclusive by cobra).
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
