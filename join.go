package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pearsync/pearsync/internal/config"
	"github.com/pearsync/pearsync/internal/joinpreview"
	"github.com/pearsync/pearsync/internal/manifestlog"
)

func newJoinCmd() *cobra.Command {
	var flagPolicy string

	cmd := &cobra.Command{
		Use:   "join <invite-code>",
		Short: "Preview joining a group and adopt a startup conflict policy",
		Long: `Compare the paired group's manifest against this sync root without
changing anything on disk, then save the chosen startup conflict policy
so the next 'pearsync watch' applies it on its first reconcile pass
(spec.md section 4.6, section 4.7.8).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, args[0], flagPolicy)
		},
	}

	cmd.Flags().StringVar(&flagPolicy, "policy", "", "startup conflict policy to adopt (remote-wins|local-wins|keep-both); defaults to the config's existing policy, then remote-wins")

	return cmd
}

func runJoin(cmd *cobra.Command, inviteCode, policyFlag string) error {
	cc := mustCLIContext(cmd.Context())

	// The reference manifestlog.MemLog has no remote transport of its own
	// (spec.md section 1: transport is an external collaborator), so
	// Pair only resolves an invite minted by this same process. A
	// transport-backed Log plugs into the same joinpreview.Pair call for a
	// real multi-host deployment.
	bootstrap := manifestlog.NewMemLog()

	result, err := joinpreview.Pair(cmd.Context(), bootstrap, inviteCode, cc.SyncRoot, cc.Logger)
	if err != nil {
		return fmt.Errorf("join preview: %w", err)
	}

	if cc.Flags.JSON {
		if err := printJoinJSON(result); err != nil {
			return err
		}
	} else {
		printJoinText(result)
	}

	policy, err := resolveJoinPolicy(cc.Cfg, policyFlag)
	if err != nil {
		return err
	}

	cc.Cfg.Sync.StartupConflictPolicy = string(policy)

	cfgPath := filepath.Join(cc.SyncRoot, metaDirName, config.ConfigFileName)
	if err := config.Write(cfgPath, cc.Cfg); err != nil {
		return fmt.Errorf("saving startup policy: %w", err)
	}

	cc.Statusf("Adopted startup policy %q for the next 'pearsync watch'.\n", policy)

	return nil
}

func resolveJoinPolicy(cfg *config.Config, flagValue string) (config.StartupConflictPolicy, error) {
	if flagValue == "" {
		if existing := cfg.Sync.Policy(); existing != "" {
			return existing, nil
		}

		return config.PolicyRemoteWins, nil
	}

	switch p := config.StartupConflictPolicy(flagValue); p {
	case config.PolicyRemoteWins, config.PolicyLocalWins, config.PolicyKeepBoth:
		return p, nil
	default:
		return "", fmt.Errorf("unrecognized --policy %q (want remote-wins, local-wins, or keep-both)", flagValue)
	}
}

func printJoinText(result *joinpreview.Result) {
	color := colorEnabled(os.Stdout)
	c := result.Counts

	fmt.Printf("%s %d\n", bold(color, "Remote-only:        "), c.RemoteOnly)
	fmt.Printf("%s %d\n", bold(color, "Matching:           "), c.Matching)
	fmt.Printf("%s %d\n", bold(color, "File conflicts:     "), c.FileConflict)
	fmt.Printf("%s %d\n", bold(color, "Tombstone conflicts:"), c.TombstoneConflict)
	fmt.Printf("%s %d\n", bold(color, "Local-only:         "), c.LocalOnly)
	fmt.Println()

	headers := []string{"POLICY", "OVERWRITES", "DELETES", "UPLOADS", "CONFLICT COPIES"}
	rows := make([][]string, 0, 3)

	for _, policy := range []config.StartupConflictPolicy{config.PolicyRemoteWins, config.PolicyLocalWins, config.PolicyKeepBoth} {
		impact := result.Impact[policy]
		rows = append(rows, []string{
			string(policy),
			fmt.Sprintf("%d", impact.Overwrites),
			fmt.Sprintf("%d", impact.Deletes),
			fmt.Sprintf("%d", impact.Uploads),
			fmt.Sprintf("%d", impact.ConflictCopies),
		})
	}

	printTable(os.Stdout, headers, rows)

	if len(result.Samples.FileConflict) > 0 {
		fmt.Println("\nSample file conflicts:")

		for _, p := range result.Samples.FileConflict {
			fmt.Printf("  %s\n", p)
		}
	}
}

// joinJSONOutput is the JSON schema for `pearsync join --json`.
type joinJSONOutput struct {
	Counts  joinpreview.Counts                                        `json:"counts"`
	Samples joinpreview.Samples                                       `json:"samples"`
	Impact  map[config.StartupConflictPolicy]joinpreview.PolicyImpact `json:"impact"`
}

func printJoinJSON(result *joinpreview.Result) error {
	out := joinJSONOutput{Counts: result.Counts, Samples: result.Samples, Impact: result.Impact}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}
