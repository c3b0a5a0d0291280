package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pearsync/pearsync/internal/journal"
)

func newStatusCmd() *cobra.Command {
	var flagHistory int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether pearsync is running and its recent history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, flagHistory)
		},
	}

	cmd.Flags().IntVar(&flagHistory, "history", 0, "also show the last N journal events")

	return cmd
}

// statusOutput is the status command's display/JSON schema.
type statusOutput struct {
	SyncRoot      string          `json:"sync_root"`
	Peer          string          `json:"peer"`
	Running       bool            `json:"running"`
	PID           int             `json:"pid,omitempty"`
	ConflictCount int             `json:"conflict_count"`
	LastAudit     *auditOutput    `json:"last_audit,omitempty"`
	History       []historyOutput `json:"history,omitempty"`
}

type auditOutput struct {
	RecordedAt    time.Time `json:"recorded_at"`
	Policy        string    `json:"policy"`
	AffectedPaths []string  `json:"affected_paths"`
}

type historyOutput struct {
	RecordedAt time.Time `json:"recorded_at"`
	Kind       string    `json:"kind"`
	Path       string    `json:"path,omitempty"`
	ChangeType string    `json:"change_type,omitempty"`
	Message    string    `json:"message,omitempty"`
}

func runStatus(cmd *cobra.Command, historyN int) error {
	cc := mustCLIContext(cmd.Context())
	metaDir := filepath.Join(cc.SyncRoot, metaDirName)

	out := statusOutput{SyncRoot: cc.SyncRoot, Peer: shortKey(cc.Cfg.Peer.WriterKey)}

	pidPath := filepath.Join(metaDir, pidFileName)
	if pid, err := readPIDFile(pidPath); err == nil && processAlive(pid) {
		out.Running = true
		out.PID = pid

		// The running daemon's writer key may have been set before the last
		// 'pearsync join'/manual config.toml edit, so prefer what the pidfile
		// actually recorded at watch-start over the possibly-newer config.
		if key, err := readPIDFileWriterKey(pidPath); err == nil && key != "" {
			out.Peer = shortKey(key)
		}
	}

	journalPath := filepath.Join(metaDir, journal.FileName)
	if _, err := os.Stat(journalPath); err == nil {
		if err := fillJournalStatus(cmd, metaDir, historyN, &out); err != nil {
			return err
		}
	}

	if cc.Flags.JSON {
		return printStatusJSON(out)
	}

	printStatusText(out)

	return nil
}

func fillJournalStatus(cmd *cobra.Command, metaDir string, historyN int, out *statusOutput) error {
	cc := mustCLIContext(cmd.Context())

	store, err := journal.Open(cmd.Context(), metaDir, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer store.Close()

	count, err := store.ConflictCount(cmd.Context())
	if err != nil {
		return fmt.Errorf("counting conflicts: %w", err)
	}

	out.ConflictCount = count

	if last, ok, err := store.LastAudit(cmd.Context()); err != nil {
		return fmt.Errorf("reading last audit event: %w", err)
	} else if ok {
		out.LastAudit = &auditOutput{RecordedAt: last.RecordedAt, Policy: last.Policy, AffectedPaths: last.AffectedPaths}
	}

	if historyN <= 0 {
		return nil
	}

	entries, err := store.Tail(cmd.Context(), historyN)
	if err != nil {
		return fmt.Errorf("reading journal history: %w", err)
	}

	for _, e := range entries {
		out.History = append(out.History, historyOutput{
			RecordedAt: e.RecordedAt,
			Kind:       e.Kind,
			Path:       e.Path,
			ChangeType: e.ChangeType,
			Message:    e.Message,
		})
	}

	return nil
}

// processAlive reports whether pid names a live process, probing with
// signal 0 (the same check sendSIGHUP uses before signaling for real).
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return proc.Signal(syscall.Signal(0)) == nil
}

func printStatusJSON(out statusOutput) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printStatusText(out statusOutput) {
	state := "not running"
	if out.Running {
		state = fmt.Sprintf("running (pid %d)", out.PID)
	}

	fmt.Printf("Sync root: %s\n", out.SyncRoot)
	fmt.Printf("Peer:      %s\n", out.Peer)
	fmt.Printf("Status:    %s\n", state)
	fmt.Printf("Conflicts: %d\n", out.ConflictCount)

	if out.LastAudit != nil {
		fmt.Printf("Last startup reconcile: %s (%s), %d paths affected\n",
			formatTime(out.LastAudit.RecordedAt), out.LastAudit.Policy, len(out.LastAudit.AffectedPaths))
	}

	if len(out.History) == 0 {
		return
	}

	fmt.Println("\nRecent history:")

	headers := []string{"TIME", "KIND", "PATH", "DETAIL"}
	rows := make([][]string, 0, len(out.History))

	for _, h := range out.History {
		detail := h.ChangeType
		if h.Kind == "error" {
			detail = h.Message
		}

		rows = append(rows, []string{formatTime(h.RecordedAt), h.Kind, h.Path, detail})
	}

	printTable(os.Stdout, headers, rows)
}
