package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// statusf prints a status message to stderr unless --quiet was set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
// Method form of statusf, kept for call sites that have a CLIContext handy.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(format, args...)
}

// formatSize returns a human-readable size string (e.g. "1.2 MiB"), using
// binary (1024-based) units since block and file sizes here are powers of
// two, not network-transfer decimal units.
func formatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// colorEnabled reports whether ANSI color escapes should be emitted for w —
// only when w is a terminal, per isatty.
func colorEnabled(w *os.File) bool {
	return isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd())
}

const (
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// bold wraps s in bold escapes when color is enabled, otherwise returns it
// unchanged.
func bold(color bool, s string) string {
	if !color {
		return s
	}

	return ansiBold + s + ansiReset
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// shortKey truncates a writer key to its first 8 characters for display,
// matching syncengine.Engine.GetPeerName's fallback.
func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}

	return key
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
