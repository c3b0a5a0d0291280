package main

import (
	"io"
	"log/slog"
)

// discardTestLogger returns a logger that writes nowhere, shared by every
// CLI command's tests so each file doesn't redeclare it.
func discardTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
