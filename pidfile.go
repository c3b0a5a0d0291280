package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidFilePermissions matches the standard config file permissions (owner rw, group/other r).
const pidFilePermissions = 0o644

// pidDirPermissions matches the standard directory permissions (owner rwx, group/other rx).
const pidDirPermissions = 0o755

// writePIDFile writes the current process ID and the watching peer's writer
// key to path, one per line, and acquires an exclusive flock. The writer key
// line lets 'pearsync status' report which peer identity a running 'watch'
// holds without trusting config.toml, which may
// have been edited (or had its writer key rotated) since the daemon started.
// Returns a cleanup function that removes the file and releases the lock. If
// the lock cannot be acquired, another watch is already running.
func writePIDFile(path, writerKey string) (cleanup func(), err error) {
	if path == "" {
		return nil, fmt.Errorf("PID file path is empty — cannot determine data directory")
	}

	dir := filepath.Dir(path)
	if mkdirErr := os.MkdirAll(dir, pidDirPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", mkdirErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	// Non-blocking exclusive lock — fails immediately if another process holds it.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another pearsync watch is already running (could not lock %s)", path)
	}

	// Truncate and write current PID + writer key.
	if err := f.Truncate(0); err != nil {
		f.Close()

		return nil, fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), writerKey); err != nil {
		f.Close()

		return nil, fmt.Errorf("writing PID file: %w", err)
	}

	// Sync to disk so readers see the PID immediately.
	if err := f.Sync(); err != nil {
		f.Close()

		return nil, fmt.Errorf("syncing PID file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// readPIDFile reads the PID from the first line of the given file path.
// Returns 0 and an error if the file does not exist or contains invalid
// content.
func readPIDFile(path string) (int, error) {
	line, _, err := readPIDFileLines(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}

// readPIDFileWriterKey reads the watching peer's writer key from the second
// line of path, written alongside the PID by writePIDFile. Returns "" if the
// file predates that second line (no error — callers fall back to config.toml).
func readPIDFileWriterKey(path string) (string, error) {
	_, key, err := readPIDFileLines(path)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(key), nil
}

func readPIDFileLines(path string) (pidLine, writerKeyLine string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading PID file: %w", err)
	}

	pidLine, writerKeyLine, _ = strings.Cut(string(data), "\n")

	return pidLine, writerKeyLine, nil
}

// sendSIGHUP reads the PID from the watch daemon's PID file and sends it
// SIGHUP, which 'pearsync watch' handles by reloading config.toml in place
// (see watch.go's reloadWatchConfig) rather than restarting the engine. If
// the PID file does not exist or the process is not alive, returns a
// descriptive error. Stale PID files (process dead) are cleaned up.
func sendSIGHUP(pidPath string) error {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no running daemon found (no PID file at %s)", pidPath)
		}

		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	// Check if the process is alive with signal 0.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		// Process is dead — clean up stale PID file.
		os.Remove(pidPath)

		return fmt.Errorf("daemon (PID %d) is not running (stale PID file removed)", pid)
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("sending SIGHUP to daemon (PID %d): %w", pid, err)
	}

	return nil
}
