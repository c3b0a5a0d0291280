// Package pathrules canonicalizes local filesystem paths into manifest keys
// and classifies manifest keys by kind (spec.md section 4.1).
package pathrules

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrEscapesRoot is returned when an input path would resolve outside the
// sync root (e.g. via ".." segments or an absolute path on a different root).
var ErrEscapesRoot = errors.New("pathrules: path escapes sync root")

// ErrInvalidKey is returned when a manifest key does not match any of the
// three recognized shapes (spec.md section 3, invariant 1).
var ErrInvalidKey = errors.New("pathrules: invalid manifest key")

// ConfigKey is the single well-known key for group-visible config.
const ConfigKey = "__config"

// PeerKeyPrefix prefixes a peer record's writer key.
const PeerKeyPrefix = "__peer:"

// Canonicalize converts an OS-native path relative to the sync root into
// its leading-slash, forward-slash manifest form. It NFC-normalizes every
// path component so peers on different platforms (and different Unicode
// normalization forms for the same filename) agree on one canonical key —
// the same discipline the teacher applies per-component before comparing
// names across a local scan and a remote listing.
func Canonicalize(relPath string) (string, error) {
	slashed := toSlash(relPath)

	if strings.HasPrefix(slashed, "/") || isWindowsAbsolute(slashed) {
		return "", fmt.Errorf("%w: %q looks absolute", ErrEscapesRoot, relPath)
	}

	clean := path.Clean(slashed)

	if clean == "." {
		return "", fmt.Errorf("%w: empty path", ErrEscapesRoot)
	}

	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, relPath)
	}

	segments := strings.Split(clean, "/")
	for i, seg := range segments {
		segments[i] = norm.NFC.String(seg)
	}

	return "/" + strings.Join(segments, "/"), nil
}

// toSlash converts OS-native separators to forward slashes without
// depending on path/filepath (which is platform-conditional); manifest
// keys are always forward-slash regardless of host OS.
func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// isWindowsAbsolute reports whether p begins with a drive letter such as
// "C:/" — absolute-looking on Windows even though it lacks a leading slash.
func isWindowsAbsolute(p string) bool {
	return len(p) >= 2 && p[1] == ':' && ((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}

// KeyKind classifies a manifest key.
type KeyKind int

const (
	// KeyUserFile is a "/"-prefixed user file or tombstone path.
	KeyUserFile KeyKind = iota
	// KeyPeer is a "__peer:<writerKey>" self-description record.
	KeyPeer
	// KeyConfig is the single "__config" record.
	KeyConfig
)

// Classify determines the kind of a manifest key and, for peer keys,
// extracts the embedded writer key. Any "__"-prefixed key that is not
// exactly "__config" or a well-formed "__peer:<hex>" is rejected
// (spec.md section 3, invariant 1).
func Classify(key string) (KeyKind, string, error) {
	switch {
	case key == ConfigKey:
		return KeyConfig, "", nil
	case strings.HasPrefix(key, PeerKeyPrefix):
		writerKey := strings.TrimPrefix(key, PeerKeyPrefix)
		if writerKey == "" || !isHex(writerKey) {
			return 0, "", fmt.Errorf("%w: %q: malformed peer writer key", ErrInvalidKey, key)
		}

		return KeyPeer, writerKey, nil
	case strings.HasPrefix(key, "__"):
		return 0, "", fmt.Errorf("%w: %q: unrecognized system key", ErrInvalidKey, key)
	case strings.HasPrefix(key, "/"):
		return KeyUserFile, "", nil
	default:
		return 0, "", fmt.Errorf("%w: %q: must start with \"/\" or be a known system key", ErrInvalidKey, key)
	}
}

// PeerKey builds the "__peer:<writerKey>" key for a writer key (spec.md
// section 4.1). It does not validate writerKey; Classify checks the
// embedded key when the result is later classified.
func PeerKey(writerKey string) string {
	return PeerKeyPrefix + writerKey
}

// ValidatePeerKey checks that path equals "__peer:<writerKey>" exactly,
// as required by the PeerMetadata invariant (data-model.md "Path must
// equal __peer:<writerKey>").
func ValidatePeerKey(path, writerKey string) error {
	if path != PeerKey(writerKey) {
		return fmt.Errorf("%w: peer record path %q does not match writer key %q", ErrInvalidKey, path, writerKey)
	}

	return nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}

	return true
}
