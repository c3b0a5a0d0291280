// Package conflictname builds conflict-copy paths for the losing side of a
// sync divergence (spec.md section 4.3). Naming is pure and deterministic —
// unlike the teacher's timestamp+numeric-suffix scheme, a second conflict
// for the same peer on the same day is defined to overwrite the prior copy,
// so there is no collision-avoidance loop to perform.
package conflictname

import (
	"strings"
	"time"
)

// Build constructs the conflict-copy path for originalPath, given the
// losing side's short peer name (spec.md section 4.3) and the UTC date the
// conflict was detected. If the last "." in originalPath occurs after the
// last "/", the suffix is inserted before that extension; otherwise it is
// appended to the whole path (this also covers dotfiles like "/.bashrc",
// whose only "." precedes the last "/").
func Build(originalPath, shortPeerName string, at time.Time) string {
	stem, ext := splitExt(originalPath)
	suffix := ".conflict-" + at.UTC().Format("2006-01-02") + "-" + shortPeerName

	return stem + suffix + ext
}

// splitExt splits path into (stem, ext) such that stem+ext == path and ext
// is the portion from the last "." onward, but only when that "." occurs
// after the last "/" (i.e. within the final path component and not at its
// very start).
func splitExt(p string) (stem, ext string) {
	lastSlash := strings.LastIndex(p, "/")
	base := p
	dir := ""

	if lastSlash >= 0 {
		dir = p[:lastSlash+1]
		base = p[lastSlash+1:]
	}

	lastDot := strings.LastIndex(base, ".")
	if lastDot <= 0 {
		// No "." in the final component, or it is a dotfile whose only "."
		// is the leading character (e.g. ".bashrc") — no extension to split.
		return p, ""
	}

	return dir + base[:lastDot], base[lastDot:]
}
