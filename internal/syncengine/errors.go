package syncengine

import "errors"

// Error kinds from spec.md section 7. SchemaError is manifest.ErrSchema and
// MissingBlockError is blockstore.ErrMissingBlock; both reach callers of
// this package wrapped with %w and match via errors.Is. StateFormatError has
// no sentinel: internal/statestore recovers from it while loading. ErrIO,
// ErrPolicyViolation and ErrNotReady are declared here.
var (
	// ErrIO wraps a disk read/write or rename failure (IoError).
	ErrIO = errors.New("syncengine: io error")

	// ErrPolicyViolation names the PolicyViolation kind. No function in
	// this package returns it: a write to a disallowed key is rejected by
	// manifest.Validate with manifest.ErrSchema.
	ErrPolicyViolation = errors.New("syncengine: policy violation")

	// ErrNotReady is returned by Ready when no ManifestLog is configured
	// and by Start when Ready has not succeeded. Stop and Close return nil
	// on an engine that is not running.
	ErrNotReady = errors.New("syncengine: not ready")
)
