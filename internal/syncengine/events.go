package syncengine

// Direction is which side of a sync a change flowed from (spec.md section
// 6.4).
type Direction string

const (
	DirectionLocalToRemote Direction = "local-to-remote"
	DirectionRemoteToLocal Direction = "remote-to-local"
)

// ChangeType distinguishes what kind of change a SyncEvent reports.
type ChangeType string

const (
	ChangeUpdate   ChangeType = "update"
	ChangeDelete   ChangeType = "delete"
	ChangeConflict ChangeType = "conflict"
)

// SyncEvent reports one completed (or attempted) reconciliation step.
type SyncEvent struct {
	Direction    Direction
	Type         ChangeType
	Path         string
	ConflictPath string // set only when Type == ChangeConflict
}

// AuditEvent reports the outcome of a startup conflict policy override
// (spec.md section 4.7.8).
type AuditEvent struct {
	Policy        string
	AffectedPaths []string
}

// ErrorEvent surfaces a worker-step failure that did not stop the queue
// (spec.md section 4.7.9).
type ErrorEvent struct {
	Message string
}

// Event is the tagged union delivered to subscribers — a re-shaping of the
// teacher's separate listener/emitter style (spec.md section 9 design
// note) into one variant type so a single Subscribe channel carries all
// three kinds without the caller juggling three separate registrations.
type Event struct {
	Sync  *SyncEvent
	Audit *AuditEvent
	Error *ErrorEvent
}

// Recorder receives every Event the engine emits, in addition to whatever
// Subscribe channels are registered. internal/journal implements this to
// keep a durable history; it is optional and the engine runs fine with a
// nil Recorder.
type Recorder interface {
	Record(Event)
}
