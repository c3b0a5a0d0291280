package manifestlog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/pearsync/pearsync/internal/manifest"
)

// MemLog is an in-process Log backed by a mutex-guarded map, with
// subscriber notification fan-out modeled on the teacher's cycle-done
// channel bookkeeping in internal/sync/tracker.go: each subscriber owns a
// small buffered channel, and a write broadcasts a non-blocking send to
// every one of them. It is the reference implementation used by tests and
// single-peer bootstrap; real deployments attach to a replicated log over
// a transport this package does not implement (spec.md section 1).
type MemLog struct {
	mu          sync.RWMutex
	entries     map[string]manifest.Value
	subscribers map[int]chan struct{}
	nextSubID   int
	invites     map[string]bool
}

// NewMemLog returns an empty MemLog.
func NewMemLog() *MemLog {
	return &MemLog{
		entries:     make(map[string]manifest.Value),
		subscribers: make(map[int]chan struct{}),
		invites:     make(map[string]bool),
	}
}

// Put validates v against path before storing it (spec.md section 7,
// PolicyViolation / SchemaError are rejected here, before any bytes land).
func (m *MemLog) Put(_ context.Context, path string, v manifest.Value) error {
	if err := manifest.Validate(path, v); err != nil {
		return err
	}

	m.mu.Lock()
	m.entries[path] = v
	m.mu.Unlock()

	m.broadcast()

	return nil
}

// Get returns the current value at path.
func (m *MemLog) Get(_ context.Context, path string) (manifest.Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[path]

	return v, ok, nil
}

// List returns every (path, value) pair currently held.
func (m *MemLog) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))
	for path, v := range m.entries {
		out = append(out, Entry{Path: path, Value: v})
	}

	return out, nil
}

// Remove deletes path's record outright.
func (m *MemLog) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	_, existed := m.entries[path]
	delete(m.entries, path)
	m.mu.Unlock()

	if existed {
		m.broadcast()
	}

	return nil
}

// Subscribe registers a new notification channel. The returned
// unsubscribe function is idempotent.
func (m *MemLog) Subscribe() (<-chan struct{}, func()) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	ch := make(chan struct{}, 1)
	m.subscribers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
		})
	}

	return ch, unsubscribe
}

// broadcast notifies every subscriber without blocking on a full channel —
// a coalesced wakeup is sufficient since consumers re-read List/Get state
// rather than trust the notification payload.
func (m *MemLog) broadcast() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// CreateInvite mints a random invite code registered against this log.
func (m *MemLog) CreateInvite(_ context.Context) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("manifestlog: generating invite: %w", err)
	}

	code := hex.EncodeToString(buf)

	m.mu.Lock()
	m.invites[code] = true
	m.mu.Unlock()

	return code, nil
}

// Pair attaches to this same in-process log if code was minted by
// CreateInvite. A real transport-backed Log would instead dial a remote
// peer and return a handle to its replicated view; MemLog has no remote
// side to dial, so pairing returns itself.
func (m *MemLog) Pair(_ context.Context, code string) (Log, error) {
	m.mu.RLock()
	valid := m.invites[code]
	m.mu.RUnlock()

	if !valid {
		return nil, fmt.Errorf("manifestlog: invite code %q not recognized", code)
	}

	return m, nil
}
