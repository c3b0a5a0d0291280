// Package syncengine implements the SyncEngine (spec.md section 4.7): the
// local reconciler that watches a directory, consults a replicated
// manifest, fetches remote content blocks, materializes files, resolves
// conflicts, applies tombstones, and persists local tracking state.
package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/pearsync/pearsync/internal/blockstore"
	"github.com/pearsync/pearsync/internal/config"
	"github.com/pearsync/pearsync/internal/joinpreview"
	"github.com/pearsync/pearsync/internal/manifest"
	"github.com/pearsync/pearsync/internal/manifestlog"
	"github.com/pearsync/pearsync/internal/pathrules"
	"github.com/pearsync/pearsync/internal/statestore"
)

// localQueueBuffer bounds how many watcher events can be pending before
// enqueue blocks the watcher's read loop.
const localQueueBuffer = 256

// Options configures a new Engine. Exactly one of Session or Log must be
// set: Session is the output of a prior joinpreview.Run/Pair call (so
// start() does not redo the pairing handshake, spec.md section 4.6); Log
// is used directly for a single-peer bootstrap that skipped the preview
// step (e.g. "pearsync init").
type Options struct {
	SyncRoot string
	Config   *config.Config
	Logger   *slog.Logger

	Session *joinpreview.PreparedSession
	Log     manifestlog.Log
	Store   blockstore.Store // defaults to a blockstore.FileStore under .pearsync/blocks

	WriterKey string // defaults to a fresh random key
	Recorder  Recorder
}

// Engine is the SyncEngine.
type Engine struct {
	log      manifestlog.Log
	store    blockstore.Store
	state    *statestore.Store
	cfg      *config.Config
	syncRoot string
	logger   *slog.Logger

	selfWriterKey string

	watcherFactory func() (FsWatcher, error)
	watcher        FsWatcher
	suppressed     *suppressedPaths

	localQ  *localQueue
	remoteQ *remoteQueue

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
	recorder    Recorder

	unsubscribeManifest func()

	lifecycleMu sync.Mutex
	ready       bool
	running     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Engine. Ready must be called before Start.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:            opts.Config,
		syncRoot:       opts.SyncRoot,
		logger:         logger,
		watcherFactory: newFsnotifyWatcher,
		suppressed:     newSuppressedPaths(),
		subscribers:    make(map[int]chan Event),
		recorder:       opts.Recorder,
		selfWriterKey:  strings.ReplaceAll(firstNonEmpty(opts.WriterKey, uuid.New().String()), "-", ""),
		log:            resolveLog(opts),
		store:          opts.Store,
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}

	return b
}

func resolveLog(opts Options) manifestlog.Log {
	if opts.Session != nil {
		return opts.Session.Log
	}

	return opts.Log
}

// Ready opens the BlockStore, loads LocalStateStore, and registers this
// peer's self-description record (spec.md section 4.7.1).
func (e *Engine) Ready(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.log == nil {
		return fmt.Errorf("%w: no ManifestLog configured", ErrNotReady)
	}

	metaDir := filepath.Join(e.syncRoot, ".pearsync")

	if e.store == nil {
		store, err := blockstore.NewFileStore(filepath.Join(metaDir, "blocks"))
		if err != nil {
			return fmt.Errorf("syncengine: opening block store: %w", err)
		}

		e.store = store
	}

	state, err := statestore.Open(metaDir, e.logger)
	if err != nil {
		return fmt.Errorf("syncengine: opening state store: %w", err)
	}

	e.state = state

	if err := e.registerSelf(ctx); err != nil {
		return fmt.Errorf("syncengine: registering peer record: %w", err)
	}

	e.ready = true

	return nil
}

func (e *Engine) registerSelf(ctx context.Context) error {
	name := ""
	if e.cfg != nil {
		name = e.cfg.Peer.Name
	}

	return e.log.Put(ctx, pathrules.PeerKey(e.selfWriterKey), manifest.Value{
		Kind: manifest.KindPeer,
		Peer: &manifest.PeerMetadata{
			WriterKey: e.selfWriterKey,
			Name:      name,
			UpdatedAt: time.Now().UnixMilli(),
		},
	})
}

// Start runs initial reconciliation, then subscribes to filesystem events
// and ManifestLog updates (spec.md section 4.7.1, 4.7.8).
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	if !e.ready {
		e.lifecycleMu.Unlock()
		return fmt.Errorf("%w: call Ready before Start", ErrNotReady)
	}
	if e.running {
		e.lifecycleMu.Unlock()
		return nil
	}
	e.running = true
	e.lifecycleMu.Unlock()

	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.runStartupReconciliation(e.ctx); err != nil {
		return fmt.Errorf("syncengine: startup reconciliation: %w", err)
	}

	watcher, err := e.watcherFactory()
	if err != nil {
		return fmt.Errorf("syncengine: creating watcher: %w", err)
	}
	e.watcher = watcher

	if err := watcher.Add(e.syncRoot); err != nil {
		return fmt.Errorf("syncengine: watching %s: %w", e.syncRoot, err)
	}

	e.localQ = newLocalQueue(localQueueBuffer, e.handleLocalTask)
	e.remoteQ = newRemoteQueue(e.logger)

	updates, unsubscribe := e.log.Subscribe()
	e.unsubscribeManifest = unsubscribe

	e.wg.Add(4)
	go func() { defer e.wg.Done(); e.watchLoop(e.ctx) }()
	go func() { defer e.wg.Done(); e.localQ.run(e.ctx) }()
	go func() { defer e.wg.Done(); e.forwardManifestUpdates(e.ctx, updates) }()
	go func() { defer e.wg.Done(); e.remoteQ.run(e.ctx, e.reconcileAllRemotes) }()

	return nil
}

func (e *Engine) forwardManifestUpdates(ctx context.Context, updates <-chan struct{}) {
	for {
		select {
		case <-updates:
			e.remoteQ.notify()
		case <-ctx.Done():
			return
		}
	}
}

// watchLoop translates fsnotify events into LocalQueue tasks, applying the
// meta-path exclusion and suppression-credit consumption described in
// spec.md section 4.7.3.
func (e *Engine) watchLoop(ctx context.Context) {
	for {
		select {
		case ev, ok := <-e.watcher.Events():
			if !ok {
				return
			}

			e.handleWatchEvent(ev)
		case err, ok := <-e.watcher.Errors():
			if !ok {
				return
			}

			e.emit(Event{Error: &ErrorEvent{Message: err.Error()}})
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) handleWatchEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(e.syncRoot, ev.Name)
	if err != nil {
		return
	}

	manifestPath, err := pathrules.Canonicalize(rel)
	if err != nil {
		return
	}

	if isMetaPath(manifestPath) {
		return
	}

	if e.suppressed.take(manifestPath) {
		return
	}

	kind := ChangeUpdate
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		kind = ChangeDelete
	}

	e.localQ.enqueue(localTask{kind: kind, path: manifestPath})
}

// Stop unsubscribes from filesystem and manifest notifications and drains
// both queues to completion (spec.md section 4.7.1, section 5).
func (e *Engine) Stop() error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.running {
		return nil
	}

	if e.unsubscribeManifest != nil {
		e.unsubscribeManifest()
	}

	if e.cancel != nil {
		e.cancel()
	}

	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			e.logger.Warn("closing watcher", "error", err)
		}
	}

	e.wg.Wait()
	e.running = false

	return nil
}

// Close is Stop plus release of owned log/store handles.
func (e *Engine) Close() error {
	if err := e.Stop(); err != nil {
		return err
	}

	if closer, ok := e.store.(interface{ Close() error }); ok {
		return closer.Close()
	}

	return nil
}

// GetPeerName looks up "__peer:<writerKey>", falling back to the first 8
// characters of writerKey if the record is absent (spec.md section 4.7.1).
func (e *Engine) GetPeerName(ctx context.Context, writerKey string) string {
	v, ok, err := e.log.Get(ctx, pathrules.PeerKey(writerKey))
	if err == nil && ok && v.Kind == manifest.KindPeer && v.Peer.Name != "" {
		return v.Peer.Name
	}

	if len(writerKey) >= 8 {
		return writerKey[:8]
	}

	return writerKey
}

// Subscribe registers a channel that receives every Event the engine
// emits. The returned function unsubscribes.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	ch := make(chan Event, 64)
	e.subscribers[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subscribers, id)
			e.subMu.Unlock()
		})
	}

	return ch, unsubscribe
}

func (e *Engine) emit(ev Event) {
	if e.recorder != nil {
		e.recorder.Record(ev)
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()

	for _, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
