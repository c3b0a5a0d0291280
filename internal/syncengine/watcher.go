package syncengine

import (
	"strings"

	"github.com/fsnotify/fsnotify"
)

// metaDirPrefix is unconditionally ignored by the watcher (spec.md section
// 4.7.3: "All paths inside /.pearsync/** are unconditionally ignored").
const metaDirPrefix = "/.pearsync/"

// FsWatcher abstracts filesystem event monitoring, satisfied by
// *fsnotify.Watcher and by a fake in tests — the same seam the teacher
// cuts in internal/sync/observer_local.go, since fsnotify exposes its
// Events/Errors as struct fields rather than methods.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWatcher{w: w}, nil
}

func (f *fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWatcher) Remove(name string) error      { return f.w.Remove(name) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// isMetaPath reports whether manifestPath falls under the engine's own
// metadata directory and should never reach the local-change pipeline.
func isMetaPath(manifestPath string) bool {
	return manifestPath == "/.pearsync" || strings.HasPrefix(manifestPath, metaDirPrefix)
}
