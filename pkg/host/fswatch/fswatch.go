// Package fswatch implements host.Editor for a single file on disk, turning filesystem
// writes into save events.
package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codecoach/pkg/host"
	"codecoach/pkg/logx"
)

// DefaultDebounce collapses the burst of events an editor emits for one save.
const DefaultDebounce = 150 * time.Millisecond

// Editor watches one file. The file is always the active, visible buffer.
type Editor struct {
	path     string
	debounce time.Duration
	notify   func(string)
	logger   *logx.Logger

	mu        sync.Mutex
	content   string
	selection string
	listeners map[uint64]func(host.Buffer)
	nextID    uint64
}

// New reads path once and returns an editor for it. notify receives ShowMessage texts;
// nil logs them instead.
func New(path string, debounce time.Duration, notify func(string)) (*Editor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	e := &Editor{
		path:      abs,
		debounce:  debounce,
		notify:    notify,
		logger:    logx.NewLogger("fswatch"),
		content:   string(data),
		listeners: make(map[uint64]func(host.Buffer)),
	}
	if e.notify == nil {
		e.notify = func(text string) { e.logger.Info("%s", text) }
	}
	return e, nil
}

// Path returns the watched file.
func (e *Editor) Path() string { return e.path }

func (e *Editor) buffer() host.StaticBuffer {
	return host.StaticBuffer{Path: "file://" + e.path, Content: e.content, OnDisk: true}
}

// ActiveBuffer implements host.Editor.
func (e *Editor) ActiveBuffer() (host.Buffer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer(), true
}

// VisibleBuffers implements host.Editor.
func (e *Editor) VisibleBuffers() []host.Buffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return []host.Buffer{e.buffer()}
}

// Selection implements host.Editor.
func (e *Editor) Selection() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection
}

// Select sets the text reported as the selection.
func (e *Editor) Select(text string) {
	e.mu.Lock()
	e.selection = text
	e.mu.Unlock()
}

// OnSave implements host.Editor.
func (e *Editor) OnSave(fn func(host.Buffer)) host.Cancel {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// ShowMessage implements host.Editor.
func (e *Editor) ShowMessage(text string) { e.notify(text) }

// Run watches the file's directory until ctx is cancelled. Editors often save by
// writing a temporary file and renaming it over the original, so the directory is
// watched rather than the file itself.
func (e *Editor) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(e.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(e.path), err)
	}
	e.logger.Info("👀 Watching %s", e.path)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != e.path || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(e.debounce)
			} else {
				timer.Reset(e.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			e.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watch error: %v", err)
		}
	}
}

// reload rereads the file and fires save listeners when the content changed.
func (e *Editor) reload() {
	data, err := os.ReadFile(e.path)
	if err != nil {
		// a rename-based save may not have landed yet
		logx.Debug(context.Background(), "fswatch", "reload %s: %v", e.path, err)
		return
	}
	e.mu.Lock()
	if string(data) == e.content {
		e.mu.Unlock()
		return
	}
	e.content = string(data)
	buf := e.buffer()
	fns := make([]func(host.Buffer), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(buf)
	}
}
