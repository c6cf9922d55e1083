// Package watcher reports changes to the token cache file made by other processes.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Action describes what happened to the watched file.
type Action string

const (
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Event is delivered to the change callback once a burst of file system events settles.
type Event struct {
	Action Action
	Path   string
}

// changeDebounce lets an atomic replace (write temp, rename) settle into one event.
const changeDebounce = 100 * time.Millisecond

// Watcher watches the directory holding a single file. Atomic replaces swap
// the inode, so a watch on the file itself would be lost after the first save.
type Watcher struct {
	path     string
	dir      string
	onChange func(Event)
	watcher  *fsnotify.Watcher

	mu       sync.Mutex
	timer    *time.Timer
	lastHash string
	exists   bool
	stopped  bool
}

// New creates a watcher for path. onChange runs on a timer goroutine.
func New(path string, onChange func(Event)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	cleaned := normalizePath(path)
	return &Watcher{
		path:     cleaned,
		dir:      filepath.Dir(cleaned),
		onChange: onChange,
		watcher:  fsw,
	}, nil
}

// Start records the current file state and begins watching. The parent
// directory is created when missing.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return err
	}
	w.mu.Lock()
	w.lastHash, w.exists = w.snapshot()
	w.mu.Unlock()
	if err := w.watcher.Add(w.dir); err != nil {
		log.Errorf("failed to watch token directory %s: %v", w.dir, err)
		return err
	}
	log.WithField("path", w.path).Debug("watching token cache")
	go w.processEvents(ctx)
	return nil
}

// Stop closes the underlying watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if normalizePath(event.Name) != w.path {
				continue
			}
			log.Debugf("token cache event: %s %s", event.Op.String(), filepath.Base(event.Name))
			w.schedule()
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("token cache watcher error: %v", errWatch)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(changeDebounce, w.settle)
}

func (w *Watcher) settle() {
	hash, exists := w.snapshot()

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	var event *Event
	switch {
	case !exists && w.exists:
		event = &Event{Action: ActionDelete, Path: w.path}
	case exists && (!w.exists || hash != w.lastHash):
		event = &Event{Action: ActionModify, Path: w.path}
	}
	w.lastHash, w.exists = hash, exists
	w.mu.Unlock()

	if event != nil && w.onChange != nil {
		w.onChange(*event)
	}
}

func (w *Watcher) snapshot() (string, bool) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Debugf("failed to read token cache %s: %v", w.path, err)
		}
		return "", false
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	cleaned := filepath.Clean(trimmed)
	if abs, err := filepath.Abs(cleaned); err == nil {
		cleaned = abs
	}
	if runtime.GOOS == "windows" {
		cleaned = strings.TrimPrefix(cleaned, `\\?\`)
		cleaned = strings.ToLower(cleaned)
	}
	return cleaned
}
