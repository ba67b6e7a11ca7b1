// Package watch reports file changes under a set of directories, filtered
// by doublestar patterns and debounced into a single notification.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before onChange runs
const DefaultDebounce = 300 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Paths are the directories watched recursively. Defaults to ".".
	Paths []string
	// Patterns filter changed files, matched against the path relative to
	// the watched directory. An empty list matches everything.
	Patterns []string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher watches directories for file changes.
type Watcher struct {
	paths    []string
	patterns []string
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a Watcher, validating its patterns.
func New(cfg Config) (*Watcher, error) {
	for _, p := range cfg.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid watch pattern %q", p)
		}
	}
	w := &Watcher{
		paths:    cfg.Paths,
		patterns: cfg.Patterns,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
	if len(w.paths) == 0 {
		w.paths = []string{"."}
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w, nil
}

// Watch blocks until ctx is cancelled, calling onChange once per burst of
// relevant events. onChange runs on the watch goroutine, never concurrently
// with itself.
func (w *Watcher) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, root := range w.paths {
		if err := watcher.Add(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
		w.addSubdirs(watcher, root)
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && !strings.HasPrefix(filepath.Base(event.Name), ".") {
				// New directories are watched as they appear
				w.addSubdirs(watcher, event.Name)
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("file change detected", "file", event.Name, "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Stop()
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// relevant reports whether event should trigger onChange
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	switch filepath.Ext(name) {
	case ".swp", ".swo", ".swn", ".tmp", ".bak":
		return false
	}

	return w.Matches(event.Name)
}

// Matches reports whether path is selected by the watcher's patterns.
func (w *Watcher) Matches(path string) bool {
	if len(w.patterns) == 0 {
		return true
	}
	for _, root := range w.paths {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		for _, p := range w.patterns {
			if ok, _ := doublestar.Match(p, rel); ok {
				return true
			}
		}
	}
	return false
}

// addSubdirs recursively adds dir and its subdirectories to the watcher.
// Hidden directories, the state directory among them, are skipped.
func (w *Watcher) addSubdirs(watcher *fsnotify.Watcher, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			w.logger.Debug("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}
