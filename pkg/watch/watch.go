// Package watch invalidates the trigger cache when memory files change on
// disk, so edits made outside the engine show up before the cache TTL runs
// out.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/recall/pkg/logger"
)

const defaultDebounce = 250 * time.Millisecond

// Invalidator drops cached state derived from memory files.
type Invalidator interface {
	InvalidateTriggers()
}

// Config configures a Watcher.
type Config struct {
	// Root is watched recursively. Required.
	Root string

	// Extensions limits the files that count as changes. Defaults to ".md".
	Extensions []string

	// Debounce coalesces bursts of events into one invalidation.
	Debounce time.Duration

	Logger *slog.Logger
}

// Watcher watches a directory tree.
type Watcher struct {
	root       string
	extensions []string
	debounce   time.Duration
	target     Invalidator
	fsw        *fsnotify.Watcher
	logger     *slog.Logger
}

// New creates a Watcher over c.Root. It starts watching immediately; Run
// delivers the events.
func New(c Config, target Invalidator) (*Watcher, error) {
	if c.Root == "" {
		return nil, errors.New("watch root is required")
	}
	if target == nil {
		return nil, errors.New("invalidator is required")
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".md"}
	}
	if c.Debounce <= 0 {
		c.Debounce = defaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:       c.Root,
		extensions: c.Extensions,
		debounce:   c.Debounce,
		target:     target,
		fsw:        fsw,
		logger:     logger.OrNop(c.Logger),
	}
	if err := w.addTree(c.Root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run delivers events until ctx is done. It closes the underlying watcher
// before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("memory file changed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.target.InvalidateTriggers()
			w.logger.Info("trigger cache invalidated by file change", "root", w.root)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(event.Name)))
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
