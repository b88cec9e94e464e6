// Package reload watches configuration files and reports settled changes.
package reload

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce absorbs the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange with the set of watched files that changed, once
// they have been quiet for the debounce period.
//
// Parent directories are watched rather than the files themselves, so
// atomic replace-by-rename saves are seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	debounce time.Duration
	onChange func(changed []string)
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates a watcher for paths. Nothing is delivered until Run.
func New(paths []string, debounce time.Duration, onChange func(changed []string), logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		watcher:  fw,
		files:    make(map[string]struct{}),
		debounce: debounce,
		onChange: onChange,
		logger:   logger.Named("reload"),
		pending:  make(map[string]time.Time),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			w.logger.Warn("cannot watch directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		w.logger.Debug("watching", zap.String("dir", dir))
	}
	return w, nil
}

// Run delivers changes until ctx is cancelled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	tick := time.NewTicker(w.debounce / 5)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))

		case now := <-tick.C:
			if changed := w.settled(now); len(changed) > 0 {
				w.logger.Info("files changed", zap.Strings("files", changed))
				w.onChange(changed)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return // chmod
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	if _, ok := w.files[name]; !ok {
		return
	}
	w.mu.Lock()
	w.pending[name] = time.Now()
	w.mu.Unlock()
}

// settled returns, and forgets, the files that have been quiet long enough.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for name, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			out = append(out, name)
			delete(w.pending, name)
		}
	}
	sort.Strings(out)
	return out
}
