package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirectoryWatcher calls onChange once a burst of changes to *.json files in a
// directory has settled for the debounce interval.
type DirectoryWatcher struct {
	dir      string
	debounce time.Duration
	onChange func(ctx context.Context)
	logger   *slog.Logger

	watcher       *fsnotify.Watcher
	stop          chan struct{}
	done          chan struct{}
	mu            sync.Mutex
	debounceTimer *time.Timer
}

func NewDirectoryWatcher(dir string, debounce time.Duration, onChange func(ctx context.Context), logger *slog.Logger) *DirectoryWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &DirectoryWatcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		logger:   logger.With("component", "workflow_watcher"),
	}
}

// Start begins watching. The directory must exist.
func (w *DirectoryWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.watcher = watcher
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go w.watchLoop()
	w.logger.Info("Watching workflow directory", "dir", w.dir, "debounce", w.debounce)
	return nil
}

func (w *DirectoryWatcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.logger.Debug("Workflow file changed", "file", event.Name, "op", event.Op.String())
				w.scheduleChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Workflow watcher error", "error", err)
		}
	}
}

func (w *DirectoryWatcher) scheduleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		w.onChange(context.Background())
	})
}

// Close stops the watcher; a pending debounced change is dropped.
func (w *DirectoryWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	close(w.stop)
	err := w.watcher.Close()
	<-w.done

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()
	return err
}
