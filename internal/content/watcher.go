package content

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a Catalog when article files under its directory change.
// Bursts of events collapse into one reload after the debounce interval.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	catalog     *Catalog
	logger      *zap.Logger
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	reloads     int
}

func NewWatcher(catalog *Catalog, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Watcher{
		watcher:     w,
		catalog:     catalog,
		logger:      logger,
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start watches the catalog directory and its subdirectories. It does not
// block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.catalog.Dir()); err != nil {
		w.logger.Warn("content watch failed", zap.String("dir", w.catalog.Dir()), zap.Error(err))
	} else {
		w.logger.Info("watching content", zap.String("dir", w.catalog.Dir()))
	}

	go w.run(ctx)
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("closing content watcher", zap.Error(err))
	}
}

// Reloads reports how many debounced reloads have run.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
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
		return w.watcher.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				timer.Reset(w.debounceDur)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("content watcher error", zap.Error(err))

		case <-timer.C:
			if err := w.catalog.Load(); err != nil {
				w.logger.Error("content reload failed", zap.Error(err))
				continue
			}
			w.mu.Lock()
			w.reloads++
			w.mu.Unlock()
		}
	}
}

// relevant filters to article changes and directory changes. A created
// directory is added to the watch.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Debug("watch new directory failed", zap.String("dir", event.Name), zap.Error(err))
			}
			return true
		}
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Ext(event.Name) == "" {
		return true
	}
	if IsArticleFile(event.Name) {
		w.logger.Debug("content change", zap.String("op", event.Op.String()), zap.String("path", event.Name))
		return true
	}
	return false
}
