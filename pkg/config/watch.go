package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	Path     string
	Debounce time.Duration
	Logger   *log.Logger

	// OnChange receives every successfully reloaded config. A file that
	// fails to load is logged and the previous config stays in effect.
	OnChange func(Config)
}

// Run watches until ctx is cancelled. The parent directory is watched so
// that atomic replace-by-rename saves are seen too.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = log.Default()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	path, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config watch %s: %w", path, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		var cfg Config
		var err error
		for i := 0; i < 3; i++ {
			if i > 0 {
				time.Sleep(100 * time.Millisecond)
			}
			cfg, err = Load(path)
			if err == nil {
				break
			}
			logger.Printf("config: reload failed (attempt %d/3): %v", i+1, err)
		}
		if err != nil {
			logger.Printf("config: keeping previous config: %v", err)
			return
		}
		logger.Printf("config: reloaded %s (%d sources)", path, len(cfg.Sources))
		if w.OnChange != nil {
			w.OnChange(cfg)
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Printf("config: watch error: %v", err)
		}
	}
}
