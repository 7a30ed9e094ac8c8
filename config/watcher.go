// Package config provides configuration watching and hot-reload functionality
package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last file event before a
// reload.
const DefaultDebounce = 500 * time.Millisecond

// ConfigChangeCallback is called when configuration changes
type ConfigChangeCallback func(oldConfig, newConfig *Config)

// Watcher watches a configuration file and reloads it on change
type Watcher struct {
	configFile string
	loader     *Loader
	log        *slog.Logger
	debounce   time.Duration

	config   *Config
	configMu sync.RWMutex

	fsWatcher *fsnotify.Watcher

	callbacks   []ConfigChangeCallback
	callbacksMu sync.RWMutex

	// reloadMu keeps reloads and their callbacks in order
	reloadMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = logger }
}

// WithDebounce sets the reload debounce period
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher and loads the initial configuration
func NewWatcher(configFile string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if _, err := formatOf(configFile); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(configFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}

	w := &Watcher{
		configFile: abs,
		loader:     loader,
		log:        slog.Default(),
		debounce:   DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}

	config, err := loader.Load(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}
	w.config = config

	return w, nil
}

// Start starts watching the configuration file. The directory is watched
// so that editors replacing the file are noticed.
func (w *Watcher) Start() error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}
	if err := fsWatcher.Add(filepath.Dir(w.configFile)); err != nil {
		fsWatcher.Close()
		return fmt.Errorf("%w: %v", ErrConfigWatchError, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.fsWatcher = fsWatcher
	w.cancel = cancel

	w.wg.Add(1)
	go w.watchLoop(ctx)

	w.log.Info("watching configuration", slog.String("file", w.configFile))
	return nil
}

// Stop stops watching the configuration file
func (w *Watcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	w.cancel = nil
	return err
}

// GetConfig returns the current configuration
func (w *Watcher) GetConfig() *Config {
	w.configMu.RLock()
	defer w.configMu.RUnlock()
	return w.config
}

// OnConfigChange registers a callback for configuration changes
func (w *Watcher) OnConfigChange(callback ConfigChangeCallback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Reload reloads the configuration now. An invalid file leaves the current
// configuration in place.
func (w *Watcher) Reload() error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	newConfig, err := w.loader.Load(w.configFile)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	w.configMu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.configMu.Unlock()

	w.notifyCallbacks(oldConfig, newConfig)

	w.log.Info("configuration reloaded", slog.String("file", w.configFile))
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := w.Reload(); err != nil {
					w.log.Error("config reload failed", slog.Any("error", err))
				}
			})

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", slog.Any("error", err))
		}
	}
}

// notifyCallbacks runs callbacks in registration order; a panicking
// callback does not stop the others.
func (w *Watcher) notifyCallbacks(oldConfig, newConfig *Config) {
	w.callbacksMu.RLock()
	callbacks := make([]ConfigChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.log.Error("config change callback panicked", slog.Any("recovered", r))
				}
			}()
			callback(oldConfig, newConfig)
		}()
	}
}
