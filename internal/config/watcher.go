package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeCallback is invoked after a successful reload with the old and new
// configuration.
type ChangeCallback func(oldCfg, newCfg *Config)

// Watcher watches the YAML configuration file and hot-reloads tunable
// settings (TTL tiers, scheduler intervals). Structural settings such as
// Redis connection parameters require a restart and are only logged when
// they change on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	current  *Config
	mu       sync.RWMutex
	onChange []ChangeCallback
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher seeded with the currently loaded config.
func NewWatcher(configPath string, current *Config, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(configPath); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}
	// Watch the directory too: editors and config deploys replace the file
	// with a rename, which drops the direct watch.
	if err := fw.Add(filepath.Dir(configPath)); err != nil {
		logger.Warn("Failed to watch config directory", zap.Error(err))
	}

	return &Watcher{
		path:    configPath,
		watcher: fw,
		current: current,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(cb ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, cb)
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching for configuration changes.
func (w *Watcher) Start() {
	go w.watchLoop()
	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		w.logger.Info("Configuration watcher stopped")
	})
}

func (w *Watcher) watchLoop() {
	// Debounce: atomic saves fire several events back to back.
	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	w.logger.Info("Configuration file changed, reloading", zap.String("path", w.path))

	newCfg := Default()
	if err := loadFile(w.path, newCfg); err != nil {
		w.logger.Error("Failed to reload configuration", zap.Error(err))
		return
	}
	loadEnvironment(newCfg)
	if err := newCfg.Validate(); err != nil {
		w.logger.Error("Invalid configuration, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	oldCfg := w.current
	w.current = newCfg
	callbacks := make([]ChangeCallback, len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	w.logChanges(oldCfg, newCfg)

	for _, cb := range callbacks {
		go cb(oldCfg, newCfg)
	}
}

func (w *Watcher) logChanges(oldCfg, newCfg *Config) {
	var changes []string

	if oldCfg.Cache.FeedTTL != newCfg.Cache.FeedTTL {
		changes = append(changes, fmt.Sprintf("cache.feed_ttl: %s -> %s",
			oldCfg.Cache.FeedTTL, newCfg.Cache.FeedTTL))
	}
	if oldCfg.Cache.DefaultTTL != newCfg.Cache.DefaultTTL {
		changes = append(changes, fmt.Sprintf("cache.default_ttl: %s -> %s",
			oldCfg.Cache.DefaultTTL, newCfg.Cache.DefaultTTL))
	}
	if oldCfg.Buffer.FlushInterval != newCfg.Buffer.FlushInterval {
		changes = append(changes, fmt.Sprintf("buffer.flush_interval: %s -> %s",
			oldCfg.Buffer.FlushInterval, newCfg.Buffer.FlushInterval))
	}
	if oldCfg.Expiry.SweepInterval != newCfg.Expiry.SweepInterval {
		changes = append(changes, fmt.Sprintf("expiry.sweep_interval: %s -> %s",
			oldCfg.Expiry.SweepInterval, newCfg.Expiry.SweepInterval))
	}
	if oldCfg.Redis.Addr() != newCfg.Redis.Addr() {
		changes = append(changes, fmt.Sprintf("redis.addr: %s -> %s (requires restart)",
			oldCfg.Redis.Addr(), newCfg.Redis.Addr()))
	}

	if len(changes) > 0 {
		w.logger.Info("Configuration changes detected", zap.Strings("changes", changes))
	}
}
