package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"go.uber.org/zap"

	"fleetcore/logger"
)

// Manager loads Config from YAML via koanf and hot-reloads it on file
// change via fsnotify, notifying subscribers through Watch.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	watchers []chan *Config
}

// Load reads path through koanf (YAML), validates it, and returns a
// Manager ready to serve Get/Watch calls.
func Load(path string) (*Manager, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Manager{config: cfg, path: path}, nil
}

// Get returns a copy of the current configuration (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.config
	return &cp
}

// Watch returns a channel that receives the current config immediately,
// then every reload thereafter.
func (m *Manager) Watch() <-chan *Config {
	m.mu.Lock()
	ch := make(chan *Config, 1)
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()

	current := m.Get()
	select {
	case ch <- current:
	default:
	}
	return ch
}

// reload re-reads the backing file and, if it parses and validates, swaps
// it in and notifies watchers. A broken edit is logged and ignored rather
// than applied, so a typo in the config file can't take the process down.
func (m *Manager) reload() {
	k := koanf.New(".")
	if err := k.Load(file.Provider(m.path), yaml.Parser()); err != nil {
		logger.Error("config reload: read failed", zap.Error(err))
		return
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		logger.Error("config reload: parse failed", zap.Error(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config reload: validation failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	m.config = cfg
	watchers := append([]chan *Config(nil), m.watchers...)
	m.mu.Unlock()

	logger.Info("configuration reloaded", zap.String("path", m.path))
	for _, w := range watchers {
		select {
		case w <- cfg:
		default:
		}
	}
}

// WatchFile starts an fsnotify watch on the backing file and reloads on
// every write, until ctx-equivalent stop is signalled via the returned
// stop function.
func (m *Manager) WatchFile() (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := watcher.Add(m.path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", m.path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					m.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config watcher error", zap.Error(err))
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}
