package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store holds the current configuration and hands out copies of it. The AMI
// client and call tracker read through it and never write.
type Store struct {
	path   string
	logger *zap.Logger

	mu  sync.RWMutex
	cfg *Config
}

// Open loads the file at path into a new Store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := NewStore(cfg, logger)
	s.path = path
	return s, nil
}

// NewStore wraps an already loaded configuration. Reload and Watch require
// a Store created by Open.
func NewStore(cfg *Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{cfg: cfg, logger: logger}
}

// SetLogger replaces the logger used for reload messages.
func (s *Store) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s.logger = logger
}

// Path returns the file the Store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Config returns a copy of the whole configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := *s.cfg
	c.Extensions.Monitor = slices.Clone(s.cfg.Extensions.Monitor)
	return c
}

// AMISettings returns the manager connection settings.
func (s *Store) AMISettings() AMIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.AMI
}

// ExtensionsToMonitor returns the monitored extensions; empty means all.
func (s *Store) ExtensionsToMonitor() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cfg.Extensions.Monitor)
}

// Reload re-reads the file. On error the previous configuration is kept.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("config store has no backing file")
	}
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.logger.Info("configuration reloaded", zap.String("path", s.path))
	return nil
}

// Watch reloads the configuration whenever its file changes and calls
// onChange after each successful reload. It blocks until ctx is done.
// The parent directory is watched so editors that replace the file by
// rename are still seen.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	if s.path == "" {
		return fmt.Errorf("config store has no backing file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("ignoring invalid configuration change", zap.Error(err))
				continue
			}
			if onChange != nil {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
