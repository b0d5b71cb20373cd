package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/crm-cache/pkg/logging"
	"github.com/rs/zerolog"
)

// ChangeFunc is called after preferences change, with the previous and the
// new configuration.
type ChangeFunc func(prev, next CacheConfig)

// Service owns the live cache preferences.
//
// Reads always observe the latest write. Writes are serialized: every
// setter persists the full configuration and notifies subscribers before
// the next write starts, so the store and subscribers see changes in
// order. Subscribers must not call setters.
type Service struct {
	// writeMu orders apply, persist and notify across setters; mu guards cfg.
	writeMu  sync.Mutex
	mu       sync.RWMutex
	cfg      CacheConfig
	defaults CacheConfig
	store    PreferenceStore
	logger   zerolog.Logger

	subMu  sync.Mutex
	nextID int
	subs   map[int]ChangeFunc
}

// NewService creates a Service seeded with defaults and overridden by
// whatever store holds. A nil store keeps preferences in memory only.
// Unreadable or malformed persisted data is logged and ignored.
func NewService(ctx context.Context, store PreferenceStore, defaults CacheConfig, logger zerolog.Logger) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	if defaults.Resources == nil {
		defaults = DefaultCacheConfig()
	}

	s := &Service{
		defaults: defaults.Clone(),
		store:    store,
		logger:   logging.WithComponent(logger, logging.ComponentConfig),
		subs:     make(map[int]ChangeFunc),
	}
	s.cfg = s.load(ctx)
	return s
}

// load reads the persisted blob and falls back to defaults on any failure.
func (s *Service) load(ctx context.Context) CacheConfig {
	raw, found, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load persisted cache config, using defaults")
		return s.defaults.Clone()
	}
	if !found {
		s.logger.Debug().Msg("No persisted cache config, using defaults")
		return s.defaults.Clone()
	}

	cfg, err := ParsePersistedConfig(raw, s.defaults)
	switch {
	case err == nil:
		s.logger.Debug().
			Bool("enabled", cfg.Enabled).
			Int("resources", len(cfg.Resources)).
			Msg("Loaded persisted cache config")
		return cfg
	case errors.Is(err, ErrEmptyPersisted):
		return s.defaults.Clone()
	default:
		s.logger.Warn().Err(err).Msg("Ignoring malformed persisted cache config")
		return s.defaults.Clone()
	}
}

// Get returns a copy of the current configuration.
func (s *Service) Get() CacheConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Defaults returns a copy of the default configuration.
func (s *Service) Defaults() CacheConfig {
	return s.defaults.Clone()
}

// IsEnabled reports whether caching is effective for r.
func (s *Service) IsEnabled(r Resource) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.IsEnabled(r)
}

// TTL returns the effective TTL for r.
func (s *Service) TTL(r Resource) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.TTL(r)
}

// Debug returns the debug flags.
func (s *Service) Debug() DebugConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Debug
}

// Set applies p, persists the result and notifies subscribers. If
// persisting fails the in-memory change is kept and the error returned.
func (s *Service) Set(ctx context.Context, p Patch) (CacheConfig, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	prev := s.cfg
	next, err := prev.Apply(p)
	if err != nil {
		s.mu.Unlock()
		return prev.Clone(), err
	}
	s.cfg = next
	s.mu.Unlock()

	persistErr := s.persist(ctx, next)
	s.notify(prev, next)

	if persistErr != nil {
		return next.Clone(), persistErr
	}
	return next.Clone(), nil
}

// SetEnabled switches caching on or off globally.
func (s *Service) SetEnabled(ctx context.Context, enabled bool) error {
	_, err := s.Set(ctx, Patch{Enabled: Bool(enabled)})
	return err
}

// SetResource replaces the settings of one resource.
func (s *Service) SetResource(ctx context.Context, r Resource, rc ResourceConfig) error {
	_, err := s.Set(ctx, Patch{Resources: map[Resource]ResourcePatch{
		r: {Enabled: Bool(rc.Enabled), TTL: Duration(rc.TTL)},
	}})
	return err
}

// Reset restores the defaults and removes the persisted blob.
func (s *Service) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	prev := s.cfg
	next := s.defaults.Clone()
	s.cfg = next
	s.mu.Unlock()

	err := s.store.Remove(ctx)
	s.notify(prev, next)

	if err != nil {
		return fmt.Errorf("remove persisted cache config: %w", err)
	}
	s.logger.Info().Msg("Cache config reset to defaults")
	return nil
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Service) Subscribe(fn ChangeFunc) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Service) persist(ctx context.Context, cfg CacheConfig) error {
	data, err := MarshalPersistedConfig(cfg)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, data); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist cache config")
		return fmt.Errorf("persist cache config: %w", err)
	}
	return nil
}

func (s *Service) notify(prev, next CacheConfig) {
	s.subMu.Lock()
	subs := make([]ChangeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(prev.Clone(), next.Clone())
	}
}
