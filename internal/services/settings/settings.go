// Package settings manages runtime chat settings changes: the current
// values, persistence and change notification.
package settings

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/services/cache"
)

// Service holds the live chat settings. Updates persist to the local
// cache and notify registered listeners, typically the scheduler so a
// running loop picks up new pacing immediately.
type Service struct {
	mu        sync.RWMutex
	current   models.ChatSettings
	local     *cache.Local
	logger    *logrus.Logger
	listeners []func(models.ChatSettings)
}

// NewService loads persisted settings from the cache, falling back to
// the given defaults.
func NewService(local *cache.Local, defaults models.ChatSettings, logger *logrus.Logger) *Service {
	current := defaults
	if saved, ok := local.Settings(); ok {
		current = *saved
	}
	return &Service{
		current: current,
		local:   local,
		logger:  logger,
	}
}

// Current returns the settings as they stand.
func (s *Service) Current() models.ChatSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the settings, persists them and notifies listeners.
// Intervals are clamped to their floors first, so the stored values
// always match what the scheduler will actually run with.
func (s *Service) Update(updated models.ChatSettings) {
	updated = updated.Clamped()

	s.mu.Lock()
	s.current = updated
	saved := updated
	listeners := make([]func(models.ChatSettings), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.local.SaveSettings(&saved)
	s.logger.WithFields(logrus.Fields{
		"min_interval":    saved.MinInterval.String(),
		"max_interval":    saved.MaxInterval.String(),
		"response_chance": saved.ResponseChance,
	}).Info("Chat settings updated")

	for _, listener := range listeners {
		listener(saved)
	}
}

// SetTokenOverride sets or clears one agent's token limit override.
// A limit of zero removes the override.
func (s *Service) SetTokenOverride(agentID string, limit int) {
	s.mu.Lock()
	if s.current.TokenOverrides == nil {
		s.current.TokenOverrides = make(map[string]int)
	}
	if limit <= 0 {
		delete(s.current.TokenOverrides, agentID)
	} else {
		s.current.TokenOverrides[agentID] = limit
	}
	updated := s.current
	s.mu.Unlock()
	s.Update(updated)
}

// OnChange registers a listener invoked after every update.
func (s *Service) OnChange(listener func(models.ChatSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Defaults returns the built-in settings used before any configuration
// is applied.
func Defaults() models.ChatSettings {
	return models.ChatSettings{
		MinInterval:    3 * time.Second,
		MaxInterval:    6 * time.Second,
		ResponseChance: 0.7,
	}
}
