package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/parleychat/parley/internal/config"
)

// RateLimiter interface for per-agent completion rate limiting
type RateLimiter interface {
	Allow(agentID string) bool
	Wait(ctx context.Context, agentID string) error
	Reset(agentID string)
}

// AgentRateLimiter implements per-agent rate limiting so one noisy
// persona cannot starve the rest of the room.
type AgentRateLimiter struct {
	enabled         bool
	limiters        map[string]*rate.Limiter
	mu              sync.RWMutex
	rpm             int
	burst           int
	logger          *logrus.Logger
	cleanupInterval time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) RateLimiter {
	if !cfg.Enabled {
		return &AgentRateLimiter{enabled: false}
	}

	rl := &AgentRateLimiter{
		enabled:         true,
		limiters:        make(map[string]*rate.Limiter),
		rpm:             cfg.RequestsPerMinute,
		burst:           cfg.Burst,
		logger:          logger,
		cleanupInterval: 1 * time.Hour,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Allow checks if an agent may issue a completion request right now.
func (r *AgentRateLimiter) Allow(agentID string) bool {
	if !r.enabled {
		return true
	}

	limiter := r.getLimiter(agentID)
	allowed := limiter.Allow()

	if !allowed {
		r.logger.WithField("agent_id", agentID).Warn("Rate limit exceeded")
	}

	return allowed
}

// Wait blocks until the agent may issue a completion request, or the
// context is cancelled.
func (r *AgentRateLimiter) Wait(ctx context.Context, agentID string) error {
	if !r.enabled {
		return nil
	}
	return r.getLimiter(agentID).Wait(ctx)
}

// Reset resets the rate limiter for an agent
func (r *AgentRateLimiter) Reset(agentID string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, agentID)
	r.mu.Unlock()
}

// getLimiter gets or creates a rate limiter for an agent
func (r *AgentRateLimiter) getLimiter(agentID string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[agentID]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := r.limiters[agentID]; exists {
		return limiter
	}

	// Rate per second = RPM / 60
	rps := float64(r.rpm) / 60.0
	limiter = rate.NewLimiter(rate.Limit(rps), r.burst)
	r.limiters[agentID] = limiter

	return limiter
}

// cleanup bounds the limiter map; agents come and go as contacts are
// edited.
func (r *AgentRateLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		if len(r.limiters) > 10000 {
			r.logger.Warn("Rate limiter map size exceeded threshold, clearing")
			r.limiters = make(map[string]*rate.Limiter)
		}
		r.mu.Unlock()
	}
}
