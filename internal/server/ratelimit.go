package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig holds per-client request and upload limits.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// RateLimiter enforces per-client request rates and daily quotas. Clients
// are keyed by IP address. A zero limit disables that particular check.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	clients map[string]*clientUsage
}

// clientUsage tracks request and data counters for one client.
type clientUsage struct {
	requestsLastMinute int
	requestsLastHour   int
	requestsToday      int
	dataToday          int64

	lastRequestTime time.Time
	dayStartTime    time.Time
}

// Usage is a point-in-time snapshot of a client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		clients: make(map[string]*clientUsage),
	}
}

// CheckRateLimit checks whether a request from the given client is allowed
// and, if so, records it. dataSize is the request body size counted against
// the daily data quota.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	usage := rl.getOrCreateUsage(clientID, now)
	rl.resetCountersIfNeeded(usage, now)

	if err := rl.checkRateLimits(usage, now); err != nil {
		return err
	}
	if err := rl.checkDailyQuotas(usage, dataSize, now); err != nil {
		return err
	}

	usage.requestsLastMinute++
	usage.requestsLastHour++
	usage.requestsToday++
	usage.dataToday += dataSize
	usage.lastRequestTime = now

	return nil
}

// GetUsage returns current usage statistics for a client.
func (rl *RateLimiter) GetUsage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if usage, exists := rl.clients[clientID]; exists {
		return Usage{
			RequestsLastMinute: usage.requestsLastMinute,
			RequestsLastHour:   usage.requestsLastHour,
			RequestsToday:      usage.requestsToday,
			DataToday:          usage.dataToday,
		}
	}
	return Usage{}
}

// resetCountersIfNeeded resets usage counters when time periods roll over.
func (rl *RateLimiter) resetCountersIfNeeded(usage *clientUsage, now time.Time) {
	if now.Day() != usage.dayStartTime.Day() || now.Month() != usage.dayStartTime.Month() {
		usage.requestsToday = 0
		usage.dataToday = 0
		usage.dayStartTime = now
	}

	if now.Sub(usage.lastRequestTime) >= time.Minute {
		usage.requestsLastMinute = 0
	}
	if now.Sub(usage.lastRequestTime) >= time.Hour {
		usage.requestsLastHour = 0
	}
}

// checkRateLimits checks the minute and hour windows.
func (rl *RateLimiter) checkRateLimits(usage *clientUsage, now time.Time) error {
	if rl.cfg.RequestsPerMinute > 0 && usage.requestsLastMinute >= rl.cfg.RequestsPerMinute {
		return &RateLimitError{
			Type:       "minute",
			Limit:      rl.cfg.RequestsPerMinute,
			RetryAfter: time.Minute - now.Sub(usage.lastRequestTime),
		}
	}

	if rl.cfg.RequestsPerHour > 0 && usage.requestsLastHour >= rl.cfg.RequestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      rl.cfg.RequestsPerHour,
			RetryAfter: time.Hour - now.Sub(usage.lastRequestTime),
		}
	}

	return nil
}

// checkDailyQuotas checks the daily request and data quotas.
func (rl *RateLimiter) checkDailyQuotas(usage *clientUsage, dataSize int64, now time.Time) error {
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())

	if rl.cfg.MaxRequestsPerDay > 0 && usage.requestsToday >= rl.cfg.MaxRequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  int64(rl.cfg.MaxRequestsPerDay),
			Used:   int64(usage.requestsToday),
			Resets: nextMidnight,
		}
	}

	if rl.cfg.MaxDataPerDay > 0 && usage.dataToday+dataSize > rl.cfg.MaxDataPerDay {
		return &QuotaExceededError{
			Type:   "data",
			Limit:  rl.cfg.MaxDataPerDay,
			Used:   usage.dataToday,
			Resets: nextMidnight,
		}
	}

	return nil
}

// getOrCreateUsage gets or creates usage tracking for a client.
func (rl *RateLimiter) getOrCreateUsage(clientID string, now time.Time) *clientUsage {
	usage, exists := rl.clients[clientID]
	if !exists {
		usage = &clientUsage{
			lastRequestTime: now,
			dayStartTime:    now,
		}
		rl.clients[clientID] = usage
	}
	return usage
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
