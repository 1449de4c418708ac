package server

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter manages per-client request rates and daily quotas. Request
// rates use a token bucket per client.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	burst             int

	maxRequestsPerDay int
	maxDataPerDay     int64 // in bytes

	clients map[string]*clientUsage
	now     func() time.Time
}

type clientUsage struct {
	limiter *rate.Limiter

	requestsToday int
	dataToday     int64
	dayStart      time.Time
}

// Usage is a snapshot of a client's daily counters.
type Usage struct {
	RequestsToday int
	DataToday     int64
}

// NewRateLimiter creates a limiter. Zero limits are disabled; a zero burst
// allows a full minute's worth of requests at once.
func NewRateLimiter(requestsPerMinute, burst, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	if burst <= 0 {
		burst = requestsPerMinute
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		clients:           make(map[string]*clientUsage),
		now:               time.Now,
	}
}

// CheckRateLimit checks whether a request from the client is allowed and
// counts it if so.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	usage := rl.usage(clientID, now)

	if !sameDay(usage.dayStart, now) {
		usage.requestsToday = 0
		usage.dataToday = 0
		usage.dayStart = now
	}

	resets := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	if rl.maxRequestsPerDay > 0 && usage.requestsToday >= rl.maxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.maxRequestsPerDay), Used: int64(usage.requestsToday), Resets: resets}
	}
	if rl.maxDataPerDay > 0 && usage.dataToday+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.maxDataPerDay, Used: usage.dataToday, Resets: resets}
	}

	if usage.limiter != nil {
		res := usage.limiter.ReserveN(now, 1)
		if delay := res.DelayFrom(now); delay > 0 {
			res.CancelAt(now)
			return &RateLimitError{Type: "rate", Limit: rl.requestsPerMinute, RetryAfter: delay}
		}
	}

	usage.requestsToday++
	usage.dataToday += dataSize
	return nil
}

func (rl *RateLimiter) usage(clientID string, now time.Time) *clientUsage {
	u, ok := rl.clients[clientID]
	if !ok {
		u = &clientUsage{dayStart: now}
		if rl.requestsPerMinute > 0 {
			u.limiter = rate.NewLimiter(rate.Limit(float64(rl.requestsPerMinute)/60), rl.burst)
		}
		rl.clients[clientID] = u
	}
	return u
}

func sameDay(a, b time.Time) bool {
	y0, m0, d0 := a.Date()
	y1, m1, d1 := b.Date()
	return y0 == y1 && m0 == m1 && d0 == d1
}

// GetUsage returns current usage statistics for a client.
func (rl *RateLimiter) GetUsage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if u, ok := rl.clients[clientID]; ok {
		return Usage{RequestsToday: u.requestsToday, DataToday: u.dataToday}
	}
	return Usage{}
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit: %d/min, retry after: %ds)",
		e.Limit, int(math.Ceil(e.RetryAfter.Seconds())))
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
