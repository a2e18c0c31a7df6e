package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"datatoken/internal/domain"
)

const defaultMaxKeys = 10000

var ErrCapacity = errors.New("rate limiter capacity exceeded")

type window struct {
	count int
	ends  time.Time
}

// Memory counts requests per key in fixed windows inside the process.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
	maxKeys int
}

func NewMemory(now func() time.Time, maxKeys int) *Memory {
	if now == nil {
		now = time.Now
	}
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	return &Memory{now: now, windows: make(map[string]*window), maxKeys: maxKeys}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, span time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || now.After(w.ends) {
		if !ok && len(m.windows) >= m.maxKeys {
			m.evictExpired(now)
			if len(m.windows) >= m.maxKeys {
				return domain.RateLimitDecision{}, ErrCapacity
			}
		}
		w = &window{ends: now.Add(span)}
		m.windows[key] = w
	}

	decision := domain.RateLimitDecision{Limit: limit, ResetAt: w.ends}
	if w.count >= limit {
		return decision, nil
	}
	w.count++
	decision.Allowed = true
	decision.Remaining = limit - w.count
	return decision, nil
}

func (m *Memory) evictExpired(now time.Time) {
	for key, w := range m.windows {
		if now.After(w.ends) {
			delete(m.windows, key)
		}
	}
}

var _ domain.RateLimiter = (*Memory)(nil)
