package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	reset time.Time
}

// Memory is a fixed-window limiter for a single process. Expired windows are
// swept at most once per window length.
type Memory struct {
	mu        sync.Mutex
	limit     int
	length    time.Duration
	windows   map[string]*window
	lastSweep time.Time
}

func NewMemory(limit int, length time.Duration) *Memory {
	return &Memory{
		limit:   limit,
		length:  length,
		windows: map[string]*window{},
	}
}

func (m *Memory) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) >= m.length {
		for k, w := range m.windows {
			if !now.Before(w.reset) {
				delete(m.windows, k)
			}
		}
		m.lastSweep = now
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.reset) {
		m.windows[key] = &window{count: 1, reset: now.Add(m.length)}
		return true, 0, nil
	}

	if w.count >= m.limit {
		return false, w.reset.Sub(now), nil
	}
	w.count++
	return true, 0, nil
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
