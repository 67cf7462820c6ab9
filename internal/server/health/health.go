// Package health tracks service readiness and serves the liveness and
// readiness probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artelie/backend/internal/logging"
	"github.com/gin-gonic/gin"
)

// Manager holds the current readiness and notifies subscribers on change.
type Manager struct {
	ready     atomic.Bool
	mu        sync.Mutex
	listeners []func(ready bool)
}

func NewManager(initialReady bool) *Manager {
	m := &Manager{}
	m.ready.Store(initialReady)
	return m
}

// OnChange registers fn, called with the new state whenever it flips.
func (m *Manager) OnChange(fn func(ready bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) SetReady(ready bool) {
	if m.ready.Swap(ready) == ready {
		return
	}
	m.mu.Lock()
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(ready)
	}
}

func (m *Manager) IsReady() bool {
	return m.ready.Load()
}

// Watch probes check every interval until ctx is done and records the
// result as readiness.
func (m *Manager) Watch(ctx context.Context, interval time.Duration, check func(context.Context) error, l logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		err := check(probeCtx)
		cancel()

		if err != nil && m.IsReady() {
			l.Warn(ctx, "readiness check failed", "error", err)
		}
		m.SetReady(err == nil)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.IsReady() {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
	}
}
