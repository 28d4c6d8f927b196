// Package ratelimit implements fixed-window admission control keyed by
// client identifier. State is process-scoped; multiple instances of the
// service will each count independently, which is acceptable for a
// coarse abuse guard.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxRequests = 20
	DefaultWindow      = 15 * time.Minute

	sweepInterval = 5 * time.Minute
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

type clientWindow struct {
	windowStart time.Time
	count       int
}

// Limiter tracks per-client request counts within a fixed window.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	max     int
	window  time.Duration
	now     func() time.Time
}

// New constructs a limiter. Non-positive arguments fall back to the
// defaults.
func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		clients: make(map[string]*clientWindow),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Admit records a request from clientID and decides whether to allow it.
// The first request from an identifier, or the first after its window
// elapses, resets the window and is always allowed.
func (l *Limiter) Admit(clientID string) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cw, ok := l.clients[clientID]
	if !ok || now.Sub(cw.windowStart) > l.window {
		l.clients[clientID] = &clientWindow{windowStart: now, count: 1}
		return Decision{Allowed: true, Remaining: l.max - 1}
	}

	cw.count++
	if cw.count <= l.max {
		return Decision{Allowed: true, Remaining: l.max - cw.count}
	}

	retryAfter := int(math.Ceil(l.window.Seconds() - now.Sub(cw.windowStart).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfterSeconds: retryAfter}
}

// Reconfigure swaps the limit parameters. Existing windows keep their
// counts; only the thresholds change.
func (l *Limiter) Reconfigure(max int, window time.Duration) {
	if l == nil || max <= 0 || window <= 0 {
		return
	}
	l.mu.Lock()
	l.max = max
	l.window = window
	l.mu.Unlock()
}

// Sweep evicts windows that fully elapsed and returns how many were
// removed.
func (l *Limiter) Sweep() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for id, cw := range l.clients {
		if now.Sub(cw.windowStart) > l.window {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// StartJanitor launches a background sweep loop that stops when ctx is
// cancelled.
func (l *Limiter) StartJanitor(ctx context.Context) {
	if l == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					log.Debugf("rate limiter: swept %d stale windows", n)
				}
			}
		}
	}()
}
