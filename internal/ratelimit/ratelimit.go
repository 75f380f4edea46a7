package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket: tokens refill continuously at rate per
// second up to burst.
type Limiter struct {
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow consumes one token if available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now

	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// PerConn hands out one bucket per connection id. Entries are removed
// explicitly when the connection goes away, so the map tracks live
// connections exactly.
type PerConn struct {
	limiters map[string]*Limiter
	rate     float64
	burst    int
	mu       sync.Mutex
}

func NewPerConn(rate float64, burst int) *PerConn {
	return &PerConn{
		limiters: make(map[string]*Limiter),
		rate:     rate,
		burst:    burst,
	}
}

func (p *PerConn) Get(connID string) *Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[connID]
	if !ok {
		l = NewLimiter(p.rate, p.burst)
		p.limiters[connID] = l
	}
	return l
}

func (p *PerConn) Remove(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.limiters, connID)
}
