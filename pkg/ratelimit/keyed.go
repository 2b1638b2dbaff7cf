// Package ratelimit holds token bucket limiters keyed by caller.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

// Decision is the outcome of Allow
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed keeps one limiter per key and forgets keys idle for longer than the TTL
type Keyed struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	now       func() time.Time
	lastPrune time.Time
	limiters  map[string]*entry
}

// NewKeyed allows perMinute events per key with the given burst
func NewKeyed(perMinute, burst int) *Keyed {
	return &Keyed{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		idleTTL:  defaultIdleTTL,
		now:      time.Now,
		limiters: make(map[string]*entry),
	}
}

// Allow consumes one token for key
func (k *Keyed) Allow(key string) Decision {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	if now.Sub(k.lastPrune) > k.idleTTL {
		k.prune(now)
	}

	e, ok := k.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.limiters[key] = e
	}
	e.lastSeen = now

	d := Decision{Limit: k.burst}
	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return d
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		d.RetryAfter = delay
		return d
	}
	d.Allowed = true
	if remaining := int(e.limiter.TokensAt(now)); remaining > 0 {
		d.Remaining = remaining
	}
	return d
}

// Len returns the number of tracked keys
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

func (k *Keyed) prune(now time.Time) {
	for key, e := range k.limiters {
		if now.Sub(e.lastSeen) > k.idleTTL {
			delete(k.limiters, key)
		}
	}
	k.lastPrune = now
}
