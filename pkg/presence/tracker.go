// Package presence tracks which users are connected to which channel.
// Entries expire when no heartbeat arrives within the TTL.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

const DefaultTTL = 60 * time.Second

// Presence is one user's state on a channel
type Presence struct {
	UserID   uint              `json:"user_id"`
	Meta     map[string]string `json:"meta,omitempty"`
	JoinedAt time.Time         `json:"joined_at"`
	LastSeen time.Time         `json:"last_seen"`
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker is safe for concurrent use
type Tracker struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	channels map[string]map[uint]*Presence
}

func NewTracker(ttl time.Duration, opts ...Option) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := &Tracker{
		ttl:      ttl,
		now:      time.Now,
		channels: make(map[string]map[uint]*Presence),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) expired(p *Presence, now time.Time) bool {
	return now.Sub(p.LastSeen) > t.ttl
}

// Track records a heartbeat for userID on channel. It returns true when the
// user was not present before (or their previous entry had expired).
func (t *Tracker) Track(channel string, userID uint, meta map[string]string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.channels[channel]
	if !ok {
		members = make(map[uint]*Presence)
		t.channels[channel] = members
	}

	if p, ok := members[userID]; ok && !t.expired(p, now) {
		p.LastSeen = now
		if meta != nil {
			p.Meta = copyMeta(meta)
		}
		return false
	}

	members[userID] = &Presence{UserID: userID, Meta: copyMeta(meta), JoinedAt: now, LastSeen: now}
	return true
}

// Untrack removes userID from channel and reports whether it was present
func (t *Tracker) Untrack(channel string, userID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.channels[channel]
	if !ok {
		return false
	}
	p, ok := members[userID]
	if !ok {
		return false
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(t.channels, channel)
	}
	return !t.expired(p, t.now())
}

// State returns the live members of channel ordered by user id
func (t *Tracker) State(channel string) []Presence {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Presence, 0, len(t.channels[channel]))
	for _, p := range t.channels[channel] {
		if t.expired(p, now) {
			continue
		}
		cp := *p
		cp.Meta = copyMeta(p.Meta)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// IsOnline reports whether userID is live on any channel
func (t *Tracker) IsOnline(userID uint) bool {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, members := range t.channels {
		if p, ok := members[userID]; ok && !t.expired(p, now) {
			return true
		}
	}
	return false
}

// OnlineCount returns the number of distinct live users
func (t *Tracker) OnlineCount() int {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[uint]struct{})
	for _, members := range t.channels {
		for id, p := range members {
			if !t.expired(p, now) {
				seen[id] = struct{}{}
			}
		}
	}
	return len(seen)
}

// Sweep drops expired entries and returns how many were removed
func (t *Tracker) Sweep() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for channel, members := range t.channels {
		for id, p := range members {
			if t.expired(p, now) {
				delete(members, id)
				removed++
			}
		}
		if len(members) == 0 {
			delete(t.channels, channel)
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = t.ttl / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

func copyMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
