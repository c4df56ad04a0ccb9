// Package throttle implements the per-kind emission cooldowns that keep
// a burst of detections from turning into a burst of persisted events.
package throttle

import (
	"sync"
	"time"

	"github.com/sentrylabs/facewatch/internal/event"
)

// Gate tracks the last accepted emission per event kind and refuses
// further emissions until that kind's cooldown has fully elapsed.
//
// The gate deliberately does not advance its own clocks: callers record
// an emission only after the event has actually been accepted downstream,
// so a refused or deferred event leaves the cooldown untouched and the
// next attempt is judged against the previous accepted one.
type Gate struct {
	mu        sync.Mutex
	cooldowns map[event.Kind]time.Duration
	last      map[event.Kind]time.Time
}

// NewGate builds a gate with the given per-kind cooldowns. Kinds absent
// from the map are never throttled.
func NewGate(cooldowns map[event.Kind]time.Duration) *Gate {
	cd := make(map[event.Kind]time.Duration, len(cooldowns))
	for k, d := range cooldowns {
		cd[k] = d
	}
	return &Gate{
		cooldowns: cd,
		last:      make(map[event.Kind]time.Time),
	}
}

// CanEmit reports whether an event of the given kind may be emitted at
// now. An emission is allowed only when strictly more than the kind's
// cooldown has passed since the last recorded emission; a kind that has
// never emitted is always allowed.
func (g *Gate) CanEmit(kind event.Kind, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	cd, throttled := g.cooldowns[kind]
	if !throttled {
		return true
	}
	last, ok := g.last[kind]
	if !ok {
		return true
	}
	return now.Sub(last) > cd
}

// RecordEmit marks an accepted emission of the given kind at now.
// Kinds are independent: recording motion never delays face.
func (g *Gate) RecordEmit(kind event.Kind, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[kind] = now
}

// Remaining returns how long until the given kind may emit again, or
// zero when it may emit now.
func (g *Gate) Remaining(kind event.Kind, now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	cd, throttled := g.cooldowns[kind]
	if !throttled {
		return 0
	}
	last, ok := g.last[kind]
	if !ok {
		return 0
	}
	if rem := cd - now.Sub(last); rem > 0 {
		return rem
	}
	return 0
}
