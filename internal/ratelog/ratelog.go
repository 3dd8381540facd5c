// Package ratelog rate-limits repeated warnings keyed by an arbitrary ID,
// so a flood of sends to one stale session or player doesn't flood the log.
// Spec §4.2 requires at least 2s between repeat warnings for the same ID,
// with a soft cap of 5000 distinct tracked IDs.
package ratelog

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultInterval = 2 * time.Second
	defaultSoftCap  = 5000
)

// Limiter tracks last-warned times per ID.
type Limiter struct {
	mu       sync.Mutex
	lastWarn map[string]time.Time
	interval time.Duration
	softCap  int
}

// New creates a Limiter with the spec's default interval and soft cap.
func New() *Limiter {
	return &Limiter{
		lastWarn: make(map[string]time.Time),
		interval: defaultInterval,
		softCap:  defaultSoftCap,
	}
}

// Warn logs fields at Warn level for id, unless id was already warned
// within the interval. When an allowed warn pushes the tracked-ID set past
// the soft cap, the oldest 10% of entries (at least one) are evicted in
// that same call.
func (l *Limiter) Warn(id string, fields logrus.Fields, message string) {
	l.mu.Lock()
	now := time.Now()
	last, seen := l.lastWarn[id]
	allowed := !seen || now.Sub(last) >= l.interval
	if allowed {
		l.lastWarn[id] = now
		if len(l.lastWarn) > l.softCap {
			l.evictOldestLocked()
		}
	}
	l.mu.Unlock()

	if allowed {
		logrus.WithFields(fields).Warn(message)
	}
}

// evictOldestLocked drops roughly 10% of the tracked set's oldest entries.
// Must be called with l.mu held.
func (l *Limiter) evictOldestLocked() {
	type idTime struct {
		id string
		t  time.Time
	}
	all := make([]idTime, 0, len(l.lastWarn))
	for id, t := range l.lastWarn {
		all = append(all, idTime{id, t})
	}
	toEvict := len(all) / 10
	if toEvict < 1 {
		toEvict = 1
	}
	for i := 0; i < toEvict && i < len(all); i++ {
		oldestIdx := i
		for j := i + 1; j < len(all); j++ {
			if all[j].t.Before(all[oldestIdx].t) {
				oldestIdx = j
			}
		}
		all[i], all[oldestIdx] = all[oldestIdx], all[i]
		delete(l.lastWarn, all[i].id)
	}
}
