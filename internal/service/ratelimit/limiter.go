// Package ratelimit provides per-client admission control with two
// independent fixed windows (per minute, per hour). Fixed windows trade a
// small burst at the boundary for O(1) memory and check cost per client,
// which is enough for coarse abuse prevention.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	minuteSeconds = 60
	hourSeconds   = 3600

	shardCount = 16

	// Buckets untouched for this long are dropped by Prune.
	bucketIdleAfter = time.Hour
)

// Decision is the outcome of an admission check. When OK is false,
// RetryAfter holds the time remaining until the tripped window resets.
type Decision struct {
	OK         bool
	RetryAfter time.Duration
}

// bucket tracks the two window counters for one client address.
type bucket struct {
	minuteIdx   int64
	minuteCount int
	hourIdx     int64
	hourCount   int
	lastSeen    time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter admits requests per client address. Safe for concurrent use;
// checks for different addresses on different shards never contend.
type Limiter struct {
	perMinute int
	perHour   int
	now       func() time.Time
	shards    [shardCount]*shard
}

// New builds a limiter. now may be nil, in which case time.Now is used;
// tests inject a controllable clock.
func New(perMinute, perHour int, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	l := &Limiter{perMinute: perMinute, perHour: perHour, now: now}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return l
}

func (l *Limiter) shard(addr string) *shard {
	h := fnv.New32a()
	h.Write([]byte(addr))
	return l.shards[h.Sum32()%shardCount]
}

// Allow performs the check-and-increment for addr as one critical section,
// so concurrent requests from the same client cannot overshoot the limits.
func (l *Limiter) Allow(addr string) Decision {
	now := l.now()
	sh := l.shard(addr)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[addr]
	if !ok {
		b = &bucket{}
		sh.buckets[addr] = b
	}
	b.lastSeen = now

	unix := now.Unix()
	if idx := unix / minuteSeconds; idx != b.minuteIdx {
		b.minuteIdx = idx
		b.minuteCount = 0
	}
	if idx := unix / hourSeconds; idx != b.hourIdx {
		b.hourIdx = idx
		b.hourCount = 0
	}

	if b.minuteCount >= l.perMinute {
		return Decision{RetryAfter: untilBoundary(unix, minuteSeconds)}
	}
	if b.hourCount >= l.perHour {
		return Decision{RetryAfter: untilBoundary(unix, hourSeconds)}
	}

	b.minuteCount++
	b.hourCount++
	return Decision{OK: true}
}

// Prune discards buckets idle past bucketIdleAfter to bound memory.
// It returns the number of buckets removed.
func (l *Limiter) Prune(now time.Time) int {
	cutoff := now.Add(-bucketIdleAfter)
	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for addr, b := range sh.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(sh.buckets, addr)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func untilBoundary(unix, windowSeconds int64) time.Duration {
	next := (unix/windowSeconds + 1) * windowSeconds
	return time.Duration(next-unix) * time.Second
}
