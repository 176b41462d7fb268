// Package ratelimit bounds how fast a single connection may push frames into a
// room.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time so buckets can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// One token is stored as 1e9 micro-units so that a refill rate in tokens/sec
// becomes units/ns and no float rounding creeps in.
const unitsPerToken int64 = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket is a token bucket that starts full and refills at a fixed
// integer rate.
//
// A nil *TokenBucket allows everything.
type TokenBucket struct {
	mu    sync.Mutex
	clock Clock

	capacity int64 // units
	rate     int64 // tokens/sec == units/ns

	available int64 // units
	last      time.Time
}

// NewTokenBucket returns a bucket holding up to burst tokens and refilling at
// perSecond tokens per second.
func NewTokenBucket(clock Clock, burst, perSecond int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if burst < 0 {
		burst = 0
	}
	if perSecond < 0 {
		perSecond = 0
	}
	capacity := tokensToUnits(burst)
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		rate:      perSecond,
		available: capacity,
		last:      clock.Now(),
	}
}

// PerSecond returns a bucket allowing n frames per second with a burst of n,
// or nil (unlimited) when n <= 0.
func PerSecond(clock Clock, n int) *TokenBucket {
	if n <= 0 {
		return nil
	}
	return NewTokenBucket(clock, int64(n), int64(n))
}

// Allow consumes tokens if they are available. tokens <= 0 always succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if b == nil || tokens <= 0 {
		return true
	}
	cost := tokensToUnits(tokens)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.available < cost {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.last)
	b.last = now
	if elapsed <= 0 || b.rate == 0 || b.available >= b.capacity {
		return
	}

	missing := b.capacity - b.available
	// elapsed*rate may overflow for long idle periods; anything past the time
	// needed to fill the bucket is irrelevant anyway.
	if elapsed.Nanoseconds() >= missing/b.rate+1 {
		b.available = b.capacity
		return
	}
	b.available += elapsed.Nanoseconds() * b.rate
	if b.available > b.capacity {
		b.available = b.capacity
	}
}

func tokensToUnits(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/unitsPerToken {
		return maxInt64
	}
	return tokens * unitsPerToken
}
