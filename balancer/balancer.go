// Package balancer selects which node a query should be routed to among a
// cluster's currently available nodes.
package balancer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Balancer picks one token out of the supplied available set. Available
// is passed on every call since cluster membership changes over the
// connection's lifetime; implementations must not retain it.
type Balancer interface {
	Pick(available []string) (string, bool)
	// Report feeds back the observed latency of a completed request, for
	// balancers that use it (LatencyAware). RoundRobin ignores it.
	Report(token string, latency time.Duration)
	Name() string
}

// RoundRobin cycles through the available tokens in the order presented,
// using an atomically incremented counter so concurrent Pick calls don't
// need a lock.
type RoundRobin struct {
	counter uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (b *RoundRobin) Name() string { return "round_robin" }

func (b *RoundRobin) Pick(available []string) (string, bool) {
	if len(available) == 0 {
		return "", false
	}
	n := atomic.AddUint64(&b.counter, 1)
	return available[int(n-1)%len(available)], true
}

func (b *RoundRobin) Report(string, time.Duration) {}

// ewmaAlpha weights the most recent sample against the running average.
// Higher values make the estimate track recent latency more closely.
const ewmaAlpha = 0.2

// LatencyAware picks the available token with the lowest observed
// exponentially-weighted moving average round-trip latency, falling back
// to round-robin for tokens it has no samples for yet.
type LatencyAware struct {
	mu      sync.Mutex
	ewma    map[string]float64 // nanoseconds
	fresh   map[string]bool
	fallback RoundRobin
}

func NewLatencyAware() *LatencyAware {
	return &LatencyAware{
		ewma:  make(map[string]float64),
		fresh: make(map[string]bool),
	}
}

func (b *LatencyAware) Name() string { return "latency_aware" }

func (b *LatencyAware) Report(token string, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.fresh[token] {
		b.ewma[token] = float64(latency)
		b.fresh[token] = true
		return
	}
	b.ewma[token] = ewmaAlpha*float64(latency) + (1-ewmaAlpha)*b.ewma[token]
}

func (b *LatencyAware) Pick(available []string) (string, bool) {
	if len(available) == 0 {
		return "", false
	}

	b.mu.Lock()
	var best string
	bestLatency := -1.0
	var unsampled []string
	for _, tok := range available {
		if !b.fresh[tok] {
			unsampled = append(unsampled, tok)
			continue
		}
		lat := b.ewma[tok]
		if bestLatency < 0 || lat < bestLatency {
			best = tok
			bestLatency = lat
		}
	}
	b.mu.Unlock()

	// Prefer an unsampled node so it gets at least one latency reading
	// before falling back to pure latency ranking.
	if len(unsampled) > 0 {
		return b.fallback.Pick(unsampled)
	}
	if bestLatency < 0 {
		return b.fallback.Pick(available)
	}
	return best, true
}
