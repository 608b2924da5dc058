// Package ranker tracks per-endpoint effects-latency telemetry with an
// EWMA and selects the best endpoint for the next submission.
package ranker

import (
	"sort"
	"sync"
	"time"
)

const (
	defaultAlpha            = 0.2
	defaultMaxStalenessSecs = 300
	defaultMinObservations  = 5
	initialEWMAMs           = 500.0
)

type stats struct {
	effectsEWMAMs float64
	observations  uint64
	lastUpdate    time.Time
	healthy       bool
}

// Ranker selects the endpoint with the lowest observed effects latency,
// preferring endpoints with enough recent observations to be trustworthy.
// Not a general load balancer: it has no notion of capacity or concurrent
// assignment, only "which endpoint has recently been fastest."
type Ranker struct {
	alpha            float64
	maxStalenessSecs uint64
	minObservations  uint64

	mu        sync.RWMutex
	endpoints map[string]*stats
}

// New constructs a Ranker. Passing zero values selects the defaults used
// by the original validator selector (alpha=0.2, 300s staleness, 5
// observations).
func New(alpha float64, maxStalenessSecs, minObservations uint64) *Ranker {
	if alpha <= 0 {
		alpha = defaultAlpha
	}
	if maxStalenessSecs == 0 {
		maxStalenessSecs = defaultMaxStalenessSecs
	}
	if minObservations == 0 {
		minObservations = defaultMinObservations
	}
	return &Ranker{
		alpha:            alpha,
		maxStalenessSecs: maxStalenessSecs,
		minObservations:  minObservations,
		endpoints:        make(map[string]*stats),
	}
}

// Register adds endpoint with its initial 500ms estimate, if not already
// present.
func (r *Ranker) Register(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[endpoint]; !ok {
		r.endpoints[endpoint] = &stats{effectsEWMAMs: initialEWMAMs, healthy: true}
	}
}

// RecordEffectsTime updates endpoint's EWMA with a new observed effects
// time in milliseconds. The first observation replaces the initial
// estimate outright rather than blending into it.
func (r *Ranker) RecordEffectsTime(endpoint string, effectsTimeMs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.endpoints[endpoint]
	if !ok {
		return
	}
	if s.observations == 0 {
		s.effectsEWMAMs = effectsTimeMs
	} else {
		s.effectsEWMAMs = r.alpha*effectsTimeMs + (1-r.alpha)*s.effectsEWMAMs
	}
	s.observations++
	s.lastUpdate = time.Now()
}

// MarkUnhealthy excludes endpoint from selection until MarkHealthy.
func (r *Ranker) MarkUnhealthy(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.endpoints[endpoint]; ok {
		s.healthy = false
	}
}

// MarkHealthy re-includes endpoint in selection.
func (r *Ranker) MarkHealthy(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.endpoints[endpoint]; ok {
		s.healthy = true
	}
}

// SelectBest returns the healthy endpoint with the lowest EWMA among those
// with enough fresh observations. If none qualify, it falls back to the
// fastest healthy endpoint regardless of observation count or staleness.
// Returns "", false if no endpoint is healthy.
func (r *Ranker) SelectBest() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	type candidate struct {
		endpoint string
		s        *stats
	}
	var eligible, healthy []candidate

	for ep, s := range r.endpoints {
		if !s.healthy {
			continue
		}
		healthy = append(healthy, candidate{ep, s})
		if s.observations >= r.minObservations && uint64(now.Sub(s.lastUpdate).Seconds()) < r.maxStalenessSecs {
			eligible = append(eligible, candidate{ep, s})
		}
	}

	pool := eligible
	if len(pool) == 0 {
		pool = healthy
	}
	if len(pool) == 0 {
		return "", false
	}

	sort.Slice(pool, func(i, j int) bool { return pool[i].s.effectsEWMAMs < pool[j].s.effectsEWMAMs })
	return pool[0].endpoint, true
}

// EndpointStats is a read-only snapshot of one endpoint's tracked state.
type EndpointStats struct {
	EffectsEWMAMs float64
	Observations  uint64
	Healthy       bool
}

// Stats returns a snapshot of every registered endpoint's current state.
func (r *Ranker) Stats() map[string]EndpointStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]EndpointStats, len(r.endpoints))
	for ep, s := range r.endpoints {
		out[ep] = EndpointStats{EffectsEWMAMs: s.effectsEWMAMs, Observations: s.observations, Healthy: s.healthy}
	}
	return out
}
