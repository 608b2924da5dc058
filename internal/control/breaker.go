package control

import (
	"sync"
	"time"
)

const (
	breakerMaxWindow    = 100
	breakerThreshold    = 0.5
	breakerMinSamples   = 20
	breakerOpenCooldown = 5 * time.Second
)

type breakerState struct {
	window    []bool // true = failure; ring buffer, oldest at index 0 logically
	openUntil time.Time
	hasOpen   bool
}

// Breakers holds one sliding-window circuit breaker per route class. A
// class opens once it has accumulated at least breakerMinSamples outcomes
// and its failure rate is at or above breakerThreshold; it stays open for
// a fixed cooldown with no half-open probing, matching the Rust original.
type Breakers struct {
	mu    sync.Mutex
	state map[string]*breakerState
}

func NewBreakers() *Breakers {
	return &Breakers{state: make(map[string]*breakerState)}
}

func (b *Breakers) get(class string) *breakerState {
	s, ok := b.state[class]
	if !ok {
		s = &breakerState{window: make([]bool, 0, breakerMaxWindow)}
		b.state[class] = s
	}
	return s
}

// IsOpen reports whether class's breaker is currently open. A breaker
// whose cooldown has elapsed transitions back to closed as a side effect,
// with no half-open trial state.
func (b *Breakers) IsOpen(class string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.get(class)
	if s.hasOpen {
		if time.Now().Before(s.openUntil) {
			return true
		}
		s.hasOpen = false
	}
	return false
}

// RecordSuccess records a successful outcome for class.
func (b *Breakers) RecordSuccess(class string) {
	b.record(class, false)
}

// RecordFailure records a failed outcome for class.
func (b *Breakers) RecordFailure(class string) {
	b.record(class, true)
}

func (b *Breakers) record(class string, failure bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.get(class)
	if len(s.window) == breakerMaxWindow {
		s.window = append(s.window[:0], s.window[1:]...)
	}
	s.window = append(s.window, failure)

	samples := len(s.window)
	if samples >= breakerMinSamples {
		fails := 0
		for _, f := range s.window {
			if f {
				fails++
			}
		}
		rate := float64(fails) / float64(samples)
		if rate >= breakerThreshold && !s.hasOpen {
			s.hasOpen = true
			s.openUntil = time.Now().Add(breakerOpenCooldown)
		}
	}
}
