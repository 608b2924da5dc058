// Package checkpoint holds the latest observed chain checkpoint cursor
// and fans out each advance to subscribers. The checkpoint stream
// itself (a gRPC subscription, in a real deployment) is an upstream
// concern this package does not own; it only tracks the cursor and
// broadcasts updates to whoever is watching.
package checkpoint

import (
	"context"
	"sync"

	"github.com/Numi2/sui-numi/pkg/observability"
)

// Update is one checkpoint advance: the reconciliation cursor and,
// when available, the checkpoint payload that produced it.
type Update struct {
	Cursor     uint64
	Checkpoint interface{}
}

// subscriberBuffer is how many updates a lagging subscriber may queue
// before further updates to it are dropped rather than blocking the
// broadcaster.
const subscriberBuffer = 64

// State holds the latest cursor and the set of subscriber channels that
// receive every subsequent update.
type State struct {
	logger *observability.Logger

	mu          sync.RWMutex
	lastCursor  *uint64
	subscribers map[chan Update]struct{}
}

// New constructs an empty State with no observed cursor yet.
func New(logger *observability.Logger) *State {
	return &State{
		logger:      logger,
		subscribers: make(map[chan Update]struct{}),
	}
}

// LastCursor returns the most recently observed cursor, if any.
func (s *State) LastCursor() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastCursor == nil {
		return 0, false
	}
	return *s.lastCursor, true
}

// Subscribe registers a new subscriber and returns a receive-only
// channel of future updates, plus an unsubscribe function the caller
// must call when done listening.
func (s *State) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Advance records a new cursor and broadcasts it to every subscriber.
// Subscribers whose buffer is full are skipped for this update rather
// than blocking the broadcaster; this matches a best-effort broadcast
// channel, not a guaranteed-delivery queue.
func (s *State) Advance(ctx context.Context, update Update) {
	s.mu.Lock()
	s.lastCursor = &update.Cursor
	subs := make([]chan Update, 0, len(s.subscribers))
	for ch := range s.subscribers {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- update:
		default:
			if s.logger != nil {
				s.logger.Debug(ctx, "checkpoint subscriber lagging, dropping update", map[string]interface{}{
					"cursor": update.Cursor,
				})
			}
		}
	}

	if s.logger != nil {
		s.logger.Debug(ctx, "checkpoint advanced", map[string]interface{}{"cursor": update.Cursor})
	}
}

// SubscriberCount reports how many subscribers are currently registered,
// for observability.
func (s *State) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
