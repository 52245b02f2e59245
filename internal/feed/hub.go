// Package feed is an in-process change feed. Local backends publish every
// committed change to a Hub, which fans it out to matching subscriptions the
// same way the hosted realtime service does.
package feed

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// DefaultBuffer is the number of events a subscription queues before it
// falls back to a resync.
const DefaultBuffer = 64

// Hub implements types.Feed and the sqlstore publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
	log    zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[*subscription]struct{}),
		buffer: DefaultBuffer,
		log:    log,
	}
}

// Subscribe implements types.Feed.
func (h *Hub) Subscribe(ctx context.Context, table string, filter []types.Predicate) (types.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &subscription{
		hub:    h,
		table:  table,
		filter: filter,
		events: make(chan types.ChangeEvent, h.buffer+1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.log.Debug().Str("table", table).Int("subscriptions", n).Msg("subscribed")

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Publish delivers ev to every subscription on its table whose filter
// matches the new row, or the old row for deletes. A subscriber whose buffer
// is full misses the event and is sent a resync instead.
func (h *Hub) Publish(ev types.ChangeEvent) {
	row := ev.New
	if ev.Op == types.ChangeDelete {
		row = ev.Old
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.table != ev.Table || !types.MatchPredicates(sub.filter, row) {
			continue
		}
		if !sub.offer(ev, h.buffer) {
			h.log.Warn().Str("table", ev.Table).Str("op", ev.Op).Msg("subscriber buffer full, event dropped")
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

type subscription struct {
	hub    *Hub
	table  string
	filter []types.Predicate
	events chan types.ChangeEvent
	done   chan struct{}
	once   sync.Once
	sendMu sync.Mutex
}

// offer queues ev if fewer than limit events are waiting. Otherwise it puts
// a resync in the spare slot, unless the spare already holds one, and
// reports false. A full channel always ends in an unread resync, which
// covers every event dropped before it is read.
func (s *subscription) offer(ev types.ChangeEvent, limit int) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if len(s.events) < limit {
		s.events <- ev
		return true
	}
	select {
	case s.events <- types.ChangeEvent{Table: s.table, Op: types.ChangeResync}:
	default:
	}
	return false
}

func (s *subscription) Events() <-chan types.ChangeEvent { return s.events }

// Close removes the subscription and closes its channel. Publish holds the
// hub's read lock while sending, so removal under the write lock guarantees
// no send races the close.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
		close(s.events)
	})
	return nil
}
