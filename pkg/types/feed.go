package types

import "context"

// Change operations delivered by a Feed. ChangeResync carries no rows; it
// follows a reconnect, after which earlier changes may have been missed.
const (
	ChangeInsert = "insert"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
	ChangeResync = "resync"
)

// ChangeEvent is one row-level change pushed by the backend.
// Old is nil for inserts and may be partial for updates.
type ChangeEvent struct {
	Table string `json:"table"`
	Op    string `json:"op"`
	Old   Row    `json:"old,omitempty"`
	New   Row    `json:"new,omitempty"`
}

// Feed is a realtime change-notification channel.
type Feed interface {
	// Subscribe starts delivering changes on table that satisfy filter (an
	// empty filter delivers every change). The subscription ends when ctx is
	// done or Close is called; its Events channel is then closed.
	Subscribe(ctx context.Context, table string, filter []Predicate) (Subscription, error)
}

// Subscription is a live feed subscription. Delivery order is not
// guaranteed.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// MatchPredicates reports whether row satisfies every predicate.
func MatchPredicates(filter []Predicate, row Row) bool {
	return Query{Predicates: filter}.Match(row)
}
