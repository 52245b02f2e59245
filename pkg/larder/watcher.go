package larder

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/larder/internal/logging"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// NotificationKind says why an OrderWatcher notified.
type NotificationKind string

// Notification kinds.
const (
	NewOrder      NotificationKind = "new_order"
	StatusChanged NotificationKind = "status_changed"
)

// Notification describes an order change worth telling the operator about.
// Previous is set for StatusChanged.
type Notification struct {
	Kind     NotificationKind  `json:"kind"`
	Order    types.Order       `json:"order"`
	Previous types.OrderStatus `json:"previous,omitempty"`
}

// Notifier receives notifications. Notify is called from the watcher's
// goroutine and should not block for long.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) { f(n) }

// OrderWatcher turns order changes from the feed into notifications and
// cache invalidations. It never patches cached rows from event payloads.
type OrderWatcher struct {
	l        *Larder
	notifier Notifier
	log      zerolog.Logger

	mu           sync.Mutex
	restaurantID string
	sub          types.Subscription
	done         chan struct{}
}

// WatchOrders returns an idle watcher. Call Watch to start it. A nil
// notifier only invalidates.
func (l *Larder) WatchOrders(n Notifier) *OrderWatcher {
	if n == nil {
		n = NotifierFunc(func(Notification) {})
	}
	return &OrderWatcher{
		l:        l,
		notifier: n,
		log:      logging.Component(l.log, "watcher"),
	}
}

// Watch subscribes to the orders of restaurantID, or of every restaurant
// when it is empty. A running subscription for a different restaurant is
// torn down first; watching the same restaurant again is a no-op.
func (w *OrderWatcher) Watch(ctx context.Context, restaurantID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.liveLocked() && w.restaurantID == restaurantID {
		return nil
	}
	w.stopLocked()

	if w.l.feed == nil {
		return ErrUnsupported
	}
	var filter []types.Predicate
	if restaurantID != "" {
		filter = []types.Predicate{{Field: "restaurant_id", Op: types.OpEq, Value: restaurantID}}
	}
	sub, err := w.l.feed.Subscribe(ctx, types.TableOrders, filter)
	if err != nil {
		return err
	}
	w.restaurantID = restaurantID
	w.sub = sub
	w.done = make(chan struct{})
	go w.loop(sub, w.done)

	w.log.Info().Str("restaurant_id", restaurantID).Msg("watching orders")
	return nil
}

// RestaurantID returns the restaurant currently watched, or "" once the
// subscription has ended.
func (w *OrderWatcher) RestaurantID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.liveLocked() {
		return ""
	}
	return w.restaurantID
}

// liveLocked reports whether the subscription is still delivering. It ends
// on Close or when the context passed to Watch is done.
func (w *OrderWatcher) liveLocked() bool {
	if w.sub == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Close stops the watcher. It is safe to call more than once.
func (w *OrderWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopLocked()
}

func (w *OrderWatcher) stopLocked() error {
	if w.sub == nil {
		return nil
	}
	err := w.sub.Close()
	<-w.done
	w.sub, w.done, w.restaurantID = nil, nil, ""
	return err
}

func (w *OrderWatcher) loop(sub types.Subscription, done chan struct{}) {
	defer close(done)
	for ev := range sub.Events() {
		w.handle(ev)
	}
}

func (w *OrderWatcher) handle(ev types.ChangeEvent) {
	orders := w.l.Orders
	switch ev.Op {
	case types.ChangeInsert:
		orders.InvalidateLists()
		var o types.Order
		if err := ev.New.Decode(&o); err != nil {
			w.log.Warn().Err(err).Msg("undecodable order insert")
			return
		}
		w.notifier.Notify(Notification{Kind: NewOrder, Order: o})
	case types.ChangeUpdate:
		orders.InvalidateRecord(ev.New.ID())
		prev, _ := ev.Old["status"].(string)
		next, _ := ev.New["status"].(string)
		if prev == "" || prev == next {
			return
		}
		var o types.Order
		if err := ev.New.Decode(&o); err != nil {
			w.log.Warn().Err(err).Msg("undecodable order update")
			return
		}
		w.notifier.Notify(Notification{Kind: StatusChanged, Order: o, Previous: types.OrderStatus(prev)})
	case types.ChangeDelete:
		orders.InvalidateRecord(ev.Old.ID())
	default:
		w.log.Debug().Str("op", ev.Op).Msg("invalidating orders")
		orders.Invalidate()
	}
}
