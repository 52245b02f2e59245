package types

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// Order statuses. An order moves forward through these until it is
// delivered or cancelled.
const (
	OrderPending        OrderStatus = "pending"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderPreparing      OrderStatus = "preparing"
	OrderReady          OrderStatus = "ready"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// orderTransitions is the flat transition table. Terminal statuses map to
// nothing.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderConfirmed, OrderCancelled},
	OrderConfirmed:      {OrderPreparing, OrderCancelled},
	OrderPreparing:      {OrderReady, OrderCancelled},
	OrderReady:          {OrderOutForDelivery, OrderCancelled},
	OrderOutForDelivery: {OrderDelivered},
	OrderDelivered:      nil,
	OrderCancelled:      nil,
}

// deliveryProgress maps a status to the percentage shown on tracking views.
var deliveryProgress = map[OrderStatus]int{
	OrderPending:        10,
	OrderConfirmed:      25,
	OrderPreparing:      50,
	OrderReady:          70,
	OrderOutForDelivery: 85,
	OrderDelivered:      100,
	OrderCancelled:      0,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// NextStatuses returns the statuses reachable from s in one step.
func (s OrderStatus) NextStatuses() []OrderStatus {
	next := orderTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether s may move to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// DeliveryProgress returns the tracking percentage for s; unknown statuses
// report 0.
func DeliveryProgress(s OrderStatus) int {
	return deliveryProgress[s]
}

// OrderItem is one line of an order. Items are stored as a JSON column.
type OrderItem struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

// Order is a customer order placed with a restaurant.
type Order struct {
	ID              string      `json:"id,omitempty"`
	RestaurantID    string      `json:"restaurant_id" validate:"required"`
	CustomerID      string      `json:"customer_id" validate:"required"`
	Status          OrderStatus `json:"status" validate:"required"`
	Items           []OrderItem `json:"items"`
	Subtotal        float64     `json:"subtotal" validate:"gte=0"`
	DeliveryFee     float64     `json:"delivery_fee" validate:"gte=0"`
	Total           float64     `json:"total" validate:"gte=0"`
	DeliveryAddress string      `json:"delivery_address"`
	Notes           string      `json:"notes"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// RecordID implements Record.
func (o Order) RecordID() string { return o.ID }

// Transition moves the order to next and stamps UpdatedAt with at.
// Returns ErrInvalidStatus if next is unknown and ErrInvalidTransition if the
// table does not allow the move. Setting the current status is a no-op.
func (o *Order) Transition(next OrderStatus, at time.Time) error {
	if !next.Valid() {
		return ErrInvalidStatus
	}
	if o.Status == next {
		return nil
	}
	if !o.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}
