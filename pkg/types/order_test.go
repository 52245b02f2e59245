package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderTransition(t *testing.T) {
	tests := []struct {
		name       string
		initial    OrderStatus
		target     OrderStatus
		wantErr    error
		wantStatus OrderStatus
	}{
		{name: "pending to confirmed", initial: OrderPending, target: OrderConfirmed, wantStatus: OrderConfirmed},
		{name: "pending to cancelled", initial: OrderPending, target: OrderCancelled, wantStatus: OrderCancelled},
		{name: "confirmed to preparing", initial: OrderConfirmed, target: OrderPreparing, wantStatus: OrderPreparing},
		{name: "preparing to ready", initial: OrderPreparing, target: OrderReady, wantStatus: OrderReady},
		{name: "ready to out for delivery", initial: OrderReady, target: OrderOutForDelivery, wantStatus: OrderOutForDelivery},
		{name: "out for delivery to delivered", initial: OrderOutForDelivery, target: OrderDelivered, wantStatus: OrderDelivered},
		{name: "same status is a no-op", initial: OrderPreparing, target: OrderPreparing, wantStatus: OrderPreparing},
		{name: "skipping a step is rejected", initial: OrderPending, target: OrderDelivered, wantErr: ErrInvalidTransition},
		{name: "delivered is terminal", initial: OrderDelivered, target: OrderCancelled, wantErr: ErrInvalidTransition},
		{name: "out for delivery cannot cancel", initial: OrderOutForDelivery, target: OrderCancelled, wantErr: ErrInvalidTransition},
		{name: "unknown status rejected", initial: OrderPending, target: "lost", wantErr: ErrInvalidStatus},
	}

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Status: tt.initial}
			err := o.Transition(tt.target, at)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.initial, o.Status, "status must not change on error")
				assert.True(t, o.UpdatedAt.IsZero())
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, o.Status)
			if tt.initial == tt.target {
				assert.True(t, o.UpdatedAt.IsZero(), "no-op keeps the timestamp")
			} else {
				assert.Equal(t, at, o.UpdatedAt)
			}
		})
	}
}

func TestOrderStatusTable(t *testing.T) {
	assert.True(t, OrderDelivered.Terminal())
	assert.True(t, OrderCancelled.Terminal())
	assert.False(t, OrderPending.Terminal())
	assert.False(t, OrderStatus("lost").Terminal())
	assert.Equal(t, []OrderStatus{OrderConfirmed, OrderCancelled}, OrderPending.NextStatuses())

	next := OrderPending.NextStatuses()
	next[0] = OrderDelivered
	assert.Equal(t, OrderConfirmed, OrderPending.NextStatuses()[0], "NextStatuses returns a copy")
}

func TestDeliveryProgress(t *testing.T) {
	assert.Equal(t, 10, DeliveryProgress(OrderPending))
	assert.Equal(t, 50, DeliveryProgress(OrderPreparing))
	assert.Equal(t, 100, DeliveryProgress(OrderDelivered))
	assert.Equal(t, 0, DeliveryProgress(OrderCancelled))
	assert.Equal(t, 0, DeliveryProgress("lost"))

	prev := -1
	for _, s := range []OrderStatus{OrderPending, OrderConfirmed, OrderPreparing, OrderReady, OrderOutForDelivery, OrderDelivered} {
		p := DeliveryProgress(s)
		assert.Greater(t, p, prev, "progress increases along the happy path at %s", s)
		prev = p
	}
}
