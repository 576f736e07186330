package order

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/shopfront/internal/model"
)

func TestKnownStatus(t *testing.T) {
	for _, s := range []model.OrderStatus{
		model.StatusPending, model.StatusConfirmed, model.StatusProcessing,
		model.StatusShipped, model.StatusDelivered, model.StatusCancelled,
	} {
		assert.True(t, KnownStatus(s), "status %s", s)
	}
	assert.False(t, KnownStatus("refunded"))
	assert.False(t, KnownStatus(""))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(model.StatusDelivered))
	assert.True(t, IsTerminal(model.StatusCancelled))
	assert.False(t, IsTerminal(model.StatusPending))
	assert.False(t, IsTerminal(model.StatusShipped))
}

func TestCanTransition_Admin(t *testing.T) {
	tests := []struct {
		name string
		from model.OrderStatus
		to   model.OrderStatus
		want bool
	}{
		{"pending to confirmed", model.StatusPending, model.StatusConfirmed, true},
		{"pending to cancelled", model.StatusPending, model.StatusCancelled, true},
		{"pending to shipped skips steps", model.StatusPending, model.StatusShipped, false},
		{"confirmed to processing", model.StatusConfirmed, model.StatusProcessing, true},
		{"confirmed to cancelled", model.StatusConfirmed, model.StatusCancelled, true},
		{"processing to shipped", model.StatusProcessing, model.StatusShipped, true},
		{"processing to cancelled admin override", model.StatusProcessing, model.StatusCancelled, true},
		{"shipped to delivered", model.StatusShipped, model.StatusDelivered, true},
		{"shipped to cancelled admin override", model.StatusShipped, model.StatusCancelled, true},
		{"delivered is terminal", model.StatusDelivered, model.StatusCancelled, false},
		{"cancelled is terminal", model.StatusCancelled, model.StatusConfirmed, false},
		{"no going backwards", model.StatusShipped, model.StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to, ActorAdmin))
		})
	}
}

func TestCanTransition_User(t *testing.T) {
	// Users may only cancel, and only while pending or confirmed.
	assert.True(t, canTransition(model.StatusPending, model.StatusCancelled, ActorUser))
	assert.True(t, canTransition(model.StatusConfirmed, model.StatusCancelled, ActorUser))
	assert.False(t, canTransition(model.StatusProcessing, model.StatusCancelled, ActorUser))
	assert.False(t, canTransition(model.StatusShipped, model.StatusCancelled, ActorUser))
	assert.False(t, canTransition(model.StatusPending, model.StatusConfirmed, ActorUser))
	assert.False(t, canTransition(model.StatusShipped, model.StatusDelivered, ActorUser))
}
