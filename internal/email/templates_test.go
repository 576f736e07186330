package email

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/shopfront/internal/model"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{100, "1.00"},
		{1999, "19.99"},
		{100000, "1,000.00"},
		{123456789, "1,234,567.89"},
		{-2500, "-25.00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMoney(tt.cents), "cents=%d", tt.cents)
	}
}

func TestBuildOrderConfirmationBody(t *testing.T) {
	items := []model.OrderItem{
		{ProductID: "widget", Name: "Widget", Price: 1000, Quantity: 3, Total: 3000},
		{ProductID: "gadget", Name: "", Price: 250, Quantity: 1, Total: 250},
	}

	body := BuildOrderConfirmationBody("ORD-20250314-092653-ABCDEF", 3250, items)

	assert.Contains(t, body, "ORD-20250314-092653-ABCDEF")
	assert.Contains(t, body, "Widget")
	// Nameless items fall back to the product ID.
	assert.Contains(t, body, "gadget")
	assert.Contains(t, body, "$10.00")
	assert.Contains(t, body, "$30.00")
	assert.Contains(t, body, "$32.50")
}

func TestBuildStatusChangeBody(t *testing.T) {
	body := BuildStatusChangeBody("ORD-1", model.StatusShipped)
	assert.Contains(t, body, "ORD-1")
	assert.Contains(t, body, "shipped")

	// Unmapped statuses still produce a sensible message.
	body = BuildStatusChangeBody("ORD-2", model.OrderStatus("archived"))
	assert.Contains(t, body, "archived")
}
