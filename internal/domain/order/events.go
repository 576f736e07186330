package order

import (
	"encoding/json"
	"time"

	"github.com/example/shopfront/internal/model"
)

// Event types published to the order lifecycle topic.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

// Envelope wraps a lifecycle event payload with its type for consumers.
type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// OrderPlaced is emitted once per successfully created order.
type OrderPlaced struct {
	OrderID     string            `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserEmail   string            `json:"user_email"`
	UserName    string            `json:"user_name"`
	Items       []model.OrderItem `json:"items"`
	TotalAmount int64             `json:"total_amount"`
	PlacedAt    time.Time         `json:"placed_at"`
}

// OrderStatusChanged is emitted on every applied status transition.
type OrderStatusChanged struct {
	OrderID     string            `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserEmail   string            `json:"user_email"`
	OldStatus   model.OrderStatus `json:"old_status"`
	NewStatus   model.OrderStatus `json:"new_status"`
	ChangedAt   time.Time         `json:"changed_at"`
}
