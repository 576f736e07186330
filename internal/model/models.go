package model

import "time"

// Product is the catalog record. Price is in minor currency units (cents).
// Stock never goes negative; BuyCount tracks the net reserved quantity across
// non-cancelled orders.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	BuyCount    int       `json:"buy_count"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CartEntry is one line of a user's cart. Unique per product within a cart;
// adding the same product again merges quantities.
type CartEntry struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// OrderItem is an immutable snapshot of a product line captured at order
// creation time. It is never re-derived from live catalog data.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Total     int64  `json:"total"`
}

// OrderStatus values. Pending is the initial state; delivered and cancelled
// are terminal.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// Order is created once and never deleted; only the status, its timestamp
// fields and UpdatedAt change afterwards.
type Order struct {
	ID              string      `json:"id"`
	OrderNumber     string      `json:"order_number"`
	UserEmail       string      `json:"user_email"`
	UserName        string      `json:"user_name"`
	Items           []OrderItem `json:"items"`
	TotalAmount     int64       `json:"total_amount"`
	ShippingAddress string      `json:"shipping_address"`
	PaymentMethod   string      `json:"payment_method"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	ConfirmedAt     *time.Time  `json:"confirmed_at,omitempty"`
	ProcessingAt    *time.Time  `json:"processing_at,omitempty"`
	ShippedAt       *time.Time  `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time  `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
}

// User is the account record. Role is "customer" or "admin".
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
