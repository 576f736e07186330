package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/shopfront/internal/infrastructure/store"
	"github.com/example/shopfront/internal/model"
)

var (
	ErrEmptyOrder        = errors.New("order must have at least one item")
	ErrMissingAddress    = errors.New("shipping address is required")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrUserNotFound      = errors.New("user not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderNotFound     = errors.New("order not found")
	ErrTerminalStatus    = errors.New("cannot update a cancelled or delivered order")
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotAllowed        = errors.New("transition not permitted for this actor")
	ErrStatusConflict    = errors.New("order was updated concurrently, retry")
)

// Line is one requested order line before validation.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// EventPublisher publishes lifecycle events keyed by order ID. Nil disables
// publishing (unit tests, notifier-less deployments).
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Service implements the order builder and the status state machine. Stock
// reservation and release go through CatalogStore.AdjustStock, the single
// atomic mutation primitive shared by both paths.
type Service struct {
	catalog  store.CatalogStore
	carts    store.CartStore
	orders   store.OrderStore
	users    store.UserStore
	producer EventPublisher
}

func NewService(stores store.Stores, producer EventPublisher) *Service {
	return &Service{
		catalog:  stores.Catalog,
		carts:    stores.Carts,
		orders:   stores.Orders,
		users:    stores.Users,
		producer: producer,
	}
}

// Create validates every requested line against the live catalog, snapshots
// name and price per line, reserves stock, persists the order as pending and
// clears the user's cart.
//
// Ordering matters: all lines are validated before any stock mutation, and
// each reservation is a conditional atomic decrement. If a later line loses a
// race to a concurrent order, the decrements already applied for earlier
// lines are released before the error is returned, so a failed creation never
// leaves a partial reservation behind. The order row is only inserted after
// every reservation succeeded.
func (s *Service) Create(ctx context.Context, userEmail string, lines []Line, shippingAddress, paymentMethod string) (*model.Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	if strings.TrimSpace(shippingAddress) == "" {
		return nil, ErrMissingAddress
	}

	user, err := s.users.FindByEmail(ctx, userEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	// Validate everything before mutating anything.
	now := time.Now()
	items := make([]model.OrderItem, 0, len(lines))
	var totalAmount int64
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, line.ProductID)
		}
		p, err := s.catalog.FindProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
			}
			return nil, err
		}
		if line.Quantity > p.Stock {
			return nil, fmt.Errorf("%w for product %s: requested %d, available %d",
				ErrInsufficientStock, p.ID, line.Quantity, p.Stock)
		}
		itemTotal := p.Price * int64(line.Quantity)
		items = append(items, model.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  line.Quantity,
			Total:     itemTotal,
		})
		totalAmount += itemTotal
	}

	// Reserve stock line by line; each call is a conditional atomic
	// decrement, so a concurrent order cannot interleave between the check
	// and the write.
	for i, item := range items {
		if err := s.catalog.AdjustStock(ctx, item.ProductID, -item.Quantity, item.Quantity); err != nil {
			s.releaseItems(ctx, items[:i])
			if errors.Is(err, store.ErrInsufficientStock) {
				return nil, fmt.Errorf("%w for product %s", ErrInsufficientStock, item.ProductID)
			}
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
			}
			return nil, err
		}
	}

	o := &model.Order{
		ID:              uuid.New().String(),
		OrderNumber:     newOrderNumber(now),
		UserEmail:       user.Email,
		UserName:        user.Name,
		Items:           items,
		TotalAmount:     totalAmount,
		ShippingAddress: shippingAddress,
		PaymentMethod:   paymentMethod,
		Status:          model.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.Insert(ctx, o); err != nil {
		s.releaseItems(ctx, items)
		return nil, err
	}

	// Clear only on overall success; a failure here leaves a stale cart, not
	// a wrong order, so it is logged rather than propagated.
	if err := s.carts.Clear(ctx, user.Email); err != nil {
		log.Printf("[Order] Failed to clear cart for %s after order %s: %v", user.Email, o.OrderNumber, err)
	}

	s.publish(ctx, o.ID, EventOrderPlaced, OrderPlaced{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserEmail:   o.UserEmail,
		UserName:    o.UserName,
		Items:       o.Items,
		TotalAmount: o.TotalAmount,
		PlacedAt:    now,
	})

	return o, nil
}

// CreateFromCart builds the line list from the user's current cart entries.
func (s *Service) CreateFromCart(ctx context.Context, userEmail, shippingAddress, paymentMethod string) (*model.Order, error) {
	entries, err := s.carts.Entries(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	lines := make([]Line, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, Line{ProductID: e.ProductID, Quantity: e.Quantity})
	}
	return s.Create(ctx, userEmail, lines, shippingAddress, paymentMethod)
}

// Get loads one order. For the user actor an order owned by someone else is
// reported as not found rather than forbidden.
func (s *Service) Get(ctx context.Context, orderID string, actor Actor, requesterEmail string) (*model.Order, error) {
	o, err := s.orders.Find(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if actor == ActorUser && o.UserEmail != requesterEmail {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) ListByUser(ctx context.Context, userEmail string) ([]*model.Order, error) {
	return s.orders.ListByUser(ctx, userEmail)
}

func (s *Service) ListAll(ctx context.Context) ([]*model.Order, error) {
	return s.orders.ListAll(ctx)
}

// Transition moves an order to newStatus on behalf of actor.
//
// The terminal-status guard rejects updates to orders already read as
// cancelled or delivered. The guard alone is a read-then-check and cannot
// stop two racing transitions that both loaded the order before either
// wrote, so the status write itself is conditional on the status the order
// was read with; the losing writer gets ErrStatusConflict and never reaches
// the side-effect step. Releasing inventory twice for the same order would
// double-count, so stock release runs only after the write landed.
func (s *Service) Transition(ctx context.Context, orderID string, newStatus model.OrderStatus, actor Actor, requesterEmail string) (*model.Order, error) {
	o, err := s.Get(ctx, orderID, actor, requesterEmail)
	if err != nil {
		return nil, err
	}

	if IsTerminal(o.Status) {
		return nil, ErrTerminalStatus
	}
	if !KnownStatus(newStatus) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, newStatus)
	}
	if !canTransition(o.Status, newStatus, actor) {
		if actor == ActorUser {
			return nil, fmt.Errorf("%w: users may only cancel pending or confirmed orders", ErrNotAllowed)
		}
		return nil, fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, newStatus)
	}

	now := time.Now()
	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, newStatus, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, ErrStatusConflict
		}
		return nil, err
	}

	oldStatus := o.Status
	o.Status = newStatus
	o.UpdatedAt = now
	setStatusTimestamp(o, newStatus, now)

	if newStatus == model.StatusCancelled {
		// Restore exactly the snapshotted quantities; live cart or catalog
		// state plays no part here.
		if err := s.releaseItems(ctx, o.Items); err != nil {
			return nil, fmt.Errorf("order %s cancelled but stock release failed: %w", o.OrderNumber, err)
		}
	}

	s.publish(ctx, o.ID, EventOrderStatusChanged, OrderStatusChanged{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserEmail:   o.UserEmail,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
		ChangedAt:   now,
	})

	return o, nil
}

// releaseItems reverses the reservation for the given item snapshots. All
// lines are attempted even if one fails; the first failure is returned.
func (s *Service) releaseItems(ctx context.Context, items []model.OrderItem) error {
	var firstErr error
	for _, item := range items {
		if err := s.catalog.AdjustStock(ctx, item.ProductID, item.Quantity, -item.Quantity); err != nil {
			log.Printf("[Order] Failed to release stock for product %s: %v", item.ProductID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func setStatusTimestamp(o *model.Order, status model.OrderStatus, at time.Time) {
	ts := at
	switch status {
	case model.StatusConfirmed:
		o.ConfirmedAt = &ts
	case model.StatusProcessing:
		o.ProcessingAt = &ts
	case model.StatusShipped:
		o.ShippedAt = &ts
	case model.StatusDelivered:
		o.DeliveredAt = &ts
	case model.StatusCancelled:
		o.CancelledAt = &ts
	}
}

func (s *Service) publish(ctx context.Context, orderID, eventType string, payload any) {
	if s.producer == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Order] Failed to marshal %s event: %v", eventType, err)
		return
	}
	env := Envelope{Type: eventType, OccurredAt: time.Now(), Data: data}
	if err := s.producer.Publish(ctx, orderID, env); err != nil {
		log.Printf("[Order] Failed to publish %s event for order %s: %v", eventType, orderID, err)
	}
}

// newOrderNumber builds a human-readable unique order number from the
// creation time plus a random suffix.
func newOrderNumber(t time.Time) string {
	suffix := strings.ToUpper(uuid.New().String()[:6])
	return fmt.Sprintf("ORD-%s-%s", t.Format("20060102-150405"), suffix)
}
