package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/shopfront/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStatusConflict    = errors.New("order status changed concurrently")
)

// CatalogStore holds product records. AdjustStock is the inventory
// reconciler primitive: a single atomic increment against one product record
// that fails with ErrInsufficientStock when the resulting stock would be
// negative. Implementations must not read-modify-write.
type CatalogStore interface {
	FindProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context) ([]*model.Product, error)
	PutProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, deltaStock, deltaBuyCount int) error
}

// CartStore holds per-user cart entries keyed by (user email, product ID).
// AddEntry increments the quantity of an existing entry or inserts a new one
// as one atomic operation, so two racing adds never lose an update.
type CartStore interface {
	Entries(ctx context.Context, userEmail string) ([]model.CartEntry, error)
	AddEntry(ctx context.Context, userEmail string, entry model.CartEntry) error
	SetEntryQuantity(ctx context.Context, userEmail, productID string, quantity int) error
	RemoveEntry(ctx context.Context, userEmail, productID string) error
	Clear(ctx context.Context, userEmail string) error
}

// OrderStore holds order documents. Orders are inserted once and never
// deleted; UpdateStatus writes the new status, updated_at and the matching
// per-status timestamp column as one write conditional on the order still
// being in the from status, and returns ErrStatusConflict when it is not.
// Callers that attach side effects to a transition must only run them after
// the conditional write succeeded.
type OrderStore interface {
	Insert(ctx context.Context, o *model.Order) error
	Find(ctx context.Context, id string) (*model.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) error
	ListByUser(ctx context.Context, userEmail string) ([]*model.Order, error)
	ListAll(ctx context.Context) ([]*model.Order, error)
}

// UserStore holds account records, addressed by email.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Put(ctx context.Context, u *model.User) error
}

// Stores bundles the four store interfaces a backend provides.
type Stores struct {
	Catalog CatalogStore
	Carts   CartStore
	Orders  OrderStore
	Users   UserStore
}
