package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/shopfront/internal/infrastructure/store"
	"github.com/example/shopfront/internal/model"
)

// AdjustCall records one AdjustStock invocation.
type AdjustCall struct {
	ProductID     string
	DeltaStock    int
	DeltaBuyCount int
}

// MockCatalogStore is an in-memory CatalogStore. AdjustStock applies deltas
// under a mutex and enforces the no-negative-stock condition, matching the
// conditional-update semantics of the real backends.
type MockCatalogStore struct {
	mu          sync.Mutex
	Products    map[string]*model.Product
	AdjustCalls []AdjustCall
	AdjustErr   map[string]error // per-product injected failure
}

func NewMockCatalogStore() *MockCatalogStore {
	return &MockCatalogStore{
		Products:  make(map[string]*model.Product),
		AdjustErr: make(map[string]error),
	}
}

func (m *MockCatalogStore) FindProduct(ctx context.Context, id string) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockCatalogStore) ListProducts(ctx context.Context) ([]*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	products := make([]*model.Product, 0, len(m.Products))
	for _, p := range m.Products {
		cp := *p
		products = append(products, &cp)
	}
	return products, nil
}

func (m *MockCatalogStore) PutProduct(ctx context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.Products[p.ID] = &cp
	return nil
}

func (m *MockCatalogStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Products, id)
	return nil
}

func (m *MockCatalogStore) AdjustStock(ctx context.Context, id string, deltaStock, deltaBuyCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.AdjustErr[id]; ok {
		return err
	}

	p, ok := m.Products[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.Stock+deltaStock < 0 {
		return store.ErrInsufficientStock
	}
	p.Stock += deltaStock
	p.BuyCount += deltaBuyCount
	m.AdjustCalls = append(m.AdjustCalls, AdjustCall{
		ProductID:     id,
		DeltaStock:    deltaStock,
		DeltaBuyCount: deltaBuyCount,
	})
	return nil
}

// MockCartStore is an in-memory CartStore keyed by user email.
type MockCartStore struct {
	mu       sync.Mutex
	carts    map[string][]model.CartEntry
	ClearErr error
}

func NewMockCartStore() *MockCartStore {
	return &MockCartStore{carts: make(map[string][]model.CartEntry)}
}

func (m *MockCartStore) Entries(ctx context.Context, userEmail string) ([]model.CartEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]model.CartEntry, len(m.carts[userEmail]))
	copy(entries, m.carts[userEmail])
	return entries, nil
}

func (m *MockCartStore) AddEntry(ctx context.Context, userEmail string, entry model.CartEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.carts[userEmail]
	for i := range entries {
		if entries[i].ProductID == entry.ProductID {
			entries[i].Quantity += entry.Quantity
			return nil
		}
	}
	m.carts[userEmail] = append(entries, entry)
	return nil
}

func (m *MockCartStore) SetEntryQuantity(ctx context.Context, userEmail, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.carts[userEmail]
	for i := range entries {
		if entries[i].ProductID == productID {
			entries[i].Quantity = quantity
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MockCartStore) RemoveEntry(ctx context.Context, userEmail, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.carts[userEmail]
	for i := range entries {
		if entries[i].ProductID == productID {
			m.carts[userEmail] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MockCartStore) Clear(ctx context.Context, userEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearErr != nil {
		return m.ClearErr
	}
	delete(m.carts, userEmail)
	return nil
}

// MockOrderStore is an in-memory OrderStore.
type MockOrderStore struct {
	mu        sync.Mutex
	Orders    map[string]*model.Order
	InsertErr error
	UpdateErr error
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{Orders: make(map[string]*model.Order)}
}

func (m *MockOrderStore) Insert(ctx context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	cp := *o
	m.Orders[o.ID] = &cp
	return nil
}

func (m *MockOrderStore) Find(ctx context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// UpdateStatus mirrors the compare-and-set semantics of the real backends:
// the write only applies while the order still carries the from status.
func (m *MockOrderStore) UpdateStatus(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	o, ok := m.Orders[id]
	if !ok {
		return store.ErrNotFound
	}
	if o.Status != from {
		return store.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	ts := at
	switch to {
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
	return nil
}

func (m *MockOrderStore) ListByUser(ctx context.Context, userEmail string) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []*model.Order
	for _, o := range m.Orders {
		if o.UserEmail == userEmail {
			cp := *o
			orders = append(orders, &cp)
		}
	}
	return orders, nil
}

func (m *MockOrderStore) ListAll(ctx context.Context) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []*model.Order
	for _, o := range m.Orders {
		cp := *o
		orders = append(orders, &cp)
	}
	return orders, nil
}

// MockUserStore is an in-memory UserStore keyed by email.
type MockUserStore struct {
	mu    sync.Mutex
	Users map[string]*model.User
}

func NewMockUserStore() *MockUserStore {
	return &MockUserStore{Users: make(map[string]*model.User)}
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserStore) Put(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.Users[u.Email] = &cp
	return nil
}
