package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/shopfront/internal/infrastructure/store"
	"github.com/example/shopfront/internal/model"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidProduct    = errors.New("product_id is required")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEntryNotFound     = errors.New("cart entry not found")
)

// ResolvedEntry joins a cart entry with its current product record for
// display. Price and stock here are live values, not a snapshot.
type ResolvedEntry struct {
	Product  *model.Product `json:"product"`
	Quantity int            `json:"quantity"`
	AddedAt  time.Time      `json:"added_at"`
}

// Service maintains the authoritative pre-checkout item set for each user.
type Service struct {
	carts   store.CartStore
	catalog store.CatalogStore
}

func NewService(carts store.CartStore, catalog store.CatalogStore) *Service {
	return &Service{carts: carts, catalog: catalog}
}

// Add puts quantity units of a product into the user's cart, merging with an
// existing entry for the same product. The stock check is a soft check
// against the current catalog value, not a reservation.
func (s *Service) Add(ctx context.Context, userEmail, productID string, quantity int) error {
	if productID == "" {
		return ErrInvalidProduct
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	p, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return err
	}
	if quantity > p.Stock {
		return fmt.Errorf("%w for product %s: requested %d, available %d",
			ErrInsufficientStock, p.ID, quantity, p.Stock)
	}

	return s.carts.AddEntry(ctx, userEmail, model.CartEntry{
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   time.Now(),
	})
}

// SetQuantity overwrites the entry's quantity. Zero removes the entry;
// negative values are rejected.
func (s *Service) SetQuantity(ctx context.Context, userEmail, productID string, quantity int) error {
	if productID == "" {
		return ErrInvalidProduct
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	if quantity == 0 {
		return s.Remove(ctx, userEmail, productID)
	}

	err := s.carts.SetEntryQuantity(ctx, userEmail, productID, quantity)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, productID)
	}
	return err
}

// Remove deletes the matching entry; removing an absent entry is a no-op.
func (s *Service) Remove(ctx context.Context, userEmail, productID string) error {
	if productID == "" {
		return ErrInvalidProduct
	}
	return s.carts.RemoveEntry(ctx, userEmail, productID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userEmail string) error {
	return s.carts.Clear(ctx, userEmail)
}

// Resolve joins each entry against the current catalog. Entries whose
// product no longer exists are silently dropped from the result; the stored
// entries are left untouched.
func (s *Service) Resolve(ctx context.Context, userEmail string) ([]ResolvedEntry, error) {
	entries, err := s.carts.Entries(ctx, userEmail)
	if err != nil {
		return nil, err
	}

	resolved := make([]ResolvedEntry, 0, len(entries))
	for _, e := range entries {
		p, err := s.catalog.FindProduct(ctx, e.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		resolved = append(resolved, ResolvedEntry{
			Product:  p,
			Quantity: e.Quantity,
			AddedAt:  e.AddedAt,
		})
	}
	return resolved, nil
}
