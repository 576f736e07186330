package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shopfront/internal/infrastructure/store/mocks"
	"github.com/example/shopfront/internal/model"
)

func newTestCartService() (*Service, *mocks.MockCartStore, *mocks.MockCatalogStore) {
	carts := mocks.NewMockCartStore()
	catalog := mocks.NewMockCatalogStore()
	catalog.Products["widget"] = &model.Product{ID: "widget", Name: "Widget", Price: 1000, Stock: 10}
	return NewService(carts, catalog), carts, catalog
}

func TestService_Add(t *testing.T) {
	service, carts, _ := newTestCartService()
	ctx := context.Background()

	require.NoError(t, service.Add(ctx, "alice@example.com", "widget", 2))

	entries, err := carts.Entries(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Quantity)
}

func TestService_Add_MergesExistingEntry(t *testing.T) {
	service, carts, _ := newTestCartService()
	ctx := context.Background()

	require.NoError(t, service.Add(ctx, "alice@example.com", "widget", 2))
	require.NoError(t, service.Add(ctx, "alice@example.com", "widget", 3))

	entries, err := carts.Entries(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].Quantity)
}

func TestService_Add_Validation(t *testing.T) {
	service, _, _ := newTestCartService()
	ctx := context.Background()

	assert.ErrorIs(t, service.Add(ctx, "alice@example.com", "", 1), ErrInvalidProduct)
	assert.ErrorIs(t, service.Add(ctx, "alice@example.com", "widget", 0), ErrInvalidQuantity)
	assert.ErrorIs(t, service.Add(ctx, "alice@example.com", "widget", -2), ErrInvalidQuantity)
	assert.ErrorIs(t, service.Add(ctx, "alice@example.com", "missing", 1), ErrProductNotFound)
	assert.ErrorIs(t, service.Add(ctx, "alice@example.com", "widget", 11), ErrInsufficientStock)
}

func TestService_SetQuantity(t *testing.T) {
	service, carts, _ := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, "alice@example.com", "widget", 2))

	require.NoError(t, service.SetQuantity(ctx, "alice@example.com", "widget", 7))

	entries, err := carts.Entries(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 7, entries[0].Quantity)
}

func TestService_SetQuantity_ZeroRemoves(t *testing.T) {
	service, carts, _ := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, "alice@example.com", "widget", 2))

	require.NoError(t, service.SetQuantity(ctx, "alice@example.com", "widget", 0))

	entries, err := carts.Entries(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_SetQuantity_Negative(t *testing.T) {
	service, _, _ := newTestCartService()

	err := service.SetQuantity(context.Background(), "alice@example.com", "widget", -1)

	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestService_SetQuantity_MissingEntry(t *testing.T) {
	service, _, _ := newTestCartService()

	err := service.SetQuantity(context.Background(), "alice@example.com", "widget", 3)

	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestService_Remove_AbsentIsNoop(t *testing.T) {
	service, _, _ := newTestCartService()

	assert.NoError(t, service.Remove(context.Background(), "alice@example.com", "widget"))
}

func TestService_Clear(t *testing.T) {
	service, carts, _ := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, "alice@example.com", "widget", 2))

	require.NoError(t, service.Clear(ctx, "alice@example.com"))

	entries, err := carts.Entries(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_Resolve_DropsDanglingEntries(t *testing.T) {
	service, carts, catalog := newTestCartService()
	ctx := context.Background()
	catalog.Products["gadget"] = &model.Product{ID: "gadget", Name: "Gadget", Price: 500, Stock: 3}

	require.NoError(t, service.Add(ctx, "alice@example.com", "widget", 2))
	require.NoError(t, service.Add(ctx, "alice@example.com", "gadget", 1))

	// Gadget gets deleted from the catalog; its entry should vanish from the
	// resolved view while the stored entry stays put.
	require.NoError(t, catalog.DeleteProduct(ctx, "gadget"))

	resolved, err := service.Resolve(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "widget", resolved[0].Product.ID)
	assert.Equal(t, 2, resolved[0].Quantity)

	entries, err := carts.Entries(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestService_Resolve_LivePrices(t *testing.T) {
	service, _, catalog := newTestCartService()
	ctx := context.Background()
	require.NoError(t, service.Add(ctx, "alice@example.com", "widget", 1))

	catalog.Products["widget"].Price = 1500

	resolved, err := service.Resolve(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, int64(1500), resolved[0].Product.Price)
}

func TestService_CartsAreIsolatedPerUser(t *testing.T) {
	service, _, _ := newTestCartService()
	ctx := context.Background()

	require.NoError(t, service.Add(ctx, "alice@example.com", "widget", 2))
	require.NoError(t, service.Add(ctx, "bob@example.com", "widget", 5))

	aliceEntries, err := service.Resolve(ctx, "alice@example.com")
	require.NoError(t, err)
	bobEntries, err := service.Resolve(ctx, "bob@example.com")
	require.NoError(t, err)

	assert.Equal(t, 2, aliceEntries[0].Quantity)
	assert.Equal(t, 5, bobEntries[0].Quantity)
}
