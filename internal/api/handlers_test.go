package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shopfront/internal/auth"
	"github.com/example/shopfront/internal/domain/cart"
	"github.com/example/shopfront/internal/domain/order"
	"github.com/example/shopfront/internal/infrastructure/store"
	"github.com/example/shopfront/internal/infrastructure/store/mocks"
	"github.com/example/shopfront/internal/model"
)

type apiEnv struct {
	router     http.Handler
	jwtService *auth.JWTService
	catalog    *mocks.MockCatalogStore
	orders     *mocks.MockOrderStore
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	catalog := mocks.NewMockCatalogStore()
	carts := mocks.NewMockCartStore()
	orders := mocks.NewMockOrderStore()
	users := mocks.NewMockUserStore()

	users.Users["alice@example.com"] = &model.User{
		ID: "user-1", Email: "alice@example.com", Name: "Alice", Role: "customer", IsActive: true,
	}
	users.Users["root@example.com"] = &model.User{
		ID: "user-admin", Email: "root@example.com", Name: "Root", Role: "admin", IsActive: true,
	}
	catalog.Products["widget"] = &model.Product{ID: "widget", Name: "Widget", Price: 1000, Stock: 5}

	stores := store.Stores{Catalog: catalog, Carts: carts, Orders: orders, Users: users}
	cartSvc := cart.NewService(carts, catalog)
	orderSvc := order.NewService(stores, nil)

	jwtService := auth.NewJWTService("test-secret-key-for-handler-tests", time.Hour)
	handlers := NewHandlers(catalog, cartSvc, orderSvc)
	authHandlers := NewAuthHandlers(users, jwtService)

	return &apiEnv{
		router:     NewRouter(handlers, authHandlers, jwtService),
		jwtService: jwtService,
		catalog:    catalog,
		orders:     orders,
	}
}

func (e *apiEnv) token(t *testing.T, email, name, role string) string {
	t.Helper()
	token, _, err := e.jwtService.GenerateToken("id-"+email, email, name, role)
	require.NoError(t, err)
	return token
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestAPI_ListProducts_Public(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/products", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var products []model.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "widget", products[0].ID)
}

func TestAPI_GetProduct_NotFound(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/products/missing", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestAPI_CreateProduct_RequiresAdmin(t *testing.T) {
	env := newAPIEnv(t)
	body := map[string]any{"name": "Gadget", "price": 250, "stock": 3}

	rec := env.do(t, http.MethodPost, "/products", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	customer := env.token(t, "alice@example.com", "Alice", "customer")
	rec = env.do(t, http.MethodPost, "/products", customer, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := env.token(t, "root@example.com", "Root", "admin")
	rec = env.do(t, http.MethodPost, "/products", admin, body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var created model.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(250), created.Price)
}

func TestAPI_CartFlow(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "alice@example.com", "Alice", "customer")

	rec := env.do(t, http.MethodPost, "/cart/items", token, map[string]any{"product_id": "widget", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	// Adding the same product merges quantities.
	rec = env.do(t, http.MethodPost, "/cart/items", token, map[string]any{"product_id": "widget", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cartResp struct {
		Items []cart.ResolvedEntry `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cartResp))
	require.Len(t, cartResp.Items, 1)
	assert.Equal(t, 3, cartResp.Items[0].Quantity)

	rec = env.do(t, http.MethodPut, "/cart/items/widget", token, map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/cart", token, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cartResp))
	assert.Empty(t, cartResp.Items)
}

func TestAPI_CartRequiresAuth(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/cart", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_PlaceOrder_AndCancel(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "alice@example.com", "Alice", "customer")

	rec := env.do(t, http.MethodPost, "/orders", token, map[string]any{
		"items":            []map[string]any{{"product_id": "widget", "quantity": 3}},
		"shipping_address": "1 Main St",
		"payment_method":   "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var placed model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))
	assert.Equal(t, model.StatusPending, placed.Status)
	assert.Equal(t, int64(3000), placed.TotalAmount)
	assert.Equal(t, 2, env.catalog.Products["widget"].Stock)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/orders/%s/cancel", placed.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cancelled model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, env.catalog.Products["widget"].Stock)

	// A second cancel hits the terminal guard.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/orders/%s/cancel", placed.ID), token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_PlaceOrder_InsufficientStock(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "alice@example.com", "Alice", "customer")

	rec := env.do(t, http.MethodPost, "/orders", token, map[string]any{
		"items":            []map[string]any{{"product_id": "widget", "quantity": 9}},
		"shipping_address": "1 Main St",
		"payment_method":   "card",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 5, env.catalog.Products["widget"].Stock)
}

func TestAPI_PlaceOrder_EmptyCart(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "alice@example.com", "Alice", "customer")

	rec := env.do(t, http.MethodPost, "/orders", token, map[string]any{
		"shipping_address": "1 Main St",
		"payment_method":   "card",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetOrder_OtherUserReadsNotFound(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice@example.com", "Alice", "customer")

	rec := env.do(t, http.MethodPost, "/orders", alice, map[string]any{
		"items":            []map[string]any{{"product_id": "widget", "quantity": 1}},
		"shipping_address": "1 Main St",
		"payment_method":   "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	bob := env.token(t, "bob@example.com", "Bob", "customer")
	rec = env.do(t, http.MethodGet, "/orders/"+placed.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The admin sees it through the same route.
	admin := env.token(t, "root@example.com", "Root", "admin")
	rec = env.do(t, http.MethodGet, "/orders/"+placed.ID, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_AdminStatusUpdate(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice@example.com", "Alice", "customer")
	admin := env.token(t, "root@example.com", "Root", "admin")

	rec := env.do(t, http.MethodPost, "/orders", alice, map[string]any{
		"items":            []map[string]any{{"product_id": "widget", "quantity": 1}},
		"shipping_address": "1 Main St",
		"payment_method":   "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/admin/orders/%s/status", placed.ID), admin,
		map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, model.StatusConfirmed, updated.Status)

	// Skipping steps is rejected with a conflict.
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/admin/orders/%s/status", placed.ID), admin,
		map[string]any{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown status values are a bad request.
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/admin/orders/%s/status", placed.ID), admin,
		map[string]any{"status": "refunded"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Customers cannot reach the admin surface.
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/admin/orders/%s/status", placed.ID), alice,
		map[string]any{"status": "processing"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_RegisterAndLogin(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "carol@example.com",
		"password": "supersecret",
		"name":     "Carol",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, "customer", reg.User.Role)
	assert.NotEmpty(t, reg.Token)

	// Duplicate email
	rec = env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "carol@example.com",
		"password": "supersecret",
		"name":     "Carol",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "carol@example.com",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "carol@example.com",
		"password": "wrongpassword",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var login AuthResponse
	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "carol@example.com",
		"password": "supersecret",
	})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	rec = env.do(t, http.MethodGet, "/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "carol@example.com", me.Email)
}

func TestAPI_Register_ShortPassword(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"email":    "dave@example.com",
		"password": "short",
		"name":     "Dave",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodDelete, "/products", "", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPI_GetOnCancelPathRejected(t *testing.T) {
	env := newAPIEnv(t)
	token := env.token(t, "alice@example.com", "Alice", "customer")

	rec := env.do(t, http.MethodPost, "/orders", token, map[string]any{
		"items":            []map[string]any{{"product_id": "widget", "quantity": 1}},
		"shipping_address": "1 Main St",
		"payment_method":   "card",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	// Cancellation is POST only; a read against the cancel path must not
	// serve the order document.
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/orders/%s/cancel", placed.ID), token, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.NotContains(t, rec.Body.String(), placed.OrderNumber)
}

type failingIssuer struct{}

func (failingIssuer) GenerateToken(userID, email, name, role string) (string, time.Time, error) {
	return "", time.Time{}, errors.New("signing failed")
}

func TestAPI_LoginTokenFailureIsServerError(t *testing.T) {
	users := mocks.NewMockUserStore()
	hash, err := auth.HashPassword("supersecret")
	require.NoError(t, err)
	users.Users["alice@example.com"] = &model.User{
		ID: "user-1", Email: "alice@example.com", PasswordHash: hash, Name: "Alice", Role: "customer", IsActive: true,
	}
	handlers := &AuthHandlers{users: users, jwtService: failingIssuer{}}

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]string{
		"email": "alice@example.com", "password": "supersecret",
	}))
	rec := httptest.NewRecorder()
	handlers.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", &buf))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Login successful")
	assert.Empty(t, rec.Result().Cookies())
}

func TestAPI_RegisterTokenFailureIsServerError(t *testing.T) {
	handlers := &AuthHandlers{users: mocks.NewMockUserStore(), jwtService: failingIssuer{}}

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(map[string]string{
		"email": "carol@example.com", "password": "supersecret", "name": "Carol",
	}))
	rec := httptest.NewRecorder()
	handlers.Register(rec, httptest.NewRequest(http.MethodPost, "/auth/register", &buf))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Registration successful")
}
