package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/shopfront/internal/api/middleware"
	"github.com/example/shopfront/internal/domain/cart"
	"github.com/example/shopfront/internal/domain/order"
	"github.com/example/shopfront/internal/infrastructure/store"
	"github.com/example/shopfront/internal/model"
)

type Handlers struct {
	catalog store.CatalogStore
	carts   *cart.Service
	orders  *order.Service
}

func NewHandlers(catalog store.CatalogStore, carts *cart.Service, orders *order.Service) *Handlers {
	return &Handlers{
		catalog: catalog,
		carts:   carts,
		orders:  orders,
	}
}

// Product Handlers

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	ImageURL    string `json:"image_url"`
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	product, err := h.catalog.FindProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondJSONError(w, "Product not found", http.StatusNotFound)
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Price < 0 || req.Stock < 0 {
		respondJSONError(w, "name is required and price and stock must be non-negative", http.StatusBadRequest)
		return
	}

	now := time.Now()
	p := &model.Product{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.catalog.PutProduct(r.Context(), p); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")

	existing, err := h.catalog.FindProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondJSONError(w, "Product not found", http.StatusNotFound)
			return
		}
		respondDomainError(w, err)
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Price < 0 || req.Stock < 0 {
		respondJSONError(w, "name is required and price and stock must be non-negative", http.StatusBadRequest)
		return
	}

	existing.Name = req.Name
	existing.Description = req.Description
	existing.Price = req.Price
	existing.Stock = req.Stock
	existing.ImageURL = req.ImageURL
	existing.UpdatedAt = time.Now()

	if err := h.catalog.PutProduct(r.Context(), existing); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, existing)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondJSONError(w, "Product not found", http.StatusNotFound)
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())
	entries, err := h.carts.Resolve(r.Context(), email)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())

	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	if err := h.carts.Add(r.Context(), email, req.ProductID, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Added to cart"})
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())
	productID := extractPathParam(r.URL.Path, "/cart/items/")

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.carts.SetQuantity(r.Context(), email, productID, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Cart updated"})
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())
	productID := extractPathParam(r.URL.Path, "/cart/items/")

	if err := h.carts.Remove(r.Context(), email, productID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Removed from cart"})
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())
	if err := h.carts.Clear(r.Context(), email); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())

	var req struct {
		Items           []order.Line `json:"items"`
		ShippingAddress string       `json:"shipping_address"`
		PaymentMethod   string       `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var (
		o   *model.Order
		err error
	)
	if len(req.Items) > 0 {
		o, err = h.orders.Create(r.Context(), email, req.Items, req.ShippingAddress, req.PaymentMethod)
	} else {
		o, err = h.orders.CreateFromCart(r.Context(), email, req.ShippingAddress, req.PaymentMethod)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	email := middleware.GetUserEmail(r.Context())
	orders, err := h.orders.ListByUser(r.Context(), email)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")

	actor, email := actorFromRequest(r)
	o, err := h.orders.Get(r.Context(), id, actor, email)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/orders/")
	id := strings.TrimSuffix(path, "/cancel")

	actor, email := actorFromRequest(r)
	o, err := h.orders.Transition(r.Context(), id, model.StatusCancelled, actor, email)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Admin Handlers

func (h *Handlers) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	path := extractPathParam(r.URL.Path, "/admin/orders/")
	id := strings.TrimSuffix(path, "/status")

	var req struct {
		Status model.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	email := middleware.GetUserEmail(r.Context())
	o, err := h.orders.Transition(r.Context(), id, req.Status, order.ActorAdmin, email)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

func actorFromRequest(r *http.Request) (order.Actor, string) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return order.ActorUser, ""
	}
	if claims.IsAdmin() {
		return order.ActorAdmin, claims.Email
	}
	return order.ActorUser, claims.Email
}

// respondDomainError maps domain errors to HTTP statuses. Unrecognized errors
// become a 500 with a generic body; the detail goes to the log only.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrMissingAddress),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidProduct):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, order.ErrNotAllowed):
		respondJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrProductNotFound),
		errors.Is(err, order.ErrUserNotFound),
		errors.Is(err, cart.ErrProductNotFound),
		errors.Is(err, cart.ErrEntryNotFound):
		respondJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, order.ErrInsufficientStock),
		errors.Is(err, order.ErrTerminalStatus),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, cart.ErrInsufficientStock):
		respondJSONError(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("[API] Internal error: %v", err)
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
	}
}
