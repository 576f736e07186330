package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/example/shopfront/internal/api/middleware"
	"github.com/example/shopfront/internal/auth"
)

func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, jwtService *auth.JWTService) http.Handler {
	mux := http.NewServeMux()

	requireAuth := middleware.RequireAuth(jwtService)
	requireAdmin := func(h http.Handler) http.Handler {
		return requireAuth(middleware.RequireRole("admin")(h))
	}

	// Auth
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			authHandlers.Register(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			authHandlers.Login(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			authHandlers.Logout(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.Handle("/auth/me", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			authHandlers.Me(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Products (reads are public, writes are admin only)
	mux.Handle("/products", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProducts(w, r)
		case http.MethodPost:
			requireAdmin(http.HandlerFunc(handlers.CreateProduct)).ServeHTTP(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/products/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProduct(w, r)
		case http.MethodPut:
			requireAdmin(http.HandlerFunc(handlers.UpdateProduct)).ServeHTTP(w, r)
		case http.MethodDelete:
			requireAdmin(http.HandlerFunc(handlers.DeleteProduct)).ServeHTTP(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	// Cart
	mux.Handle("/cart", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetCart(w, r)
		case http.MethodDelete:
			handlers.ClearCart(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/cart/items", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.AddToCart(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/cart/items/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			handlers.UpdateCartItem(w, r)
		case http.MethodDelete:
			handlers.RemoveFromCart(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Orders
	mux.Handle("/orders", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetOrders(w, r)
		case http.MethodPost:
			handlers.PlaceOrder(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/orders/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The cancel path is dispatched on its own so a GET against it can
		// never fall through to the order document.
		if strings.HasSuffix(r.URL.Path, "/cancel") {
			if r.Method == http.MethodPost {
				handlers.CancelOrder(w, r)
				return
			}
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch r.Method {
		case http.MethodGet:
			handlers.GetOrder(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Admin
	mux.Handle("/admin/orders", requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetAllOrders(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/admin/orders/", requireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/status") && r.Method == http.MethodPut:
			handlers.UpdateOrderStatus(w, r)
		default:
			respondJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return withLogging(mux)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[API] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
