package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/shopfront/internal/api/middleware"
	"github.com/example/shopfront/internal/auth"
	"github.com/example/shopfront/internal/infrastructure/store"
	"github.com/example/shopfront/internal/model"
)

// tokenIssuer is the slice of auth.JWTService the handlers need.
type tokenIssuer interface {
	GenerateToken(userID, email, name, role string) (string, time.Time, error)
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	users      store.UserStore
	jwtService tokenIssuer
}

func NewAuthHandlers(users store.UserStore, jwtService *auth.JWTService) *AuthHandlers {
	return &AuthHandlers{
		users:      users,
		jwtService: jwtService,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	User    UserResponse `json:"user"`
	Token   string       `json:"token"`
	Message string       `json:"message,omitempty"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Register handles user registration
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Name == "" {
		respondJSONError(w, "Email and name are required", http.StatusBadRequest)
		return
	}

	if _, err := h.users.FindByEmail(r.Context(), req.Email); err == nil {
		respondJSONError(w, "Email already registered", http.StatusConflict)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			respondJSONError(w, "Password must be at least 8 characters", http.StatusBadRequest)
			return
		}
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	newUser := &model.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         "customer",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.users.Put(r.Context(), newUser); err != nil {
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	token, err := h.issueToken(w, r, newUser)
	if err != nil {
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, AuthResponse{
		User:    toUserResponse(newUser),
		Token:   token,
		Message: "Registration successful",
	})
}

// Login handles user login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	u, err := h.users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondJSONError(w, "Invalid email or password", http.StatusUnauthorized)
			return
		}
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if !u.IsActive {
		respondJSONError(w, "Account is deactivated", http.StatusForbidden)
		return
	}

	if !auth.CheckPassword(req.Password, u.PasswordHash) {
		respondJSONError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := h.issueToken(w, r, u)
	if err != nil {
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, AuthResponse{
		User:    toUserResponse(u),
		Token:   token,
		Message: "Login successful",
	})
}

// Logout clears the auth cookie
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Logout successful",
	})
}

// Me returns the current authenticated user's information
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	u, err := h.users.FindByEmail(r.Context(), claims.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondJSONError(w, "User not found", http.StatusNotFound)
			return
		}
		respondJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(u))
}

// issueToken generates an access token and sets it as an HTTP-only cookie.
// The token is also returned for API clients that prefer the bearer header.
// On failure no cookie is written and the caller must not respond with
// success.
func (h *AuthHandlers) issueToken(w http.ResponseWriter, r *http.Request, u *model.User) (string, error) {
	token, expiresAt, err := h.jwtService.GenerateToken(u.ID, u.Email, u.Name, u.Role)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	return token, nil
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
