package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/shopfront/internal/model"
)

// PostgresStore implements the catalog, cart, order and user stores on one
// PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Stores returns the store bundle backed by this instance.
func (s *PostgresStore) Stores() Stores {
	return Stores{Catalog: s, Carts: s, Orders: s, Users: s}
}

// Catalog operations

func (s *PostgresStore) FindProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, stock, buy_count, image_url, created_at, updated_at
		FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.BuyCount, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]*model.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, price, stock, buy_count, image_url, created_at, updated_at
		FROM products ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.BuyCount, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

func (s *PostgresStore) PutProduct(ctx context.Context, p *model.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, stock, buy_count, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			image_url = EXCLUDED.image_url,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.Name, p.Description, p.Price, p.Stock, p.BuyCount, p.ImageURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put product: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

// AdjustStock applies the stock and buy-count deltas as one conditional
// update. The WHERE clause rejects any adjustment that would drive stock
// negative, so concurrent reservations against the same product serialize on
// the row without a read-modify-write window.
func (s *PostgresStore) AdjustStock(ctx context.Context, id string, deltaStock, deltaBuyCount int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, buy_count = buy_count + $3, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0
	`, id, deltaStock, deltaBuyCount)
	if err != nil {
		return fmt.Errorf("failed to adjust stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}

// Cart operations

func (s *PostgresStore) Entries(ctx context.Context, userEmail string) ([]model.CartEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, added_at
		FROM cart_entries WHERE user_email = $1 ORDER BY added_at
	`, userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart entries: %w", err)
	}
	defer rows.Close()

	var entries []model.CartEntry
	for rows.Next() {
		var e model.CartEntry
		if err := rows.Scan(&e.ProductID, &e.Quantity, &e.AddedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddEntry merges into an existing entry or inserts a new one in a single
// statement, so two racing adds for the same product both count.
func (s *PostgresStore) AddEntry(ctx context.Context, userEmail string, entry model.CartEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_entries (user_email, product_id, quantity, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_email, product_id) DO UPDATE SET
			quantity = cart_entries.quantity + EXCLUDED.quantity
	`, userEmail, entry.ProductID, entry.Quantity, entry.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to add cart entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetEntryQuantity(ctx context.Context, userEmail, productID string, quantity int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cart_entries SET quantity = $3
		WHERE user_email = $1 AND product_id = $2
	`, userEmail, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to set cart quantity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RemoveEntry(ctx context.Context, userEmail, productID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_entries WHERE user_email = $1 AND product_id = $2
	`, userEmail, productID)
	if err != nil {
		return fmt.Errorf("failed to remove cart entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, userEmail string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cart_entries WHERE user_email = $1`, userEmail)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// Order operations

// statusColumns maps each post-creation status to its timestamp column.
var statusColumns = map[model.OrderStatus]string{
	model.StatusConfirmed:  "confirmed_at",
	model.StatusProcessing: "processing_at",
	model.StatusShipped:    "shipped_at",
	model.StatusDelivered:  "delivered_at",
	model.StatusCancelled:  "cancelled_at",
}

func (s *PostgresStore) Insert(ctx context.Context, o *model.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_email, user_name, items, total_amount,
			shipping_address, payment_method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, o.ID, o.OrderNumber, o.UserEmail, o.UserName, itemsJSON, o.TotalAmount,
		o.ShippingAddress, o.PaymentMethod, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

const orderColumns = `id, order_number, user_email, user_name, items, total_amount,
	shipping_address, payment_method, status, created_at, updated_at,
	confirmed_at, processing_at, shipped_at, delivered_at, cancelled_at`

func (s *PostgresStore) Find(ctx context.Context, id string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// UpdateStatus is a compare-and-set on the status column. Two racing
// transitions both read the same order, but only the first matches the WHERE
// clause; the loser gets ErrStatusConflict and must not run any side effects.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) error {
	query := `UPDATE orders SET status = $2, updated_at = $3`
	if col, ok := statusColumns[to]; ok {
		query += `, ` + col + ` = $3`
	}
	query += ` WHERE id = $1 AND status = $4`

	res, err := s.db.ExecContext(ctx, query, id, to, at, from)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userEmail string) ([]*model.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_email = $1 ORDER BY created_at DESC`, userEmail)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*model.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (s *PostgresStore) listOrders(ctx context.Context, query string, args ...any) ([]*model.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	var itemsJSON []byte
	var confirmedAt, processingAt, shippedAt, deliveredAt, cancelledAt sql.NullTime
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserEmail, &o.UserName, &itemsJSON, &o.TotalAmount,
		&o.ShippingAddress, &o.PaymentMethod, &o.Status, &o.CreatedAt, &o.UpdatedAt,
		&confirmedAt, &processingAt, &shippedAt, &deliveredAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
	}
	o.ConfirmedAt = nullableTime(confirmedAt)
	o.ProcessingAt = nullableTime(processingAt)
	o.ShippedAt = nullableTime(shippedAt)
	o.DeliveredAt = nullableTime(deliveredAt)
	o.CancelledAt = nullableTime(cancelledAt)
	return &o, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

// User operations

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, role, is_active, created_at, updated_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) Put(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}
