package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/example/shopfront/internal/model"
)

// DynamoStore implements the store interfaces on DynamoDB tables. Stock
// adjustments use conditional ADD expressions, so the no-negative-stock
// invariant is enforced by the database under concurrent writers, same as the
// Postgres backend.
type DynamoStore struct {
	client        *dynamodb.Client
	productsTable string
	cartsTable    string
	ordersTable   string
	usersTable    string
}

// DynamoTables names the four tables a DynamoStore operates on.
type DynamoTables struct {
	Products string
	Carts    string
	Orders   string
	Users    string
}

func NewDynamoStore(client *dynamodb.Client, tables DynamoTables) *DynamoStore {
	return &DynamoStore{
		client:        client,
		productsTable: tables.Products,
		cartsTable:    tables.Carts,
		ordersTable:   tables.Orders,
		usersTable:    tables.Users,
	}
}

// Stores returns the store bundle backed by this instance.
func (s *DynamoStore) Stores() Stores {
	return Stores{Catalog: s, Carts: s, Orders: s, Users: s}
}

type dynamoProduct struct {
	ID          string `dynamodbav:"id"`
	Name        string `dynamodbav:"name"`
	Description string `dynamodbav:"description"`
	Price       int64  `dynamodbav:"price"`
	Stock       int    `dynamodbav:"stock"`
	BuyCount    int    `dynamodbav:"buy_count"`
	ImageURL    string `dynamodbav:"image_url"`
	CreatedAt   string `dynamodbav:"created_at"`
	UpdatedAt   string `dynamodbav:"updated_at"`
}

func (p dynamoProduct) toModel() *model.Product {
	createdAt, _ := time.Parse(time.RFC3339Nano, p.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, p.UpdatedAt)
	return &model.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		BuyCount:    p.BuyCount,
		ImageURL:    p.ImageURL,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}

// Catalog operations

func (s *DynamoStore) FindProduct(ctx context.Context, id string) (*model.Product, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.productsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var dp dynamoProduct
	if err := attributevalue.UnmarshalMap(result.Item, &dp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return dp.toModel(), nil
}

func (s *DynamoStore) ListProducts(ctx context.Context) ([]*model.Product, error) {
	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.productsTable),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}

	products := make([]*model.Product, 0, len(result.Items))
	for _, item := range result.Items {
		var dp dynamoProduct
		if err := attributevalue.UnmarshalMap(item, &dp); err != nil {
			continue
		}
		products = append(products, dp.toModel())
	}
	return products, nil
}

func (s *DynamoStore) PutProduct(ctx context.Context, p *model.Product) error {
	item := dynamoProduct{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		BuyCount:    p.BuyCount,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.productsTable),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put product: %w", err)
	}
	return nil
}

func (s *DynamoStore) DeleteProduct(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.productsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

// AdjustStock applies the deltas with a single conditional UpdateItem. For a
// negative stock delta the condition requires enough stock to cover it, so an
// oversell attempt fails at the database rather than after a stale read.
func (s *DynamoStore) AdjustStock(ctx context.Context, id string, deltaStock, deltaBuyCount int) error {
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.productsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: aws.String("ADD stock :ds, buy_count :db SET updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ds":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", deltaStock)},
			":db":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", deltaBuyCount)},
			":now": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339Nano)},
		},
	}
	if deltaStock < 0 {
		input.ConditionExpression = aws.String("attribute_exists(id) AND stock >= :need")
		input.ExpressionAttributeValues[":need"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", -deltaStock)}
	} else {
		input.ConditionExpression = aws.String("attribute_exists(id)")
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if _, findErr := s.FindProduct(ctx, id); findErr != nil {
				return ErrNotFound
			}
			return ErrInsufficientStock
		}
		return fmt.Errorf("failed to adjust stock: %w", err)
	}
	return nil
}

// Cart operations
//
// Cart entries are items keyed (user_email, product_id), so the add path is a
// single ADD update that creates the item when absent.

type dynamoCartEntry struct {
	UserEmail string `dynamodbav:"user_email"`
	ProductID string `dynamodbav:"product_id"`
	Quantity  int    `dynamodbav:"quantity"`
	AddedAt   string `dynamodbav:"added_at"`
}

func (s *DynamoStore) Entries(ctx context.Context, userEmail string) ([]model.CartEntry, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.cartsTable),
		KeyConditionExpression: aws.String("user_email = :ue"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ue": &types.AttributeValueMemberS{Value: userEmail},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query cart entries: %w", err)
	}

	entries := make([]model.CartEntry, 0, len(result.Items))
	for _, item := range result.Items {
		var de dynamoCartEntry
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			continue
		}
		addedAt, _ := time.Parse(time.RFC3339Nano, de.AddedAt)
		entries = append(entries, model.CartEntry{
			ProductID: de.ProductID,
			Quantity:  de.Quantity,
			AddedAt:   addedAt,
		})
	}
	return entries, nil
}

func (s *DynamoStore) AddEntry(ctx context.Context, userEmail string, entry model.CartEntry) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.cartsTable),
		Key: map[string]types.AttributeValue{
			"user_email": &types.AttributeValueMemberS{Value: userEmail},
			"product_id": &types.AttributeValueMemberS{Value: entry.ProductID},
		},
		UpdateExpression: aws.String("ADD quantity :q SET added_at = if_not_exists(added_at, :at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", entry.Quantity)},
			":at": &types.AttributeValueMemberS{Value: entry.AddedAt.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add cart entry: %w", err)
	}
	return nil
}

func (s *DynamoStore) SetEntryQuantity(ctx context.Context, userEmail, productID string, quantity int) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.cartsTable),
		Key: map[string]types.AttributeValue{
			"user_email": &types.AttributeValueMemberS{Value: userEmail},
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
		UpdateExpression:    aws.String("SET quantity = :q"),
		ConditionExpression: aws.String("attribute_exists(user_email)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", quantity)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to set cart quantity: %w", err)
	}
	return nil
}

func (s *DynamoStore) RemoveEntry(ctx context.Context, userEmail, productID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.cartsTable),
		Key: map[string]types.AttributeValue{
			"user_email": &types.AttributeValueMemberS{Value: userEmail},
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to remove cart entry: %w", err)
	}
	return nil
}

func (s *DynamoStore) Clear(ctx context.Context, userEmail string) error {
	entries, err := s.Entries(ctx, userEmail)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := s.RemoveEntry(ctx, userEmail, entry.ProductID); err != nil {
			return err
		}
	}
	return nil
}

// Order operations

type dynamoOrder struct {
	ID              string `dynamodbav:"id"`
	OrderNumber     string `dynamodbav:"order_number"`
	UserEmail       string `dynamodbav:"user_email"`
	UserName        string `dynamodbav:"user_name"`
	Items           string `dynamodbav:"items"`
	TotalAmount     int64  `dynamodbav:"total_amount"`
	ShippingAddress string `dynamodbav:"shipping_address"`
	PaymentMethod   string `dynamodbav:"payment_method"`
	Status          string `dynamodbav:"status"`
	CreatedAt       string `dynamodbav:"created_at"`
	UpdatedAt       string `dynamodbav:"updated_at"`
	ConfirmedAt     string `dynamodbav:"confirmed_at,omitempty"`
	ProcessingAt    string `dynamodbav:"processing_at,omitempty"`
	ShippedAt       string `dynamodbav:"shipped_at,omitempty"`
	DeliveredAt     string `dynamodbav:"delivered_at,omitempty"`
	CancelledAt     string `dynamodbav:"cancelled_at,omitempty"`
	GSI1PK          string `dynamodbav:"gsi1pk"`
}

func (s *DynamoStore) Insert(ctx context.Context, o *model.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	item := dynamoOrder{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserEmail:       o.UserEmail,
		UserName:        o.UserName,
		Items:           string(itemsJSON),
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:       o.UpdatedAt.Format(time.RFC3339Nano),
		GSI1PK:          "ORDERS", // fixed value so ListAll can use GSI1
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.ordersTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put order: %w", err)
	}
	return nil
}

func (s *DynamoStore) Find(ctx context.Context, id string) (*model.Order, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.ordersTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	return unmarshalDynamoOrder(result.Item)
}

// UpdateStatus is a compare-and-set: the condition expression requires the
// item to still carry the from status, so of two racing transitions only one
// write lands. A failed condition is disambiguated with a follow-up read.
func (s *DynamoStore) UpdateStatus(ctx context.Context, id string, from, to model.OrderStatus, at time.Time) error {
	update := "SET #st = :s, updated_at = :t"
	if col, ok := statusColumns[to]; ok {
		update += ", " + col + " = :t"
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.ordersTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String(update),
		ConditionExpression: aws.String("attribute_exists(id) AND #st = :old"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":   &types.AttributeValueMemberS{Value: string(to)},
			":old": &types.AttributeValueMemberS{Value: string(from)},
			":t":   &types.AttributeValueMemberS{Value: at.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if _, findErr := s.Find(ctx, id); errors.Is(findErr, ErrNotFound) {
				return ErrNotFound
			}
			return ErrStatusConflict
		}
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

func (s *DynamoStore) ListByUser(ctx context.Context, userEmail string) ([]*model.Order, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.ordersTable),
		IndexName:              aws.String("user_email-index"),
		KeyConditionExpression: aws.String("user_email = :ue"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ue": &types.AttributeValueMemberS{Value: userEmail},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return unmarshalDynamoOrders(result.Items)
}

func (s *DynamoStore) ListAll(ctx context.Context) ([]*model.Order, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.ordersTable),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "ORDERS"},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return unmarshalDynamoOrders(result.Items)
}

func unmarshalDynamoOrders(items []map[string]types.AttributeValue) ([]*model.Order, error) {
	orders := make([]*model.Order, 0, len(items))
	for _, item := range items {
		o, err := unmarshalDynamoOrder(item)
		if err != nil {
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func unmarshalDynamoOrder(item map[string]types.AttributeValue) (*model.Order, error) {
	var do dynamoOrder
	if err := attributevalue.UnmarshalMap(item, &do); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}

	var items []model.OrderItem
	if err := json.Unmarshal([]byte(do.Items), &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, do.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, do.UpdatedAt)

	return &model.Order{
		ID:              do.ID,
		OrderNumber:     do.OrderNumber,
		UserEmail:       do.UserEmail,
		UserName:        do.UserName,
		Items:           items,
		TotalAmount:     do.TotalAmount,
		ShippingAddress: do.ShippingAddress,
		PaymentMethod:   do.PaymentMethod,
		Status:          model.OrderStatus(do.Status),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		ConfirmedAt:     parseOptionalTime(do.ConfirmedAt),
		ProcessingAt:    parseOptionalTime(do.ProcessingAt),
		ShippedAt:       parseOptionalTime(do.ShippedAt),
		DeliveredAt:     parseOptionalTime(do.DeliveredAt),
		CancelledAt:     parseOptionalTime(do.CancelledAt),
	}, nil
}

func parseOptionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

// User operations

type dynamoUser struct {
	Email        string `dynamodbav:"email"`
	ID           string `dynamodbav:"id"`
	PasswordHash string `dynamodbav:"password_hash"`
	Name         string `dynamodbav:"name"`
	Role         string `dynamodbav:"role"`
	IsActive     bool   `dynamodbav:"is_active"`
	CreatedAt    string `dynamodbav:"created_at"`
	UpdatedAt    string `dynamodbav:"updated_at"`
}

func (s *DynamoStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.usersTable),
		Key: map[string]types.AttributeValue{
			"email": &types.AttributeValueMemberS{Value: email},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var du dynamoUser
	if err := attributevalue.UnmarshalMap(result.Item, &du); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, du.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, du.UpdatedAt)
	return &model.User{
		ID:           du.ID,
		Email:        du.Email,
		PasswordHash: du.PasswordHash,
		Name:         du.Name,
		Role:         du.Role,
		IsActive:     du.IsActive,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func (s *DynamoStore) Put(ctx context.Context, u *model.User) error {
	item := dynamoUser{
		Email:        u.Email,
		ID:           u.ID,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Role:         u.Role,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:    u.UpdatedAt.Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.usersTable),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}
