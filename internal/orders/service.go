// Package orders lists customer orders and moves them through their status
// lifecycle.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storedash/storedash/internal/docstore"
	"github.com/storedash/storedash/internal/platform/httpx"
)

// DocType is the document type of stored orders.
const DocType = "order"

// Order statuses.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
)

// Statuses lists every status in lifecycle order.
var Statuses = []string{StatusPending, StatusPaid, StatusShipped, StatusDelivered}

// Item is one order line.
type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Image    string  `json:"image,omitempty"`
}

// Order is the API view of an order document.
type Order struct {
	ID        string         `json:"_id"`
	UserEmail string         `json:"userEmail"`
	Total     float64        `json:"total"`
	Status    string         `json:"status"`
	Items     []Item         `json:"items"`
	Shipping  map[string]any `json:"shipping,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// StatusChange is the body of a status update.
type StatusChange struct {
	ID     string `json:"_id" validate:"required"`
	Status string `json:"status" validate:"required,oneof=pending paid shipped delivered"`
}

// Invalidator is notified when order data that feeds aggregates changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

type body struct {
	UserEmail string         `json:"userEmail"`
	Total     float64        `json:"total"`
	Status    string         `json:"status"`
	Items     []Item         `json:"items"`
	Shipping  map[string]any `json:"shipping,omitempty"`
}

// Service exposes order operations.
type Service struct {
	store       docstore.Store
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService constructs a Service. invalidator may be nil.
func NewService(store docstore.Store, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, invalidator: invalidator, logger: logger}
}

// List returns every order, newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	docs, err := s.store.Query(ctx, docstore.Filter{Type: DocType, Newest: true})
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %w", httpx.ErrUpstream, err)
	}
	out := make([]Order, 0, len(docs))
	for _, doc := range docs {
		o, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Get returns order id.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	doc, err := s.store.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) || (err == nil && doc.Type != DocType) {
		return Order{}, fmt.Errorf("%w: order %q", httpx.ErrNotFound, id)
	}
	if err != nil {
		return Order{}, fmt.Errorf("%w: get order: %w", httpx.ErrUpstream, err)
	}
	return decode(doc)
}

// Create stores a new order with status pending unless one is supplied.
func (s *Service) Create(ctx context.Context, o Order) (Order, error) {
	if o.Status == "" {
		o.Status = StatusPending
	}
	if err := httpx.Validator.Var(o.Status, "oneof=pending paid shipped delivered"); err != nil {
		return Order{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, o.Status)
	}
	raw, err := json.Marshal(body{UserEmail: o.UserEmail, Total: o.Total, Status: o.Status, Items: o.Items, Shipping: o.Shipping})
	if err != nil {
		return Order{}, err
	}
	doc, err := s.store.Create(ctx, docstore.Document{ID: o.ID, Type: DocType, Body: raw})
	if err != nil {
		return Order{}, fmt.Errorf("%w: create order: %w", httpx.ErrUpstream, err)
	}
	s.invalidate(ctx)
	return decode(doc)
}

// UpdateStatus moves an order to a new status.
func (s *Service) UpdateStatus(ctx context.Context, change StatusChange) (Order, error) {
	if err := httpx.Validator.Struct(change); err != nil {
		return Order{}, httpx.ValidationError(err)
	}
	if _, err := s.Get(ctx, change.ID); err != nil {
		return Order{}, err
	}
	doc, err := s.store.Patch(ctx, change.ID, map[string]any{"status": change.Status})
	if errors.Is(err, docstore.ErrNotFound) {
		return Order{}, fmt.Errorf("%w: order %q", httpx.ErrNotFound, change.ID)
	}
	if err != nil {
		return Order{}, fmt.Errorf("%w: update order: %w", httpx.ErrUpstream, err)
	}
	s.invalidate(ctx)
	return decode(doc)
}

// Count returns the number of stored orders.
func (s *Service) Count(ctx context.Context) (int, error) {
	docs, err := s.store.Query(ctx, docstore.Filter{Type: DocType})
	if err != nil {
		return 0, fmt.Errorf("%w: count orders: %w", httpx.ErrUpstream, err)
	}
	return len(docs), nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("invalidate order aggregates", slog.Any("error", err))
	}
}

func decode(doc docstore.Document) (Order, error) {
	var b body
	if err := json.Unmarshal(doc.Body, &b); err != nil {
		return Order{}, fmt.Errorf("%w: decode order %s: %w", httpx.ErrUpstream, doc.ID, err)
	}
	return Order{
		ID:        doc.ID,
		UserEmail: b.UserEmail,
		Total:     b.Total,
		Status:    b.Status,
		Items:     b.Items,
		Shipping:  b.Shipping,
		CreatedAt: doc.CreatedAt,
	}, nil
}
