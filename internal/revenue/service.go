// Package revenue aggregates order totals.
package revenue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/storedash/storedash/internal/docstore"
	"github.com/storedash/storedash/internal/platform/httpx"
)

const orderDocType = "order"

// Summary is the revenue aggregate over every stored order.
type Summary struct {
	Total    decimal.Decimal            `json:"total"`
	Orders   int                        `json:"orders"`
	ByStatus map[string]decimal.Decimal `json:"byStatus"`
}

// Service computes revenue summaries.
type Service struct {
	store  docstore.Store
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service. cache may be nil.
func NewService(store docstore.Store, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// Summary returns the revenue aggregate, served from cache when possible.
// Concurrent misses share one computation.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	key, err := s.cache.Key(ctx, "summary")
	if err != nil {
		s.logger.Warn("revenue cache key", slog.Any("error", err))
		return s.compute(ctx)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var out Summary
		err := s.cache.Fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.compute(ctx)
		})
		return out, err
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// Total returns the sum of every order total.
func (s *Service) Total(ctx context.Context) (decimal.Decimal, error) {
	sum, err := s.Summary(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return sum.Total, nil
}

// Bump drops cached aggregates.
func (s *Service) Bump(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

type orderTotals struct {
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status"`
}

func (s *Service) compute(ctx context.Context) (Summary, error) {
	docs, err := s.store.Query(ctx, docstore.Filter{Type: orderDocType})
	if err != nil {
		return Summary{}, fmt.Errorf("%w: load orders: %w", httpx.ErrUpstream, err)
	}
	out := Summary{Total: decimal.Zero, ByStatus: map[string]decimal.Decimal{}}
	for _, doc := range docs {
		var o orderTotals
		if err := json.Unmarshal(doc.Body, &o); err != nil {
			return Summary{}, fmt.Errorf("%w: decode order %s: %w", httpx.ErrUpstream, doc.ID, err)
		}
		out.Total = out.Total.Add(o.Total)
		out.ByStatus[o.Status] = out.ByStatus[o.Status].Add(o.Total)
		out.Orders++
	}
	return out, nil
}
