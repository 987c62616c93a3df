// Package products manages catalog products, including atomic bulk imports.
package products

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/storedash/storedash/internal/catalog/shared"
	"github.com/storedash/storedash/internal/docstore"
	"github.com/storedash/storedash/internal/platform/httpx"
)

// CategoryTitles resolves category references for display.
type CategoryTitles interface {
	Titles(ctx context.Context) (map[string]string, error)
}

// reservedSlugs are admin page paths under /products that a product slug
// would shadow.
var reservedSlugs = map[string]bool{"bulk": true, "new": true}

// SlugFunc derives a slug from a name with an n character random suffix.
type SlugFunc func(name string, n int) (string, error)

// Service exposes product operations over the document store.
type Service struct {
	store      docstore.Store
	categories CategoryTitles
	newSlug    SlugFunc
}

// NewService constructs a Service. categories may be nil, in which case
// product listings carry no category title.
func NewService(store docstore.Store, categories CategoryTitles) *Service {
	return &Service{store: store, categories: categories, newSlug: shared.NewSlug}
}

// WithSlugFunc overrides slug generation.
func (s *Service) WithSlugFunc(fn SlugFunc) *Service {
	s.newSlug = fn
	return s
}

// List returns every product, newest first.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	docs, err := s.store.Query(ctx, docstore.Filter{Type: DocType, Newest: true})
	if err != nil {
		return nil, fmt.Errorf("%w: list products: %w", httpx.ErrUpstream, err)
	}
	titles, err := s.titles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(docs))
	for _, doc := range docs {
		p, err := decode(doc, titles)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Count returns the number of stored products.
func (s *Service) Count(ctx context.Context) (int, error) {
	docs, err := s.store.Query(ctx, docstore.Filter{Type: DocType})
	if err != nil {
		return 0, fmt.Errorf("%w: count products: %w", httpx.ErrUpstream, err)
	}
	return len(docs), nil
}

// GetBySlug returns the product stored under slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Product, error) {
	doc, err := s.find(ctx, slug)
	if err != nil {
		return Product{}, err
	}
	titles, err := s.titles(ctx)
	if err != nil {
		return Product{}, err
	}
	return decode(doc, titles)
}

// Create stores one product. Without an explicit slug one is derived from the
// name plus a short random suffix.
func (s *Service) Create(ctx context.Context, in Input) (Product, error) {
	if err := validateInput(in); err != nil {
		return Product{}, err
	}
	doc, err := s.document(in, shared.SingleSuffixLen)
	if err != nil {
		return Product{}, err
	}
	created, err := s.store.Create(ctx, doc)
	if errors.Is(err, docstore.ErrConflict) {
		return Product{}, fmt.Errorf("%w: product slug %q already exists", httpx.ErrDuplicate, doc.Slug)
	}
	if err != nil {
		return Product{}, fmt.Errorf("%w: create product: %w", httpx.ErrUpstream, err)
	}
	return decode(created, nil)
}

// Update patches the supplied fields of the product stored under slug.
func (s *Service) Update(ctx context.Context, slug string, u Update) (Product, error) {
	if err := httpx.Validator.Struct(u); err != nil {
		return Product{}, httpx.ValidationError(err)
	}
	doc, err := s.find(ctx, slug)
	if err != nil {
		return Product{}, err
	}
	set := u.fields()
	if len(set) == 0 {
		return decode(doc, nil)
	}
	updated, err := s.store.Patch(ctx, doc.ID, set)
	if errors.Is(err, docstore.ErrNotFound) {
		return Product{}, fmt.Errorf("%w: product %q", httpx.ErrNotFound, slug)
	}
	if err != nil {
		return Product{}, fmt.Errorf("%w: update product: %w", httpx.ErrUpstream, err)
	}
	return decode(updated, nil)
}

// Delete removes the product stored under slug.
func (s *Service) Delete(ctx context.Context, slug string) error {
	doc, err := s.find(ctx, slug)
	if err != nil {
		return err
	}
	err = s.store.Delete(ctx, doc.ID)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: product %q", httpx.ErrNotFound, slug)
	}
	if err != nil {
		return fmt.Errorf("%w: delete product: %w", httpx.ErrUpstream, err)
	}
	return nil
}

// BulkImport creates every product described by raw in one transaction, or
// none of them. raw must be a JSON array; anything else is rejected before the
// store is touched. The store's transaction result is returned unchanged.
func (s *Service) BulkImport(ctx context.Context, raw json.RawMessage) (docstore.TransactionResult, error) {
	items, err := decodeBulk(raw)
	if err != nil {
		return docstore.TransactionResult{}, err
	}
	tx := docstore.NewTransaction()
	for i, item := range items {
		doc, err := s.document(item, shared.BulkSuffixLen)
		if err != nil {
			return docstore.TransactionResult{}, fmt.Errorf("item %d: %w", i, err)
		}
		tx.Create(doc)
	}
	result, err := s.store.Commit(ctx, tx)
	if err != nil {
		return docstore.TransactionResult{}, fmt.Errorf("%w: commit bulk import: %w", httpx.ErrUpstream, err)
	}
	return result, nil
}

func decodeBulk(raw json.RawMessage) ([]BulkItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected an array of products", httpx.ErrValidation)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, fmt.Errorf("%w: expected an array of products", httpx.ErrValidation)
	}
	if len(elems) == 0 {
		return nil, fmt.Errorf("%w: no products supplied", httpx.ErrValidation)
	}
	items := make([]BulkItem, 0, len(elems))
	for i, elem := range elems {
		var item BulkItem
		if err := json.Unmarshal(elem, &item); err != nil {
			return nil, fmt.Errorf("%w: item %d: malformed product", httpx.ErrValidation, i)
		}
		if err := validateInput(item); err != nil {
			return nil, fmt.Errorf("%w: item %d: %s", httpx.ErrValidation, i, httpx.ValidationDetail(err))
		}
		items = append(items, item)
	}
	return items, nil
}

func validateInput(in Input) error {
	if err := httpx.Validator.Struct(in); err != nil {
		return httpx.ValidationError(err)
	}
	if reservedSlugs[in.Slug] {
		return fmt.Errorf("%w: slug %q is reserved", httpx.ErrValidation, in.Slug)
	}
	return nil
}

func (s *Service) document(in Input, suffixLen int) (docstore.Document, error) {
	slug := in.Slug
	if slug == "" {
		var err error
		if slug, err = s.newSlug(in.Name, suffixLen); err != nil {
			return docstore.Document{}, err
		}
	}
	raw, err := json.Marshal(newBody(in, slug))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode product: %w", err)
	}
	return docstore.Document{Type: DocType, Slug: slug, Body: raw}, nil
}

func (s *Service) find(ctx context.Context, slug string) (docstore.Document, error) {
	docs, err := s.store.Query(ctx, docstore.Filter{Type: DocType, Slug: slug, Limit: 1})
	if err != nil {
		return docstore.Document{}, fmt.Errorf("%w: find product: %w", httpx.ErrUpstream, err)
	}
	if len(docs) == 0 {
		return docstore.Document{}, fmt.Errorf("%w: product %q", httpx.ErrNotFound, slug)
	}
	return docs[0], nil
}

func (s *Service) titles(ctx context.Context) (map[string]string, error) {
	if s.categories == nil {
		return nil, nil
	}
	titles, err := s.categories.Titles(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve categories: %w", err)
	}
	return titles, nil
}

func decode(doc docstore.Document, titles map[string]string) (Product, error) {
	var b body
	if err := json.Unmarshal(doc.Body, &b); err != nil {
		return Product{}, fmt.Errorf("%w: decode product %s: %w", httpx.ErrUpstream, doc.ID, err)
	}
	p := Product{
		ID:                 doc.ID,
		Name:               b.Name,
		Slug:               b.Slug.Current,
		Price:              b.Price,
		Description:        b.Description,
		DiscountPercentage: b.DiscountPercentage,
		IsFeaturedProduct:  b.IsFeaturedProduct,
		StockLevel:         b.StockLevel,
		ImagePath:          b.ImagePath,
		CreatedAt:          doc.CreatedAt,
	}
	if b.Category != nil {
		p.CategoryID = b.Category.Ref
		p.Category = titles[b.Category.Ref]
	}
	return p, nil
}
