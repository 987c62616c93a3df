// Package categories manages product categories in the document store.
package categories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/storedash/storedash/internal/catalog/shared"
	"github.com/storedash/storedash/internal/docstore"
	"github.com/storedash/storedash/internal/platform/httpx"
)

// DocType is the document type of stored categories.
const DocType = "category"

// Category is the API view of a category document.
type Category struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"_createdAt"`
}

// Input describes a category to create.
type Input struct {
	Title string `json:"title" validate:"required"`
	Slug  string `json:"slug"`
}

type body struct {
	Title string           `json:"title"`
	Slug  shared.SlugField `json:"slug"`
}

// Service exposes category operations.
type Service struct {
	store docstore.Store
}

// NewService constructs a Service.
func NewService(store docstore.Store) *Service {
	return &Service{store: store}
}

// List returns categories, oldest first.
func (s *Service) List(ctx context.Context) ([]Category, error) {
	docs, err := s.store.Query(ctx, docstore.Filter{Type: DocType})
	if err != nil {
		return nil, fmt.Errorf("%w: list categories: %w", httpx.ErrUpstream, err)
	}
	out := make([]Category, 0, len(docs))
	for _, doc := range docs {
		c, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Titles maps category IDs to titles.
func (s *Service) Titles(ctx context.Context) (map[string]string, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(list))
	for _, c := range list {
		titles[c.ID] = c.Title
	}
	return titles, nil
}

// Create stores a new category. A slug is derived from the title when absent.
func (s *Service) Create(ctx context.Context, in Input) (Category, error) {
	if err := httpx.Validator.Struct(in); err != nil {
		return Category{}, httpx.ValidationError(err)
	}
	slug := in.Slug
	if slug == "" {
		var err error
		if slug, err = shared.NewSlug(in.Title, shared.SingleSuffixLen); err != nil {
			return Category{}, err
		}
	}
	raw, err := json.Marshal(body{Title: in.Title, Slug: shared.SlugField{Current: slug}})
	if err != nil {
		return Category{}, err
	}
	doc, err := s.store.Create(ctx, docstore.Document{Type: DocType, Slug: slug, Body: raw})
	if errors.Is(err, docstore.ErrConflict) {
		return Category{}, fmt.Errorf("%w: category slug %q already exists", httpx.ErrDuplicate, slug)
	}
	if err != nil {
		return Category{}, fmt.Errorf("%w: create category: %w", httpx.ErrUpstream, err)
	}
	return decode(doc)
}

func decode(doc docstore.Document) (Category, error) {
	var b body
	if err := json.Unmarshal(doc.Body, &b); err != nil {
		return Category{}, fmt.Errorf("%w: decode category %s: %w", httpx.ErrUpstream, doc.ID, err)
	}
	return Category{ID: doc.ID, Title: b.Title, Slug: b.Slug.Current, CreatedAt: doc.CreatedAt}, nil
}
