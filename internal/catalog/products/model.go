package products

import (
	"time"

	"github.com/storedash/storedash/internal/catalog/shared"
)

// DocType is the document type of stored products.
const DocType = "product"

// Product is the API view of a product document.
type Product struct {
	ID                 string    `json:"_id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Price              float64   `json:"price"`
	Description        string    `json:"description"`
	DiscountPercentage float64   `json:"discountPercentage"`
	IsFeaturedProduct  bool      `json:"isFeaturedProduct"`
	StockLevel         int       `json:"stockLevel"`
	Category           string    `json:"category,omitempty"`
	CategoryID         string    `json:"categoryId,omitempty"`
	ImagePath          string    `json:"imagePath"`
	CreatedAt          time.Time `json:"_createdAt"`
}

// Input describes a product to create. Missing numeric and boolean fields
// default to their zero values.
type Input struct {
	Name               string  `json:"name" validate:"required"`
	Price              float64 `json:"price" validate:"gte=0"`
	Description        string  `json:"description"`
	DiscountPercentage float64 `json:"discountPercentage" validate:"gte=0,lte=100"`
	IsFeaturedProduct  bool    `json:"isFeaturedProduct"`
	StockLevel         int     `json:"stockLevel" validate:"gte=0"`
	ImagePath          string  `json:"imagePath"`
	Slug               string  `json:"slug"`
	CategoryID         string  `json:"categoryId"`
}

// BulkItem is one element of a bulk import payload.
type BulkItem = Input

// Update lists the fields to change. Nil fields are left untouched.
type Update struct {
	Name               *string  `json:"name" validate:"omitempty,min=1"`
	Price              *float64 `json:"price" validate:"omitempty,gte=0"`
	Description        *string  `json:"description"`
	DiscountPercentage *float64 `json:"discountPercentage" validate:"omitempty,gte=0,lte=100"`
	IsFeaturedProduct  *bool    `json:"isFeaturedProduct"`
	StockLevel         *int     `json:"stockLevel" validate:"omitempty,gte=0"`
	ImagePath          *string  `json:"imagePath"`
}

func (u Update) fields() map[string]any {
	set := map[string]any{}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Price != nil {
		set["price"] = *u.Price
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.DiscountPercentage != nil {
		set["discountPercentage"] = *u.DiscountPercentage
	}
	if u.IsFeaturedProduct != nil {
		set["isFeaturedProduct"] = *u.IsFeaturedProduct
	}
	if u.StockLevel != nil {
		set["stockLevel"] = *u.StockLevel
	}
	if u.ImagePath != nil {
		set["imagePath"] = *u.ImagePath
	}
	return set
}

// body is the stored JSON shape of a product document.
type body struct {
	Name               string            `json:"name"`
	Slug               shared.SlugField  `json:"slug"`
	Price              float64           `json:"price"`
	Description        string            `json:"description"`
	DiscountPercentage float64           `json:"discountPercentage"`
	IsFeaturedProduct  bool              `json:"isFeaturedProduct"`
	StockLevel         int               `json:"stockLevel"`
	ImagePath          string            `json:"imagePath"`
	Category           *shared.Reference `json:"category,omitempty"`
}

func newBody(in Input, slug string) body {
	b := body{
		Name:               in.Name,
		Slug:               shared.SlugField{Current: slug},
		Price:              in.Price,
		Description:        in.Description,
		DiscountPercentage: in.DiscountPercentage,
		IsFeaturedProduct:  in.IsFeaturedProduct,
		StockLevel:         in.StockLevel,
		ImagePath:          in.ImagePath,
	}
	if in.CategoryID != "" {
		b.Category = shared.NewReference(in.CategoryID)
	}
	return b
}
