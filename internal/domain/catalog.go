package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// VariantStatus is the sale status of a variant.
type VariantStatus string

const (
	VariantStatusActive   VariantStatus = "active"
	VariantStatusInactive VariantStatus = "inactive"
)

// Product is a catalog product. Images live in a separate fixed-slot row
// (see ProductImageSet) keyed by product id.
type Product struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Variant is a sellable configuration of a product with its own price,
// quantity, and status.
type Variant struct {
	ID        int64
	ProductID int64
	Price     decimal.Decimal
	Quantity  int32
	Status    VariantStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SpecValue pairs a specification with a concrete value, e.g. (RAM, "16GB").
type SpecValue struct {
	SpecificationID int64  `json:"specificationId"`
	Value           string `json:"value"`
}

// VariantAttribute is a resolved specification/value assignment on a
// variant, joined with the specification name for display.
type VariantAttribute struct {
	SpecificationID int64
	Name            string
	Value           string
}

// VariantDetail is a variant together with its attribute assignments,
// as served to the storefront.
type VariantDetail struct {
	Variant
	Attributes []VariantAttribute
}

// ImageBuffer is a validated in-memory image: raw bytes plus the sniffed
// content type.
type ImageBuffer struct {
	Data        []byte
	ContentType string
}

// ProductImageSet is the fixed six-slot image row for a product:
// one main image and up to five thumbnails. Empty slots have nil Data.
type ProductImageSet struct {
	ProductID  int64
	Main       ImageBuffer
	Thumbnails [5]ImageBuffer
}

// ImagePatch describes a partial update of a ProductImageSet. A nil slot
// means "keep whatever is stored"; slots are merged independently.
type ImagePatch struct {
	Main       *ImageBuffer
	Thumbnails [5]*ImageBuffer
}

// Empty reports whether the patch carries no new image at all.
func (p ImagePatch) Empty() bool {
	if p.Main != nil {
		return false
	}
	for _, t := range p.Thumbnails {
		if t != nil {
			return false
		}
	}
	return true
}

// VariantUpsert is the validated input for creating or updating a variant.
// A nil VariantID means create; a non-nil one means update in place.
type VariantUpsert struct {
	VariantID      *int64
	ProductID      int64
	Price          decimal.Decimal
	Quantity       int32
	Status         VariantStatus
	Specifications []SpecValue
	Images         []ImageBuffer
}

// VariantUpsertResult reports the outcome of a variant upsert.
type VariantUpsertResult struct {
	VariantID int64
	Created   bool
}

// CreateProductParams holds the fields needed to create a product.
type CreateProductParams struct {
	Name        string
	Slug        string
	Description string
	Status      string
}

// VariantStore persists variants and their attribute and image children.
// Each mutating call is a single all-or-nothing transaction.
type VariantStore interface {
	// Upsert creates or updates a variant, fully replacing its attribute
	// combinations and, when params.Images is non-empty, its image set.
	Upsert(ctx context.Context, params VariantUpsert) (VariantUpsertResult, error)

	// ListByProduct returns all variants of a product with their attributes.
	ListByProduct(ctx context.Context, productID int64) ([]VariantDetail, error)

	// Images returns the stored images for a variant.
	Images(ctx context.Context, variantID int64) ([]ImageBuffer, error)
}

// ProductStore persists products and their fixed-slot image rows.
type ProductStore interface {
	Create(ctx context.Context, params CreateProductParams) (Product, error)
	GetByID(ctx context.Context, id int64) (Product, error)

	// MergeImages applies an ImagePatch to the product's image row inside a
	// single transaction. Returns true when an UPDATE was actually issued,
	// false when every slot was unchanged and the write was skipped.
	MergeImages(ctx context.Context, productID int64, patch ImagePatch) (bool, error)

	// GetImages returns the product's image row. Slots never written are
	// returned with nil Data.
	GetImages(ctx context.Context, productID int64) (ProductImageSet, error)
}
