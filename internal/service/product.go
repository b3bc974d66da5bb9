package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/pelicanworks/trove/internal/cache"
	"github.com/pelicanworks/trove/internal/domain"
	"github.com/pelicanworks/trove/internal/events"
	"github.com/pelicanworks/trove/internal/form"
)

// ProductService handles product creation, the image column-merge
// workflow, and the cached product detail view.
type ProductService struct {
	store      domain.ProductStore
	normalizer ImageNormalizer
	cache      cache.Cache
	publisher  events.Publisher
	ttl        time.Duration
	log        zerolog.Logger
}

// NewProductService wires a ProductService.
func NewProductService(
	store domain.ProductStore,
	normalizer ImageNormalizer,
	c cache.Cache,
	publisher events.Publisher,
	ttl time.Duration,
	log zerolog.Logger,
) *ProductService {
	return &ProductService{
		store:      store,
		normalizer: normalizer,
		cache:      c,
		publisher:  publisher,
		ttl:        ttl,
		log:        log.With().Str("component", "product_service").Logger(),
	}
}

// Create inserts a new product (with its placeholder image row).
func (s *ProductService) Create(ctx context.Context, params domain.CreateProductParams) (domain.Product, error) {
	if params.Name == "" {
		return domain.Product{}, domain.NewValidationError("product.create", "name", "is required")
	}
	if params.Slug == "" {
		return domain.Product{}, domain.NewValidationError("product.create", "slug", "is required")
	}

	p, err := s.store.Create(ctx, params)
	if err != nil {
		return domain.Product{}, err
	}

	s.log.Info().Int64("product_id", p.ID).Str("slug", p.Slug).Msg("product created")
	return p, nil
}

// UpdateImages merges the supplied image slots into the product's image
// row. Each slot is normalized independently; a slot that normalizes to
// nil (absent, pass-through string, or rejected upload) keeps its stored
// value. When no slot actually changes, no UPDATE is issued at all.
// Returns true when the row was written.
func (s *ProductService) UpdateImages(ctx context.Context, productID int64, f form.ProductImagesForm) (bool, error) {
	patch := domain.ImagePatch{
		Main: s.normalizer.ToBuffer(f.Main),
	}

	// Pad to the fixed five slots; entries past the fifth are ignored.
	for i := 0; i < len(f.Thumbnails) && i < len(patch.Thumbnails); i++ {
		patch.Thumbnails[i] = s.normalizer.ToBuffer(f.Thumbnails[i])
	}

	updated, err := s.store.MergeImages(ctx, productID, patch)
	if err != nil {
		return false, err
	}

	if !updated {
		s.log.Debug().Int64("product_id", productID).Msg("product image update was a no-op")
		return false, nil
	}

	s.log.Info().Int64("product_id", productID).Msg("product images updated")
	invalidate(ctx, s.cache, s.publisher, s.log, events.SubjectProductUpdated, productID, 0)
	return true, nil
}

// ProductView is the wire shape of a product on the storefront API.
// Image slots are reported by presence, not inlined; the bytes are served
// from their own endpoints.
type ProductView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Status      string `json:"status"`
	HasMain     bool   `json:"hasMainImage"`
	Thumbnails  int    `json:"thumbnailCount"`
}

// GetDetail returns a product with its image slot summary, served from
// the render cache when a live entry exists.
func (s *ProductService) GetDetail(ctx context.Context, productID int64) (ProductView, bool, error) {
	key := productKey(productID)

	if raw, ok := s.cache.Get(key); ok {
		var view ProductView
		if err := json.Unmarshal(raw, &view); err == nil {
			return view, true, nil
		}
		s.cache.Invalidate(key)
	}

	p, err := s.store.GetByID(ctx, productID)
	if err != nil {
		return ProductView{}, false, err
	}

	images, err := s.store.GetImages(ctx, productID)
	if err != nil {
		return ProductView{}, false, err
	}

	view := ProductView{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Status:      p.Status,
		HasMain:     len(images.Main.Data) > 0,
	}
	for _, t := range images.Thumbnails {
		if len(t.Data) > 0 {
			view.Thumbnails++
		}
	}

	if raw, err := json.Marshal(view); err == nil {
		s.cache.Set(key, raw, s.ttl)
	}

	return view, false, nil
}
