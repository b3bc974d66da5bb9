package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pelicanworks/trove/internal/cache"
	"github.com/pelicanworks/trove/internal/domain"
	"github.com/pelicanworks/trove/internal/events"
	"github.com/pelicanworks/trove/internal/form"
)

// VariantService handles variant upserts and the cached variant listing.
type VariantService struct {
	store      domain.VariantStore
	validator  *form.Validator
	normalizer ImageNormalizer
	cache      cache.Cache
	publisher  events.Publisher
	ttl        time.Duration
	log        zerolog.Logger
}

// NewVariantService wires a VariantService.
func NewVariantService(
	store domain.VariantStore,
	validator *form.Validator,
	normalizer ImageNormalizer,
	c cache.Cache,
	publisher events.Publisher,
	ttl time.Duration,
	log zerolog.Logger,
) *VariantService {
	return &VariantService{
		store:      store,
		validator:  validator,
		normalizer: normalizer,
		cache:      c,
		publisher:  publisher,
		ttl:        ttl,
		log:        log.With().Str("component", "variant_service").Logger(),
	}
}

// Upsert validates the parsed form, normalizes any uploaded images, and
// runs the store transaction. Validation failures are returned before any
// transactional work begins. On success, cached views of the product are
// invalidated and an event is published.
func (s *VariantService) Upsert(ctx context.Context, f form.VariantForm) (domain.VariantUpsertResult, error) {
	if err := s.validator.VariantForm(f); err != nil {
		return domain.VariantUpsertResult{}, err
	}

	params := domain.VariantUpsert{
		VariantID:      f.VariantID,
		ProductID:      f.ProductID,
		Price:          f.Price,
		Quantity:       int32(f.Quantity),
		Status:         domain.VariantStatus(f.Status),
		Specifications: f.Specifications,
	}

	// A rejected upload is dropped, not fatal; if every upload is
	// rejected the prior image set stays in place.
	for _, in := range f.Images {
		if buf := s.normalizer.ToBuffer(in); buf != nil {
			params.Images = append(params.Images, *buf)
		}
	}

	res, err := s.store.Upsert(ctx, params)
	if err != nil {
		return domain.VariantUpsertResult{}, err
	}

	s.log.Info().
		Int64("product_id", f.ProductID).
		Int64("variant_id", res.VariantID).
		Bool("created", res.Created).
		Int("images", len(params.Images)).
		Msg("variant upserted")

	invalidate(ctx, s.cache, s.publisher, s.log, events.SubjectVariantUpdated, f.ProductID, res.VariantID)
	return res, nil
}

// VariantView is the wire shape of a variant on the storefront API.
type VariantView struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"productId"`
	Price      string          `json:"price"`
	Quantity   int32           `json:"quantity"`
	Status     string          `json:"status"`
	Attributes []AttributeView `json:"attributes"`
}

// AttributeView is one resolved specification/value pair.
type AttributeView struct {
	SpecificationID int64  `json:"specificationId"`
	Name            string `json:"name"`
	Value           string `json:"value"`
}

// List returns the variants of a product, served from the render cache
// when a live entry exists. The second return reports a cache hit.
func (s *VariantService) List(ctx context.Context, productID int64) ([]VariantView, bool, error) {
	key := variantsKey(productID)

	if raw, ok := s.cache.Get(key); ok {
		var views []VariantView
		if err := json.Unmarshal(raw, &views); err == nil {
			return views, true, nil
		}
		// A corrupt entry falls through to a fresh read.
		s.cache.Invalidate(key)
	}

	details, err := s.store.ListByProduct(ctx, productID)
	if err != nil {
		return nil, false, err
	}

	views := make([]VariantView, len(details))
	for i, d := range details {
		attrs := make([]AttributeView, len(d.Attributes))
		for j, a := range d.Attributes {
			attrs[j] = AttributeView{SpecificationID: a.SpecificationID, Name: a.Name, Value: a.Value}
		}
		views[i] = VariantView{
			ID:         d.ID,
			ProductID:  d.ProductID,
			Price:      d.Price.String(),
			Quantity:   d.Quantity,
			Status:     string(d.Status),
			Attributes: attrs,
		}
	}

	if raw, err := json.Marshal(views); err == nil {
		s.cache.Set(key, raw, s.ttl)
	}

	return views, false, nil
}

// Image returns the primary stored image for a variant. Image bytes are
// served straight from the store; they change only through full-set
// replacement, so the render cache is not involved.
func (s *VariantService) Image(ctx context.Context, variantID int64) (domain.ImageBuffer, error) {
	images, err := s.store.Images(ctx, variantID)
	if err != nil {
		return domain.ImageBuffer{}, err
	}
	if len(images) == 0 {
		return domain.ImageBuffer{}, domain.NotFound("variant.image", "variant image", strconv.FormatInt(variantID, 10))
	}
	return images[0], nil
}
