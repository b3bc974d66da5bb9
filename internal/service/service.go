// Package service orchestrates the catalog workflows: validate input,
// normalize images, run the store transaction, then invalidate cached
// views and emit an invalidation event.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pelicanworks/trove/internal/cache"
	"github.com/pelicanworks/trove/internal/domain"
	"github.com/pelicanworks/trove/internal/events"
)

// ImageNormalizer converts raw image inputs into validated buffers,
// returning nil for anything that should leave stored images untouched.
type ImageNormalizer interface {
	ToBuffer(in domain.ImageInput) *domain.ImageBuffer
}

func productKey(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}

func variantsKey(productID int64) string {
	return fmt.Sprintf("product:%d:variants", productID)
}

// invalidate drops the cached views for a product and publishes the
// invalidation event. Publish failures are logged, never surfaced: the
// write already committed and local caches are already clean.
func invalidate(ctx context.Context, c cache.Cache, pub events.Publisher, log zerolog.Logger, subject string, productID, variantID int64) {
	c.Invalidate(productKey(productID))
	c.Invalidate(variantsKey(productID))

	kind := events.KindProduct
	if variantID > 0 {
		kind = events.KindVariant
	}

	err := pub.Publish(ctx, subject, events.InvalidationEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		ProductID: productID,
		VariantID: variantID,
		At:        time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Int64("product_id", productID).
			Msg("failed to publish invalidation event")
	}
}
