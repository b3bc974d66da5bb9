// Package events publishes cache-invalidation signals for catalog writes.
// Other replicas and render layers subscribe to drop their stale copies;
// publishing is best-effort and never fails the originating request.
package events

import (
	"context"
	"time"
)

// Subjects for catalog invalidation events.
const (
	SubjectVariantUpdated = "catalog.variant.updated"
	SubjectProductUpdated = "catalog.product.updated"
)

// Kinds of catalog entities an event can refer to.
const (
	KindProduct = "product"
	KindVariant = "variant"
)

// InvalidationEvent tells subscribers that cached views of a product (and
// optionally one of its variants) are stale.
type InvalidationEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ProductID int64     `json:"product_id"`
	VariantID int64     `json:"variant_id,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher emits invalidation events.
type Publisher interface {
	Publish(ctx context.Context, subject string, event InvalidationEvent) error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, string, InvalidationEvent) error {
	return nil
}
