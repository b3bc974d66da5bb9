// Package storefront exposes the cached catalog read API.
package storefront

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pelicanworks/trove/internal/domain"
	"github.com/pelicanworks/trove/internal/service"
)

// ProductReader serves product detail views.
type ProductReader interface {
	GetDetail(ctx context.Context, productID int64) (service.ProductView, bool, error)
}

// VariantLister serves variant list views and variant image bytes.
type VariantLister interface {
	List(ctx context.Context, productID int64) ([]service.VariantView, bool, error)
	Image(ctx context.Context, variantID int64) (domain.ImageBuffer, error)
}

// Handler serves the storefront read endpoints.
type Handler struct {
	products ProductReader
	variants VariantLister
	log      zerolog.Logger
}

// NewHandler wires the storefront handler.
func NewHandler(products ProductReader, variants VariantLister, log zerolog.Logger) *Handler {
	return &Handler{
		products: products,
		variants: variants,
		log:      log.With().Str("component", "storefront_handler").Logger(),
	}
}

// Register mounts the storefront routes on g.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/products/:id", h.GetProduct)
	g.GET("/products/:id/variants", h.ListVariants)
	g.GET("/variants/:id/image", h.GetVariantImage)
}

// GetProduct returns a product detail view. The X-Cache header reports
// whether the response came from the render cache.
func (h *Handler) GetProduct(c echo.Context) error {
	productID, err := parseProductID(c)
	if err != nil {
		return err
	}

	view, hit, err := h.products.GetDetail(c.Request().Context(), productID)
	if err != nil {
		return err
	}

	setCacheHeader(c, hit)
	return c.JSON(http.StatusOK, view)
}

// ListVariants returns the variants of a product with their attributes.
func (h *Handler) ListVariants(c echo.Context) error {
	productID, err := parseProductID(c)
	if err != nil {
		return err
	}

	views, hit, err := h.variants.List(c.Request().Context(), productID)
	if err != nil {
		return err
	}

	setCacheHeader(c, hit)
	return c.JSON(http.StatusOK, views)
}

// GetVariantImage serves the raw bytes of a variant's primary image.
func (h *Handler) GetVariantImage(c echo.Context) error {
	variantID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || variantID <= 0 {
		return domain.Invalid("storefront.variant", "variant id must be a positive integer")
	}

	img, err := h.variants.Image(c.Request().Context(), variantID)
	if err != nil {
		return err
	}

	return c.Blob(http.StatusOK, img.ContentType, img.Data)
}

func parseProductID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid("storefront.product", "product id must be a positive integer")
	}
	return id, nil
}

func setCacheHeader(c echo.Context, hit bool) {
	if hit {
		c.Response().Header().Set("X-Cache", "HIT")
	} else {
		c.Response().Header().Set("X-Cache", "MISS")
	}
}
