// Package admin exposes the catalog write API. Variant and image payloads
// arrive as multipart forms so uploads and fields travel together.
package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pelicanworks/trove/internal/domain"
	"github.com/pelicanworks/trove/internal/form"
	"github.com/pelicanworks/trove/internal/middleware"
)

// VariantUpserter runs the variant write workflow.
type VariantUpserter interface {
	Upsert(ctx context.Context, f form.VariantForm) (domain.VariantUpsertResult, error)
}

// ProductWriter runs the product write workflows.
type ProductWriter interface {
	Create(ctx context.Context, params domain.CreateProductParams) (domain.Product, error)
	UpdateImages(ctx context.Context, productID int64, f form.ProductImagesForm) (bool, error)
}

// Handler serves the admin write endpoints.
type Handler struct {
	variants VariantUpserter
	products ProductWriter
	log      zerolog.Logger
}

// NewHandler wires the admin handler.
func NewHandler(variants VariantUpserter, products ProductWriter, log zerolog.Logger) *Handler {
	return &Handler{
		variants: variants,
		products: products,
		log:      log.With().Str("component", "admin_handler").Logger(),
	}
}

// Register mounts the admin routes on g.
func (h *Handler) Register(g *echo.Group) {
	g.POST("/products", h.CreateProduct)
	g.PUT("/products/:id/images", h.UpdateProductImages)
	g.POST("/variants", h.UpsertVariant)
}

// UpsertVariant creates or updates a variant from a multipart payload.
// A variantId field selects update; its absence selects create.
func (h *Handler) UpsertVariant(c echo.Context) error {
	mf, err := c.MultipartForm()
	if err != nil {
		return domain.Invalid("variant.upsert", "request body must be multipart form data")
	}

	f := form.ParseVariantForm(mf, middleware.GetLogger(c))

	res, err := h.variants.Upsert(c.Request().Context(), f)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]any{
		"variantId": res.VariantID,
		"created":   res.Created,
	})
}

// CreateProduct creates a product from a JSON payload.
func (h *Handler) CreateProduct(c echo.Context) error {
	var req struct {
		Name        string `json:"name"`
		Slug        string `json:"slug"`
		Description string `json:"description"`
		Status      string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return domain.Invalid("product.create", "request body must be valid JSON")
	}
	if req.Status == "" {
		req.Status = "active"
	}

	p, err := h.products.Create(c.Request().Context(), domain.CreateProductParams{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"id":   p.ID,
		"name": p.Name,
		"slug": p.Slug,
	})
}

// UpdateProductImages merges uploaded image slots into the product's image
// row. Slots not present in the payload keep their stored values.
func (h *Handler) UpdateProductImages(c echo.Context) error {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		return domain.Invalid("product.images", "product id must be a positive integer")
	}

	mf, err := c.MultipartForm()
	if err != nil {
		return domain.Invalid("product.images", "request body must be multipart form data")
	}

	f := form.ParseProductImagesForm(mf)

	updated, err := h.products.UpdateImages(c.Request().Context(), productID, f)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"productId": productID,
		"updated":   updated,
	})
}
