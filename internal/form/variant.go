// Package form extracts loosely typed records from multipart payloads.
// Parsing never fails: malformed fields surface as values the schema
// validator rejects, so correctness checking happens in exactly one place.
package form

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pelicanworks/trove/internal/domain"
)

// VariantForm is the parsed variant upsert payload, pre-validation.
// Malformed numerics parse to out-of-range sentinels rather than errors.
// Quantity is capped at the 32-bit range of the quantity column so
// validation, not integer truncation, rejects oversized values.
type VariantForm struct {
	ProductID      int64           `validate:"gt=0"`
	VariantID      *int64          `validate:"omitempty,gt=0"`
	Price          decimal.Decimal `validate:"gte=0"`
	Quantity       int64           `validate:"gte=0,lte=2147483647"`
	Status         string          `validate:"oneof=active inactive"`
	Specifications []domain.SpecValue
	Images         []domain.ImageInput
}

// ProductImagesForm is the parsed product image update payload.
type ProductImagesForm struct {
	Main       domain.ImageInput
	Thumbnails []domain.ImageInput
}

// ParseVariantForm builds a structurally complete VariantForm from a
// multipart payload. A missing or malformed numeric field becomes a
// negative sentinel (or zero for productId) that validation rejects; an
// unparseable specifications field logs and yields an empty slice.
func ParseVariantForm(f *multipart.Form, log zerolog.Logger) VariantForm {
	out := VariantForm{
		ProductID: parseID(value(f, "productId")),
		Price:     parsePrice(value(f, "variantPrice")),
		Quantity:  parseCount(value(f, "variantQuantity")),
		Status:    value(f, "variantStatus"),
	}

	if raw := value(f, "variantId"); raw != "" {
		id := parseID(raw)
		if id <= 0 {
			id = -1 // present but malformed: reject, don't silently create
		}
		out.VariantID = &id
	}

	if raw := value(f, "specifications"); raw != "" {
		var specs []domain.SpecValue
		if err := json.Unmarshal([]byte(raw), &specs); err != nil {
			log.Warn().Err(err).Msg("unparseable specifications field, treating as empty")
		} else {
			out.Specifications = specs
		}
	}

	for _, fh := range f.File["images"] {
		out.Images = append(out.Images, fileInput(fh))
	}

	return out
}

// ParseProductImagesForm extracts the main image and thumbnail entries.
// Each slot may arrive as a file part or as a string field (data URI or an
// unchanged pass-through value); a file part wins when both are present.
func ParseProductImagesForm(f *multipart.Form) ProductImagesForm {
	out := ProductImagesForm{Main: domain.AbsentImage{}}

	if fhs := f.File["main_image"]; len(fhs) > 0 {
		out.Main = fileInput(fhs[0])
	} else if raw := value(f, "main_image"); raw != "" {
		out.Main = domain.DataURIImage{Raw: raw}
	}

	for _, fh := range f.File["thumbnails"] {
		out.Thumbnails = append(out.Thumbnails, fileInput(fh))
	}
	for _, raw := range f.Value["thumbnails"] {
		out.Thumbnails = append(out.Thumbnails, domain.DataURIImage{Raw: raw})
	}

	return out
}

func value(f *multipart.Form, key string) string {
	if vs := f.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func fileInput(fh *multipart.FileHeader) domain.ImageInput {
	return domain.FileImage{
		Filename: fh.Filename,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func parseID(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func parsePrice(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NewFromInt(-1)
	}
	return d
}
