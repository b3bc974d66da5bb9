// Package image normalizes the several shapes an uploaded image can take
// into validated in-memory buffers. A failed normalization is never an
// error: the slot is treated as unchanged, and the outcome is counted so
// operators can tell rejected uploads apart from absent ones.
package image

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/pelicanworks/trove/internal/domain"
)

// MinImageBytes is the smallest payload accepted as a plausible image.
const MinImageBytes = 100

// Normalization outcomes, used as metric label values.
const (
	outcomeAccepted     = "accepted"
	outcomeAbsent       = "absent"
	outcomeTooSmall     = "rejected_too_small"
	outcomeUnrecognized = "rejected_unrecognized"
	outcomeDecodeError  = "rejected_decode_error"
	outcomeReadError    = "rejected_read_error"
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// Normalizer converts domain.ImageInput values into validated buffers.
type Normalizer struct {
	log      zerolog.Logger
	outcomes *prometheus.CounterVec
}

// NewNormalizer creates a Normalizer and registers its outcome counter
// with reg.
func NewNormalizer(log zerolog.Logger, reg prometheus.Registerer) *Normalizer {
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trove",
			Name:      "image_normalizations_total",
			Help:      "Image normalization attempts by outcome",
		},
		[]string{"outcome"},
	)
	reg.MustRegister(outcomes)

	return &Normalizer{
		log:      log.With().Str("component", "image_normalizer").Logger(),
		outcomes: outcomes,
	}
}

// ToBuffer normalizes an image input. It returns nil when the slot should
// be left untouched: absent input, a pass-through string that is not a data
// URI, bytes below the minimum plausible size, or bytes that no image
// decoder recognizes. It never returns an error.
func (n *Normalizer) ToBuffer(in domain.ImageInput) *domain.ImageBuffer {
	switch v := in.(type) {
	case nil, domain.AbsentImage:
		n.outcomes.WithLabelValues(outcomeAbsent).Inc()
		return nil

	case domain.RawImage:
		return n.validate(v.Data)

	case domain.DataURIImage:
		payload, ok := decodeDataURI(v.Raw)
		if !ok {
			// Not a data URI at all: an unchanged pass-through value,
			// not an upload.
			n.outcomes.WithLabelValues(outcomeAbsent).Inc()
			return nil
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			n.log.Warn().Err(err).Msg("data URI with undecodable base64 payload, keeping stored image")
			n.outcomes.WithLabelValues(outcomeReadError).Inc()
			return nil
		}
		return n.validate(data)

	case domain.FileImage:
		data, err := readAll(v)
		if err != nil {
			n.log.Warn().Err(err).Str("filename", v.Filename).Msg("failed to read uploaded file, keeping stored image")
			n.outcomes.WithLabelValues(outcomeReadError).Inc()
			return nil
		}
		return n.validate(data)

	default:
		n.outcomes.WithLabelValues(outcomeAbsent).Inc()
		return nil
	}
}

// validate applies the minimum-size check and the format probe.
func (n *Normalizer) validate(data []byte) *domain.ImageBuffer {
	if len(data) < MinImageBytes {
		n.log.Warn().Int("bytes", len(data)).Msg("image below minimum plausible size, keeping stored image")
		n.outcomes.WithLabelValues(outcomeTooSmall).Inc()
		return nil
	}

	contentType := http.DetectContentType(data)
	if !allowedTypes[contentType] {
		n.log.Warn().Str("content_type", contentType).Msg("unrecognized image content type, keeping stored image")
		n.outcomes.WithLabelValues(outcomeUnrecognized).Inc()
		return nil
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		n.log.Warn().Err(err).Str("content_type", contentType).Msg("image metadata probe failed, keeping stored image")
		n.outcomes.WithLabelValues(outcomeDecodeError).Inc()
		return nil
	}

	n.outcomes.WithLabelValues(outcomeAccepted).Inc()
	return &domain.ImageBuffer{Data: data, ContentType: contentType}
}

// decodeDataURI extracts the base64 payload from a data:image/...;base64,
// string. The second return is false for anything else.
func decodeDataURI(s string) (string, bool) {
	rest, ok := strings.CutPrefix(s, "data:image/")
	if !ok {
		return "", false
	}
	_, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return "", false
	}
	return payload, true
}

func readAll(f domain.FileImage) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
