package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelicanworks/trove/internal/cache"
	"github.com/pelicanworks/trove/internal/domain"
	"github.com/pelicanworks/trove/internal/events"
	"github.com/pelicanworks/trove/internal/form"
	imagepkg "github.com/pelicanworks/trove/internal/image"
)

// mockVariantStore records upsert calls and serves canned list results.
type mockVariantStore struct {
	upsertCalls  []domain.VariantUpsert
	upsertResult domain.VariantUpsertResult
	upsertErr    error

	listResult []domain.VariantDetail
	listCalls  int
	listErr    error

	images    []domain.ImageBuffer
	imagesErr error
}

var _ domain.VariantStore = (*mockVariantStore)(nil)

func (m *mockVariantStore) Upsert(_ context.Context, params domain.VariantUpsert) (domain.VariantUpsertResult, error) {
	m.upsertCalls = append(m.upsertCalls, params)
	if m.upsertErr != nil {
		return domain.VariantUpsertResult{}, m.upsertErr
	}
	return m.upsertResult, nil
}

func (m *mockVariantStore) ListByProduct(_ context.Context, _ int64) ([]domain.VariantDetail, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.listResult, nil
}

func (m *mockVariantStore) Images(_ context.Context, _ int64) ([]domain.ImageBuffer, error) {
	if m.imagesErr != nil {
		return nil, m.imagesErr
	}
	return m.images, nil
}

func newVariantService(t *testing.T, store *mockVariantStore, pub *events.MockPublisher) (*VariantService, *cache.Memory) {
	t.Helper()
	c := cache.NewMemory(prometheus.NewRegistry())
	normalizer := imagepkg.NewNormalizer(zerolog.Nop(), prometheus.NewRegistry())
	svc := NewVariantService(store, form.NewValidator(), normalizer, c, pub, time.Minute, zerolog.Nop())
	return svc, c
}

// encodePNG produces a real PNG large enough to pass normalization.
func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	for x := 0; x < 50; x++ {
		for y := 0; y < 50; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 3), B: uint8(x + y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func validForm() form.VariantForm {
	return form.VariantForm{
		ProductID: 7,
		Price:     decimal.NewFromFloat(19.99),
		Quantity:  3,
		Status:    "active",
		Specifications: []domain.SpecValue{
			{SpecificationID: 1, Value: "16GB"},
		},
	}
}

func TestVariantUpsert_ValidationFailureSkipsStore(t *testing.T) {
	store := &mockVariantStore{}
	pub := &events.MockPublisher{}
	svc, _ := newVariantService(t, store, pub)

	f := validForm()
	f.Quantity = -1 // the missing-field sentinel
	f.Status = "discontinued"

	_, err := svc.Upsert(context.Background(), f)
	require.Error(t, err)

	fields := domain.GetValidationFields(err)
	require.NotNil(t, fields)
	assert.Contains(t, fields, "variantQuantity")
	assert.Contains(t, fields, "variantStatus")

	assert.Empty(t, store.upsertCalls, "store must not be reached on invalid input")
	assert.Empty(t, pub.Published())
}

func TestVariantUpsert_QuantityBeyondInt32Rejected(t *testing.T) {
	store := &mockVariantStore{}
	pub := &events.MockPublisher{}
	svc, _ := newVariantService(t, store, pub)

	// 2^32 would truncate to 0 and 2^31 would wrap negative if these
	// reached the int32 conversion; validation must stop both first.
	for _, q := range []int64{1 << 32, 1 << 31} {
		f := validForm()
		f.Quantity = q

		_, err := svc.Upsert(context.Background(), f)
		require.Error(t, err, "quantity %d must not pass validation", q)

		fields := domain.GetValidationFields(err)
		require.NotNil(t, fields)
		assert.Contains(t, fields, "variantQuantity")
	}

	assert.Empty(t, store.upsertCalls, "out-of-range quantity must never reach the store")
}

func TestVariantUpsert_SuccessPublishesAndInvalidates(t *testing.T) {
	store := &mockVariantStore{upsertResult: domain.VariantUpsertResult{VariantID: 42, Created: true}}
	pub := &events.MockPublisher{}
	svc, c := newVariantService(t, store, pub)

	// Seed cached views so we can observe the invalidation.
	c.Set(productKey(7), []byte(`{}`), time.Minute)
	c.Set(variantsKey(7), []byte(`[]`), time.Minute)

	res, err := svc.Upsert(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.VariantID)
	assert.True(t, res.Created)

	_, ok := c.Get(productKey(7))
	assert.False(t, ok, "product view must be invalidated")
	_, ok = c.Get(variantsKey(7))
	assert.False(t, ok, "variant list must be invalidated")

	published := pub.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.SubjectVariantUpdated, published[0].Subject)
	assert.Equal(t, int64(7), published[0].Event.ProductID)
	assert.Equal(t, int64(42), published[0].Event.VariantID)
	assert.NotEmpty(t, published[0].Event.ID)
}

func TestVariantUpsert_RejectedImagesAreDropped(t *testing.T) {
	store := &mockVariantStore{upsertResult: domain.VariantUpsertResult{VariantID: 1}}
	pub := &events.MockPublisher{}
	svc, _ := newVariantService(t, store, pub)

	f := validForm()
	f.Images = []domain.ImageInput{
		domain.RawImage{Data: encodePNG(t)},
		domain.RawImage{Data: []byte("too small")},
		domain.DataURIImage{Raw: "https://cdn.example.com/old.jpg"},
	}

	_, err := svc.Upsert(context.Background(), f)
	require.NoError(t, err)

	require.Len(t, store.upsertCalls, 1)
	require.Len(t, store.upsertCalls[0].Images, 1)
	assert.Equal(t, "image/png", store.upsertCalls[0].Images[0].ContentType)
}

func TestVariantUpsert_AllImagesRejectedSendsEmptySet(t *testing.T) {
	store := &mockVariantStore{upsertResult: domain.VariantUpsertResult{VariantID: 1}}
	pub := &events.MockPublisher{}
	svc, _ := newVariantService(t, store, pub)

	f := validForm()
	f.Images = []domain.ImageInput{domain.RawImage{Data: []byte("junk")}}

	_, err := svc.Upsert(context.Background(), f)
	require.NoError(t, err)

	require.Len(t, store.upsertCalls, 1)
	assert.Empty(t, store.upsertCalls[0].Images, "rejected uploads must not reach the store")
}

func TestVariantUpsert_StoreErrorPropagates(t *testing.T) {
	store := &mockVariantStore{upsertErr: domain.NotFound("variant.upsert", "variant", "99")}
	pub := &events.MockPublisher{}
	svc, _ := newVariantService(t, store, pub)

	f := validForm()
	id := int64(99)
	f.VariantID = &id

	_, err := svc.Upsert(context.Background(), f)
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	assert.Empty(t, pub.Published(), "no event on a failed write")
}

func TestVariantUpsert_PublishFailureDoesNotFailRequest(t *testing.T) {
	store := &mockVariantStore{upsertResult: domain.VariantUpsertResult{VariantID: 5}}
	pub := &events.MockPublisher{Err: errors.New("nats down")}
	svc, _ := newVariantService(t, store, pub)

	res, err := svc.Upsert(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.VariantID)
}

func TestVariantList_CachesSecondRead(t *testing.T) {
	store := &mockVariantStore{
		listResult: []domain.VariantDetail{
			{
				Variant: domain.Variant{
					ID: 1, ProductID: 7,
					Price:    decimal.NewFromFloat(19.99),
					Quantity: 3,
					Status:   domain.VariantStatusActive,
				},
				Attributes: []domain.VariantAttribute{
					{SpecificationID: 1, Name: "RAM", Value: "16GB"},
				},
			},
		},
	}
	pub := &events.MockPublisher{}
	svc, _ := newVariantService(t, store, pub)

	views, hit, err := svc.List(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, views, 1)
	assert.Equal(t, "19.99", views[0].Price)
	assert.Equal(t, "active", views[0].Status)
	require.Len(t, views[0].Attributes, 1)
	assert.Equal(t, "RAM", views[0].Attributes[0].Name)

	again, hit, err := svc.List(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, views, again)
	assert.Equal(t, 1, store.listCalls, "second read must come from cache")
}

func TestVariantImage(t *testing.T) {
	store := &mockVariantStore{
		images: []domain.ImageBuffer{
			{Data: []byte("primary"), ContentType: "image/png"},
			{Data: []byte("secondary"), ContentType: "image/jpeg"},
		},
	}
	pub := &events.MockPublisher{}
	svc, _ := newVariantService(t, store, pub)

	img, err := svc.Image(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("primary"), img.Data, "the first stored image is primary")
}

func TestVariantImage_NoneStored(t *testing.T) {
	store := &mockVariantStore{}
	pub := &events.MockPublisher{}
	svc, _ := newVariantService(t, store, pub)

	_, err := svc.Image(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestVariantList_CorruptCacheEntryFallsThrough(t *testing.T) {
	store := &mockVariantStore{}
	pub := &events.MockPublisher{}
	svc, c := newVariantService(t, store, pub)

	c.Set(variantsKey(7), []byte("not json"), time.Minute)

	views, hit, err := svc.List(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, views)
	assert.Equal(t, 1, store.listCalls)
}
