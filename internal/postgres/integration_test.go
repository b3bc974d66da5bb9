package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelicanworks/trove/internal"
	"github.com/pelicanworks/trove/internal/domain"
)

// testPool connects to the database named by TROVE_TEST_DATABASE_URL,
// migrates it, and truncates the catalog tables. Tests are skipped when
// the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TROVE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TROVE_TEST_DATABASE_URL not set, skipping integration test")
	}

	sqlDB, err := sql.Open("pgx", url)
	require.NoError(t, err)
	require.NoError(t, internal.RunMigrations(sqlDB))
	require.NoError(t, sqlDB.Close())

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx,
		`TRUNCATE variant_images, variant_combinations, variant_values,
		          variants, specifications, product_images, products
		 RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return pool
}

func seedProduct(t *testing.T, pool *pgxpool.Pool) domain.Product {
	t.Helper()
	store := NewProductStore(pool, zerolog.Nop())
	p, err := store.Create(context.Background(), domain.CreateProductParams{
		Name: "Laptop", Slug: "laptop", Status: "active",
	})
	require.NoError(t, err)
	return p
}

func seedSpecification(t *testing.T, pool *pgxpool.Pool, name string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO specifications (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	require.NoError(t, err)
	return id
}

func countRows(t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT count(*) FROM `+table).Scan(&n))
	return n
}

func price(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestVariantUpsert_CreateEndToEnd(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	product := seedProduct(t, pool)
	ramSpec := seedSpecification(t, pool, "RAM")
	store := NewVariantStore(pool, zerolog.Nop())

	res, err := store.Upsert(ctx, domain.VariantUpsert{
		ProductID: product.ID,
		Price:     price("599"),
		Quantity:  10,
		Status:    domain.VariantStatusActive,
		Specifications: []domain.SpecValue{
			{SpecificationID: ramSpec, Value: "16GB"},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Positive(t, res.VariantID)

	assert.Equal(t, 1, countRows(t, pool, "variant_values"))
	assert.Equal(t, 1, countRows(t, pool, "variant_combinations"))
	assert.Equal(t, 0, countRows(t, pool, "variant_images"))

	details, err := store.ListByProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.True(t, details[0].Price.Equal(price("599")))
	assert.Equal(t, int32(10), details[0].Quantity)
	require.Len(t, details[0].Attributes, 1)
	assert.Equal(t, "RAM", details[0].Attributes[0].Name)
	assert.Equal(t, "16GB", details[0].Attributes[0].Value)
}

func TestVariantUpsert_UpdateReplacesCombinationsAndImages(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	product := seedProduct(t, pool)
	ramSpec := seedSpecification(t, pool, "RAM")
	store := NewVariantStore(pool, zerolog.Nop())

	res, err := store.Upsert(ctx, domain.VariantUpsert{
		ProductID:      product.ID,
		Price:          price("599"),
		Quantity:       10,
		Status:         domain.VariantStatusActive,
		Specifications: []domain.SpecValue{{SpecificationID: ramSpec, Value: "16GB"}},
	})
	require.NoError(t, err)

	_, err = store.Upsert(ctx, domain.VariantUpsert{
		VariantID:      &res.VariantID,
		ProductID:      product.ID,
		Price:          price("699"),
		Quantity:       5,
		Status:         domain.VariantStatusInactive,
		Specifications: []domain.SpecValue{{SpecificationID: ramSpec, Value: "32GB"}},
		Images:         []domain.ImageBuffer{{Data: []byte("image-1"), ContentType: "image/png"}},
	})
	require.NoError(t, err)

	details, err := store.ListByProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.True(t, details[0].Price.Equal(price("699")))
	assert.Equal(t, domain.VariantStatusInactive, details[0].Status)

	// The old combination is gone; exactly the new set remains.
	assert.Equal(t, 1, countRows(t, pool, "variant_combinations"))
	require.Len(t, details[0].Attributes, 1)
	assert.Equal(t, "32GB", details[0].Attributes[0].Value)

	// Both values exist (16GB row is not garbage-collected), no dupes.
	assert.Equal(t, 2, countRows(t, pool, "variant_values"))

	images, err := store.Images(ctx, res.VariantID)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, []byte("image-1"), images[0].Data)
}

func TestVariantUpsert_ValueDeduplication(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	product := seedProduct(t, pool)
	ramSpec := seedSpecification(t, pool, "RAM")
	store := NewVariantStore(pool, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := store.Upsert(ctx, domain.VariantUpsert{
			ProductID:      product.ID,
			Price:          price("10"),
			Quantity:       1,
			Status:         domain.VariantStatusActive,
			Specifications: []domain.SpecValue{{SpecificationID: ramSpec, Value: "16GB"}},
		})
		require.NoError(t, err)
	}

	// Two variants share one deduplicated value row.
	assert.Equal(t, 2, countRows(t, pool, "variants"))
	assert.Equal(t, 1, countRows(t, pool, "variant_values"))
	assert.Equal(t, 2, countRows(t, pool, "variant_combinations"))
}

func TestVariantUpsert_ImageFullReplacement(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	product := seedProduct(t, pool)
	store := NewVariantStore(pool, zerolog.Nop())

	res, err := store.Upsert(ctx, domain.VariantUpsert{
		ProductID: product.ID,
		Price:     price("10"),
		Quantity:  1,
		Status:    domain.VariantStatusActive,
		Images: []domain.ImageBuffer{
			{Data: []byte("a"), ContentType: "image/png"},
			{Data: []byte("b"), ContentType: "image/png"},
			{Data: []byte("c"), ContentType: "image/png"},
		},
	})
	require.NoError(t, err)

	_, err = store.Upsert(ctx, domain.VariantUpsert{
		VariantID: &res.VariantID,
		ProductID: product.ID,
		Price:     price("10"),
		Quantity:  1,
		Status:    domain.VariantStatusActive,
		Images:    []domain.ImageBuffer{{Data: []byte("only"), ContentType: "image/png"}},
	})
	require.NoError(t, err)

	images, err := store.Images(ctx, res.VariantID)
	require.NoError(t, err)
	require.Len(t, images, 1, "images are fully replaced as a set")
	assert.Equal(t, []byte("only"), images[0].Data)
}

func TestVariantUpsert_ZeroImagesLeavesImagesUntouched(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	product := seedProduct(t, pool)
	store := NewVariantStore(pool, zerolog.Nop())

	res, err := store.Upsert(ctx, domain.VariantUpsert{
		ProductID: product.ID,
		Price:     price("10"),
		Quantity:  1,
		Status:    domain.VariantStatusActive,
		Images:    []domain.ImageBuffer{{Data: []byte("keep"), ContentType: "image/png"}},
	})
	require.NoError(t, err)

	_, err = store.Upsert(ctx, domain.VariantUpsert{
		VariantID: &res.VariantID,
		ProductID: product.ID,
		Price:     price("12"),
		Quantity:  2,
		Status:    domain.VariantStatusActive,
	})
	require.NoError(t, err)

	images, err := store.Images(ctx, res.VariantID)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, []byte("keep"), images[0].Data)
}

func TestVariantUpsert_Atomicity(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	product := seedProduct(t, pool)
	store := NewVariantStore(pool, zerolog.Nop())

	// A dangling specification id fails the combination insert with a
	// foreign key violation partway through the transaction.
	_, err := store.Upsert(ctx, domain.VariantUpsert{
		ProductID:      product.ID,
		Price:          price("10"),
		Quantity:       1,
		Status:         domain.VariantStatusActive,
		Specifications: []domain.SpecValue{{SpecificationID: 999999, Value: "16GB"}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	// Nothing written earlier in the call survives the rollback.
	assert.Equal(t, 0, countRows(t, pool, "variants"))
	assert.Equal(t, 0, countRows(t, pool, "variant_values"))
	assert.Equal(t, 0, countRows(t, pool, "variant_combinations"))
}

func TestVariantUpsert_UpdateMissingVariant(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	product := seedProduct(t, pool)
	store := NewVariantStore(pool, zerolog.Nop())

	missing := int64(12345)
	_, err := store.Upsert(ctx, domain.VariantUpsert{
		VariantID: &missing,
		ProductID: product.ID,
		Price:     price("10"),
		Quantity:  1,
		Status:    domain.VariantStatusActive,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestProductImageMerge_ColumnMerge(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	product := seedProduct(t, pool)
	store := NewProductStore(pool, zerolog.Nop())

	// Populate all six slots.
	full := domain.ImagePatch{Main: buf("main-v1")}
	for i := range full.Thumbnails {
		full.Thumbnails[i] = buf("thumb-v1-" + string(rune('1'+i)))
	}
	updated, err := store.MergeImages(ctx, product.ID, full)
	require.NoError(t, err)
	assert.True(t, updated)

	before, err := store.GetImages(ctx, product.ID)
	require.NoError(t, err)

	// Supply only a new thumbnail #2.
	updated, err = store.MergeImages(ctx, product.ID, domain.ImagePatch{
		Thumbnails: [5]*domain.ImageBuffer{nil, buf("thumb-v2-2")},
	})
	require.NoError(t, err)
	assert.True(t, updated)

	after, err := store.GetImages(ctx, product.ID)
	require.NoError(t, err)

	assert.Equal(t, before.Main.Data, after.Main.Data, "main image untouched")
	assert.Equal(t, []byte("thumb-v2-2"), after.Thumbnails[1].Data)
	for _, i := range []int{0, 2, 3, 4} {
		assert.Equal(t, before.Thumbnails[i].Data, after.Thumbnails[i].Data,
			"thumbnail %d should be byte-identical", i+1)
	}
}

func TestProductImageMerge_EmptyPatchIssuesNoUpdate(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	product := seedProduct(t, pool)
	store := NewProductStore(pool, zerolog.Nop())

	updated, err := store.MergeImages(ctx, product.ID, domain.ImagePatch{})
	require.NoError(t, err)
	assert.False(t, updated, "no new image means no UPDATE statement")
}

func TestProductImageMerge_MissingProduct(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewProductStore(pool, zerolog.Nop())

	_, err := store.MergeImages(ctx, 424242, domain.ImagePatch{Main: buf("x")})
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestProductImageMerge_PlaceholderRowBackfill(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	product := seedProduct(t, pool)
	store := NewProductStore(pool, zerolog.Nop())

	// Simulate a product that predates the eager placeholder insert.
	_, err := pool.Exec(ctx, `DELETE FROM product_images WHERE product_id = $1`, product.ID)
	require.NoError(t, err)

	updated, err := store.MergeImages(ctx, product.ID, domain.ImagePatch{Main: buf("fresh")})
	require.NoError(t, err)
	assert.True(t, updated)

	set, err := store.GetImages(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), set.Main.Data)
}

func TestProductCreate_DuplicateSlug(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewProductStore(pool, zerolog.Nop())

	_, err := store.Create(ctx, domain.CreateProductParams{Name: "A", Slug: "dup"})
	require.NoError(t, err)

	_, err = store.Create(ctx, domain.CreateProductParams{Name: "B", Slug: "dup"})
	require.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}
