package postgres

import (
	"bytes"
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pelicanworks/trove/internal/domain"
)

// ProductStore implements domain.ProductStore using PostgreSQL.
type ProductStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Compile-time check that ProductStore implements domain.ProductStore.
var _ domain.ProductStore = (*ProductStore)(nil)

// NewProductStore creates a new PostgreSQL-backed product store.
func NewProductStore(pool *pgxpool.Pool, log zerolog.Logger) *ProductStore {
	return &ProductStore{
		pool: pool,
		log:  log.With().Str("component", "product_store").Logger(),
	}
}

// Create inserts a product together with its placeholder image row, so the
// image merge always has a target row to COALESCE into.
func (s *ProductStore) Create(ctx context.Context, params domain.CreateProductParams) (domain.Product, error) {
	const op = "product.create"

	status := params.Status
	if status == "" {
		status = "draft"
	}

	var p domain.Product
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO products (name, slug, description, status)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, name, slug, description, status, created_at, updated_at`,
			params.Name, params.Slug, params.Description, status).
			Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO product_images (product_id) VALUES ($1)`, p.ID)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, domain.Conflict(op, "product slug already exists")
		}
		return domain.Product{}, domain.Internal(err, op, "failed to create product")
	}

	return p, nil
}

// GetByID retrieves a product by id.
func (s *ProductStore) GetByID(ctx context.Context, id int64) (domain.Product, error) {
	const op = "product.get"

	var p domain.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, slug, description, status, created_at, updated_at
		 FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.NotFound(op, "product", strconv.FormatInt(id, 10))
		}
		return domain.Product{}, domain.Internal(err, op, "failed to get product")
	}

	return p, nil
}

// MergeImages applies patch to the product's image row column by column
// inside one transaction. A nil patch slot keeps the stored value, both by
// skipping it in the change computation and by sending SQL NULL through
// COALESCE - so a rejected upload can never null out a stored image.
// Returns true when an UPDATE was issued, false when every slot was
// unchanged and the write was skipped.
func (s *ProductStore) MergeImages(ctx context.Context, productID int64, patch domain.ImagePatch) (bool, error) {
	const op = "product.merge_images"

	var updated bool
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.NotFound(op, "product", strconv.FormatInt(productID, 10))
		}

		// Products created before the placeholder insert existed may lack
		// an image row; make sure the merge has a target.
		if _, err := tx.Exec(ctx,
			`INSERT INTO product_images (product_id) VALUES ($1)
			 ON CONFLICT (product_id) DO NOTHING`, productID); err != nil {
			return err
		}

		existing, err := getImageSet(ctx, tx, productID)
		if err != nil {
			return err
		}

		if !imagePatchChanged(existing, patch) {
			return nil
		}

		args := []any{productID}
		args = append(args, slotArgs(patch.Main)...)
		for _, t := range patch.Thumbnails {
			args = append(args, slotArgs(t)...)
		}

		_, err = tx.Exec(ctx,
			`UPDATE product_images SET
			 main_image            = COALESCE($2,  main_image),
			 main_image_type       = COALESCE($3,  main_image_type),
			 thumbnail_image1      = COALESCE($4,  thumbnail_image1),
			 thumbnail_image1_type = COALESCE($5,  thumbnail_image1_type),
			 thumbnail_image2      = COALESCE($6,  thumbnail_image2),
			 thumbnail_image2_type = COALESCE($7,  thumbnail_image2_type),
			 thumbnail_image3      = COALESCE($8,  thumbnail_image3),
			 thumbnail_image3_type = COALESCE($9,  thumbnail_image3_type),
			 thumbnail_image4      = COALESCE($10, thumbnail_image4),
			 thumbnail_image4_type = COALESCE($11, thumbnail_image4_type),
			 thumbnail_image5      = COALESCE($12, thumbnail_image5),
			 thumbnail_image5_type = COALESCE($13, thumbnail_image5_type),
			 updated_at = now()
			 WHERE product_id = $1`, args...)
		if err != nil {
			return err
		}

		updated = true
		return nil
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return false, err
		}
		s.log.Error().Err(err).Int64("product_id", productID).Msg("product image merge failed")
		return false, domain.Internal(err, op, "failed to update product images")
	}

	return updated, nil
}

// GetImages returns the product's image row. Missing rows (products
// created outside the normal path) come back as an all-empty set.
func (s *ProductStore) GetImages(ctx context.Context, productID int64) (domain.ProductImageSet, error) {
	const op = "product.get_images"

	set, err := getImageSet(ctx, s.pool, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProductImageSet{ProductID: productID}, nil
		}
		return domain.ProductImageSet{}, domain.Internal(err, op, "failed to get product images")
	}

	return set, nil
}

// querier is the subset of pgx shared by pool and tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getImageSet(ctx context.Context, q querier, productID int64) (domain.ProductImageSet, error) {
	set := domain.ProductImageSet{ProductID: productID}

	var types [6]*string
	err := q.QueryRow(ctx,
		`SELECT main_image, main_image_type,
		        thumbnail_image1, thumbnail_image1_type,
		        thumbnail_image2, thumbnail_image2_type,
		        thumbnail_image3, thumbnail_image3_type,
		        thumbnail_image4, thumbnail_image4_type,
		        thumbnail_image5, thumbnail_image5_type
		 FROM product_images WHERE product_id = $1`, productID).
		Scan(&set.Main.Data, &types[0],
			&set.Thumbnails[0].Data, &types[1],
			&set.Thumbnails[1].Data, &types[2],
			&set.Thumbnails[2].Data, &types[3],
			&set.Thumbnails[3].Data, &types[4],
			&set.Thumbnails[4].Data, &types[5])
	if err != nil {
		return domain.ProductImageSet{}, err
	}

	if types[0] != nil {
		set.Main.ContentType = *types[0]
	}
	for i := 0; i < 5; i++ {
		if types[i+1] != nil {
			set.Thumbnails[i].ContentType = *types[i+1]
		}
	}

	return set, nil
}

// imagePatchChanged reports whether applying patch to existing would alter
// any column. A supplied main image always counts as a change; a thumbnail
// slot counts only when its bytes differ from what is stored.
func imagePatchChanged(existing domain.ProductImageSet, patch domain.ImagePatch) bool {
	if patch.Main != nil {
		return true
	}
	for i, t := range patch.Thumbnails {
		if t != nil && !bytes.Equal(t.Data, existing.Thumbnails[i].Data) {
			return true
		}
	}
	return false
}

// slotArgs expands one patch slot into its (data, type) SQL arguments.
// Nil slots become SQL NULLs that COALESCE resolves to the stored value.
func slotArgs(b *domain.ImageBuffer) []any {
	if b == nil {
		return []any{nil, nil}
	}
	return []any{b.Data, b.ContentType}
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
