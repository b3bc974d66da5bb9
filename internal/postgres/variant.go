package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pelicanworks/trove/internal/domain"
)

// VariantStore implements domain.VariantStore using PostgreSQL.
type VariantStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Compile-time check that VariantStore implements domain.VariantStore.
var _ domain.VariantStore = (*VariantStore)(nil)

// NewVariantStore creates a new PostgreSQL-backed variant store.
func NewVariantStore(pool *pgxpool.Pool, log zerolog.Logger) *VariantStore {
	return &VariantStore{
		pool: pool,
		log:  log.With().Str("component", "variant_store").Logger(),
	}
}

// Upsert creates or updates a variant in one all-or-nothing transaction:
// the variant row is written, its attribute combinations are fully
// replaced, and, when new images were supplied, its image set is fully
// replaced. Zero supplied images leaves prior images untouched.
func (s *VariantStore) Upsert(ctx context.Context, params domain.VariantUpsert) (domain.VariantUpsertResult, error) {
	const op = "variant.upsert"

	var res domain.VariantUpsertResult
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if params.VariantID != nil {
			id := *params.VariantID
			tag, err := tx.Exec(ctx,
				`UPDATE variants
				 SET price = $1, quantity = $2, status = $3, updated_at = now()
				 WHERE id = $4 AND product_id = $5`,
				params.Price.String(), params.Quantity, string(params.Status), id, params.ProductID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return domain.NotFound(op, "variant", strconv.FormatInt(id, 10))
			}

			// Combinations are replaced as a whole set, never patched.
			if _, err := tx.Exec(ctx,
				`DELETE FROM variant_combinations WHERE variant_id = $1`, id); err != nil {
				return err
			}
			res.VariantID = id
		} else {
			err := tx.QueryRow(ctx,
				`INSERT INTO variants (product_id, price, quantity, status)
				 VALUES ($1, $2, $3, $4)
				 RETURNING id`,
				params.ProductID, params.Price.String(), params.Quantity, string(params.Status)).
				Scan(&res.VariantID)
			if err != nil {
				return err
			}
			res.Created = true
		}

		for _, sv := range params.Specifications {
			valueID, err := lookupOrInsertValue(ctx, tx, sv)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO variant_combinations (variant_id, specification_id, variant_value_id)
				 VALUES ($1, $2, $3)`,
				res.VariantID, sv.SpecificationID, valueID); err != nil {
				return err
			}
		}

		// No images supplied means "don't touch images" - the delete-then-
		// insert block is skipped entirely, not executed with zero inserts.
		if len(params.Images) > 0 {
			if _, err := tx.Exec(ctx,
				`DELETE FROM variant_images WHERE variant_id = $1`, res.VariantID); err != nil {
				return err
			}
			for _, img := range params.Images {
				if _, err := tx.Exec(ctx,
					`INSERT INTO variant_images (variant_id, image_data, image_type)
					 VALUES ($1, $2, $3)`,
					res.VariantID, img.Data, img.ContentType); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return domain.VariantUpsertResult{}, err
		}
		s.log.Error().Err(err).Int64("product_id", params.ProductID).Msg("variant upsert failed")
		return domain.VariantUpsertResult{}, domain.Internal(err, op, "failed to upsert variant")
	}

	return res, nil
}

// lookupOrInsertValue returns the id of the variant value for
// (specificationID, value), reusing an existing row when one exists. The
// unique constraint on the pair backs this up when two transactions race
// to insert the same value.
func lookupOrInsertValue(ctx context.Context, tx pgx.Tx, sv domain.SpecValue) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM variant_values WHERE specification_id = $1 AND value = $2`,
		sv.SpecificationID, sv.Value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// The DO UPDATE arm turns a concurrent duplicate into a row we can
	// still RETURNING from.
	err = tx.QueryRow(ctx,
		`INSERT INTO variant_values (specification_id, value)
		 VALUES ($1, $2)
		 ON CONFLICT (specification_id, value) DO UPDATE SET value = EXCLUDED.value
		 RETURNING id`,
		sv.SpecificationID, sv.Value).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListByProduct returns all variants of a product with their resolved
// attribute assignments.
func (s *VariantStore) ListByProduct(ctx context.Context, productID int64) ([]domain.VariantDetail, error) {
	const op = "variant.list"

	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, price::text, quantity, status, created_at, updated_at
		 FROM variants
		 WHERE product_id = $1
		 ORDER BY id`, productID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list variants")
	}
	defer rows.Close()

	var details []domain.VariantDetail
	for rows.Next() {
		var (
			v        domain.Variant
			priceRaw string
			status   string
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &priceRaw, &v.Quantity, &status, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, domain.Internal(err, op, "failed to scan variant")
		}
		if v.Price, err = scanDecimal(priceRaw); err != nil {
			return nil, domain.Internal(err, op, "failed to scan variant price")
		}
		v.Status = domain.VariantStatus(status)
		details = append(details, domain.VariantDetail{Variant: v})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to list variants")
	}

	for i := range details {
		attrs, err := s.listAttributes(ctx, details[i].ID)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to list variant attributes")
		}
		details[i].Attributes = attrs
	}

	return details, nil
}

func (s *VariantStore) listAttributes(ctx context.Context, variantID int64) ([]domain.VariantAttribute, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.specification_id, sp.name, vv.value
		 FROM variant_combinations c
		 JOIN specifications sp ON sp.id = c.specification_id
		 JOIN variant_values vv ON vv.id = c.variant_value_id
		 WHERE c.variant_id = $1
		 ORDER BY c.specification_id`, variantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attrs []domain.VariantAttribute
	for rows.Next() {
		var a domain.VariantAttribute
		if err := rows.Scan(&a.SpecificationID, &a.Name, &a.Value); err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, rows.Err()
}

// Images returns the stored images for a variant.
func (s *VariantStore) Images(ctx context.Context, variantID int64) ([]domain.ImageBuffer, error) {
	const op = "variant.images"

	rows, err := s.pool.Query(ctx,
		`SELECT image_data, image_type FROM variant_images WHERE variant_id = $1 ORDER BY id`,
		variantID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list variant images")
	}
	defer rows.Close()

	var images []domain.ImageBuffer
	for rows.Next() {
		var img domain.ImageBuffer
		if err := rows.Scan(&img.Data, &img.ContentType); err != nil {
			return nil, domain.Internal(err, op, "failed to scan variant image")
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to list variant images")
	}

	return images, nil
}
