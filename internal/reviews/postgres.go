package reviews

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps reviews in the reviews table and refreshes products.rating and
// products.num_reviews in the same transaction.
type PGStore struct {
	Pool *pgxpool.Pool
}

// Create implements Store.
func (s PGStore) Create(ctx context.Context, review Review) (Review, error) {
	if s.Pool == nil {
		return Review{}, errors.New("reviews: pool not configured")
	}
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT TRUE FROM products WHERE id::text = $1 FOR UPDATE`, review.ProductID).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrProductNotFound
			}
			return fmt.Errorf("lock product: %w", err)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO reviews (id, product_id, user_id, name, rating, comment, created_at)
			 SELECT $1, p.id, $3, $4, $5, $6, $7 FROM products p WHERE p.id::text = $2`,
			review.ID, review.ProductID, review.UserID, review.Name, review.Rating, review.Comment, review.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return ErrAlreadyReviewed
			}
			return fmt.Errorf("insert review: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE products p SET
			   num_reviews = agg.n,
			   rating = agg.avg
			 FROM (SELECT COUNT(*) AS n, COALESCE(AVG(rating), 0) AS avg FROM reviews r
			       JOIN products x ON x.id = r.product_id WHERE x.id::text = $1) agg
			 WHERE p.id::text = $1`, review.ProductID)
		if err != nil {
			return fmt.Errorf("refresh product rating: %w", err)
		}
		return nil
	})
	if err != nil {
		return Review{}, err
	}
	return review, nil
}

// List implements Store.
func (s PGStore) List(ctx context.Context, productID string, limit, offset int) ([]Review, int64, error) {
	if s.Pool == nil {
		return nil, 0, errors.New("reviews: pool not configured")
	}
	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE product_id::text = $1`, productID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id::text, product_id::text, user_id, name, rating, comment, created_at
		 FROM reviews WHERE product_id::text = $1
		 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, productID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Review, error) {
		var r Review
		err := row.Scan(&r.ID, &r.ProductID, &r.UserID, &r.Name, &r.Rating, &r.Comment, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan reviews: %w", err)
	}
	return items, total, nil
}
