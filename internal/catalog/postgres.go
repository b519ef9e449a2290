package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGSource reads the catalog read model from Postgres.
type PGSource struct {
	Pool *pgxpool.Pool
}

const productColumns = `p.id::text, p.name, p.image, p.brand, p.description, COALESCE(p.category_id::text, ''), p.price::text, p.count_in_stock, p.rating, p.num_reviews, p.created_at`

// Product loads a single product by identifier.
func (s PGSource) Product(ctx context.Context, id string) (Product, error) {
	if s.Pool == nil {
		return Product{}, errors.New("catalog: pool not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, ErrNotFound
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id::text = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: load product: %w", err)
	}
	return product, nil
}

// List returns a filtered page of products ordered by newest first.
func (s PGSource) List(ctx context.Context, params ListParams) (ListResult, error) {
	if s.Pool == nil {
		return ListResult{}, errors.New("catalog: pool not configured")
	}
	params = params.Normalize()

	filter, args := params.pgFilter()

	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM products p WHERE `+filter, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("catalog: count products: %w", err)
	}

	args = append(args, params.Limit, params.offset())
	query := fmt.Sprintf(`SELECT %s FROM products p WHERE %s ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d`,
		productColumns, filter, len(args)-1, len(args))
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()

	items := make([]Product, 0, params.Limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return ListResult{}, fmt.Errorf("catalog: scan product: %w", err)
		}
		items = append(items, product)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// pgFilter renders the WHERE clause for params with positional arguments starting at $1.
func (p ListParams) pgFilter() (string, []any) {
	where := []string{"TRUE"}
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if kw := strings.TrimSpace(p.Keyword); kw != "" {
		add("p.name ILIKE $%d", "%"+kw+"%")
	}
	if ids := p.categoryIDs(); len(ids) > 0 {
		add("p.category_id::text = ANY($%d)", ids)
	}
	if brands := p.brandNames(); len(brands) > 0 {
		add("lower(p.brand) = ANY($%d)", brands)
	}
	if p.MinPrice != nil {
		add("p.price >= $%d::numeric", p.MinPrice.String())
	}
	if p.MaxPrice != nil {
		add("p.price <= $%d::numeric", p.MaxPrice.String())
	}
	if p.MinRating > 0 {
		add("p.rating >= $%d", p.MinRating)
	}
	if p.MinReviews > 0 {
		add("p.num_reviews >= $%d", p.MinReviews)
	}
	if !p.CreatedAfter.IsZero() {
		add("p.created_at >= $%d", p.CreatedAfter)
	}
	if id := strings.TrimSpace(p.ExcludeID); id != "" {
		add("p.id::text <> $%d", id)
	}
	return strings.Join(where, " AND "), args
}

// Categories lists all categories alphabetically.
func (s PGSource) Categories(ctx context.Context) ([]Category, error) {
	if s.Pool == nil {
		return nil, errors.New("catalog: pool not configured")
	}
	rows, err := s.Pool.Query(ctx, `SELECT id::text, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Image, &p.Brand, &p.Description, &p.CategoryID, &price, &p.CountInStock, &p.Rating, &p.NumReviews, &p.CreatedAt); err != nil {
		return Product{}, err
	}
	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Price = parsed
	return p, nil
}
