package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Product statuses.
const (
	ProductStatusActive     = "active"
	ProductStatusComingSoon = "coming_soon"
	ProductStatusInactive   = "inactive"
)

// Product is a catalog item. Stock of nil means unlimited inventory.
type Product struct {
	SKU         string
	Name        string
	Description string
	PriceCents  int64
	ImageURL    string
	Category    string
	COAURL      string
	Stock       *int64
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InStock reports whether the product can cover the requested quantity.
func (p Product) InStock(quantity int64) bool {
	if p.Stock == nil {
		return true
	}
	return *p.Stock >= quantity
}

// Purchasable reports whether the product may appear in an order.
func (p Product) Purchasable() bool {
	return p.Status == ProductStatusActive
}

const productColumns = `sku, name, description, price_cents, image_url, category, coa_url, stock, status, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.SKU, &p.Name, &p.Description, &p.PriceCents, &p.ImageURL,
		&p.Category, &p.COAURL, &p.Stock, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// ListProducts returns catalog items ordered by name. When includeInactive
// is false only active and coming_soon products are returned.
func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if !includeInactive {
		query += ` WHERE status IN ('active', 'coming_soon')`
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct fetches a single product by SKU.
func (s *Store) GetProduct(ctx context.Context, sku string) (Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	return scanProduct(row)
}

// GetProductsBySKUs fetches the given SKUs in one round trip. Missing SKUs
// are simply absent from the result map.
func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]Product, error) {
	if len(skus) == 0 {
		return map[string]Product{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = ANY($1)`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]Product, len(skus))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.SKU] = p
	}
	return result, rows.Err()
}

// ProductInput carries the admin-editable product fields.
type ProductInput struct {
	SKU         string
	Name        string
	Description string
	PriceCents  int64
	ImageURL    string
	Category    string
	COAURL      string
	Stock       *int64
	Status      string
}

// CreateProduct inserts a catalog item.
func (s *Store) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (sku, name, description, price_cents, image_url, category, coa_url, stock, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+productColumns,
		strings.TrimSpace(input.SKU), input.Name, input.Description, input.PriceCents,
		input.ImageURL, input.Category, input.COAURL, input.Stock, input.Status)
	p, err := scanProduct(row)
	if err != nil {
		return Product{}, mapPGError(err)
	}
	return p, nil
}

// UpdateProduct replaces the editable fields of an existing product.
func (s *Store) UpdateProduct(ctx context.Context, sku string, input ProductInput) (Product, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE products
		SET name = $2, description = $3, price_cents = $4, image_url = $5,
		    category = $6, coa_url = $7, stock = $8, status = $9, updated_at = now()
		WHERE sku = $1
		RETURNING `+productColumns,
		sku, input.Name, input.Description, input.PriceCents, input.ImageURL,
		input.Category, input.COAURL, input.Stock, input.Status)
	return scanProduct(row)
}

// DeleteProduct removes a product from the catalog.
func (s *Store) DeleteProduct(ctx context.Context, sku string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE sku = $1`, sku)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
