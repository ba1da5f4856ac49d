package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogService is the read-only product/variant lookup the order ledger
// resolves against. Catalog mutation happens elsewhere; nothing here writes.
type CatalogService interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetVariant(ctx context.Context, id int64) (*Variant, error)
	ListVariantsByProduct(ctx context.Context, productID int64) ([]Variant, error)
	ListCategories(ctx context.Context) ([]Category, error)
	ListProductsByCategory(ctx context.Context, categoryID int64) ([]Product, error)
}

type catalogService struct {
	pool *pgxpool.Pool
}

func NewCatalogService(pool *pgxpool.Pool) CatalogService {
	return &catalogService{pool: pool}
}

const productColumns = `id, name, category_id, purchase_price, stock_units,
	is_volume_metered, volume_per_container, open_container_remainder, created_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.PurchasePrice, &p.StockUnits,
		&p.IsVolumeMetered, &p.VolumePerContainer, &p.OpenContainerRemainder, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch product %d: %w", id, err)
	}
	return p, nil
}

func (s *catalogService) GetVariant(ctx context.Context, id int64) (*Variant, error) {
	var v Variant
	err := s.pool.QueryRow(ctx,
		"SELECT id, product_id, name, sale_price, serving_volume FROM variants WHERE id = $1", id,
	).Scan(&v.ID, &v.ProductID, &v.Name, &v.SalePrice, &v.ServingVolume)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: variant %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch variant %d: %w", id, err)
	}
	return &v, nil
}

func (s *catalogService) ListVariantsByProduct(ctx context.Context, productID int64) ([]Variant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, name, sale_price, serving_volume
		FROM variants
		WHERE product_id = $1
		ORDER BY name
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants for product %d: %w", productID, err)
	}
	defer rows.Close()

	var variants []Variant
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.SalePrice, &v.ServingVolume); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *catalogService) ListProductsByCategory(ctx context.Context, categoryID int64) ([]Product, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+productColumns+" FROM products WHERE category_id = $1 ORDER BY name", categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products for category %d: %w", categoryID, err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}
