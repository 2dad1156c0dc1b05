package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velstore/promo-engine/internal/domain/scope"
)

const productCategoriesSQL = `SELECT product_id, category_id
	FROM product_categories WHERE product_id = ANY($1)`

// Catalog resolves product category membership from the catalog tables.
type Catalog struct {
	pool *pgxpool.Pool
}

// NewCatalog returns a Catalog that uses the given pool.
func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// CategoriesFor returns the category IDs each of the given products
// belongs to. Products without categories are absent from the result.
func (c *Catalog) CategoriesFor(ctx context.Context, productIDs []int64) (scope.CatalogIndex, error) {
	if len(productIDs) == 0 {
		return scope.CatalogIndex{}, nil
	}
	rows, err := c.pool.Query(ctx, productCategoriesSQL, productIDs)
	if err != nil {
		return nil, fmt.Errorf("loading product categories: %w", err)
	}
	defer rows.Close()

	index := make(scope.CatalogIndex, len(productIDs))
	for rows.Next() {
		var productID, categoryID int64
		if err := rows.Scan(&productID, &categoryID); err != nil {
			return nil, fmt.Errorf("scanning product category: %w", err)
		}
		index[productID] = append(index[productID], categoryID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading product categories: %w", err)
	}
	return index, nil
}
