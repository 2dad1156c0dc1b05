package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velstore/promo-engine/internal/domain/coupon"
	"github.com/velstore/promo-engine/internal/domain/scope"
)

const (
	couponColumns = `id, code, name, description, type, value, max_discount_amount,
		minimum_amount, maximum_amount, minimum_quantity, usage_limit,
		usage_limit_per_customer, valid_from, valid_until, customer_eligibility,
		product_eligibility, stackable, auto_apply, requires_shipping_address,
		priority, buy_x_get_y_config, is_active, used_count`

	findCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1) AND deleted_at IS NULL`

	couponCodeExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM coupons WHERE UPPER(code) = UPPER($1))`

	listAutoApplySQL = `SELECT ` + couponColumns + `
		FROM coupons
		WHERE is_active = TRUE AND auto_apply = TRUE AND deleted_at IS NULL
		ORDER BY priority DESC, id`

	listActiveSQL = `SELECT ` + couponColumns + `
		FROM coupons
		WHERE is_active = TRUE AND deleted_at IS NULL
		ORDER BY id`

	couponProductsSQL = `SELECT product_id FROM coupon_products WHERE coupon_id = $1`

	// Expands category restrictions downward through the category tree
	// for rows flagged to cascade.
	couponCategoriesSQL = `WITH RECURSIVE cat_tree AS (
		SELECT cc.category_id, cc.cascade_subcategory
		FROM coupon_categories cc
		WHERE cc.coupon_id = $1
		UNION
		SELECT c.id, ct.cascade_subcategory
		FROM categories c
		JOIN cat_tree ct ON c.parent_id = ct.category_id
		WHERE ct.cascade_subcategory
	)
	SELECT DISTINCT category_id FROM cat_tree`

	softDeleteCouponSQL = `UPDATE coupons
		SET deleted_at = now(), is_active = FALSE, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`

	couponStatsSQL = `SELECT COUNT(*),
		COUNT(DISTINCT customer_id),
		COALESCE(SUM(discount_amount), 0),
		MIN(used_at),
		MAX(used_at)
		FROM coupon_usage WHERE coupon_id = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive) and loads
// its restriction sets. Returns coupon.ErrNotFound when no coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	if err := r.loadScope(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CodeExists reports whether any coupon, including soft-deleted ones,
// carries the code. Deleted codes stay reserved so the ledger keeps a
// single owner per code.
func (r *CouponRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, couponCodeExistsSQL, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking coupon code %q: %w", code, err)
	}
	return exists, nil
}

// ListAutoApply returns active auto-apply coupons ordered by descending
// priority, with restriction sets loaded.
func (r *CouponRepository) ListAutoApply(ctx context.Context) ([]*coupon.Coupon, error) {
	return r.list(ctx, listAutoApplySQL)
}

// ListActive returns all active coupons with restriction sets loaded.
func (r *CouponRepository) ListActive(ctx context.Context) ([]*coupon.Coupon, error) {
	return r.list(ctx, listActiveSQL)
}

// SoftDelete deactivates a coupon while preserving its usage ledger.
func (r *CouponRepository) SoftDelete(ctx context.Context, couponID int64) error {
	tag, err := r.pool.Exec(ctx, softDeleteCouponSQL, couponID)
	if err != nil {
		return fmt.Errorf("soft-deleting coupon %d: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// UsageStats aggregates the usage ledger for a coupon.
func (r *CouponRepository) UsageStats(ctx context.Context, couponID int64) (*coupon.Stats, error) {
	var s coupon.Stats
	err := r.pool.QueryRow(ctx, couponStatsSQL, couponID).Scan(
		&s.TotalUses, &s.UniqueCustomers, &s.TotalDiscounted, &s.FirstUsedAt, &s.LastUsedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("loading usage stats for coupon %d: %w", couponID, err)
	}
	return &s, nil
}

func (r *CouponRepository) list(ctx context.Context, query string) ([]*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	for _, c := range coupons {
		if err := r.loadScope(ctx, c); err != nil {
			return nil, err
		}
	}
	return coupons, nil
}

func (r *CouponRepository) loadScope(ctx context.Context, c *coupon.Coupon) error {
	if c.Scope.Mode == scope.All {
		return nil
	}

	products, err := collectIDSet(ctx, r.pool, couponProductsSQL, c.ID)
	if err != nil {
		return fmt.Errorf("loading product restrictions for coupon %d: %w", c.ID, err)
	}
	categories, err := collectIDSet(ctx, r.pool, couponCategoriesSQL, c.ID)
	if err != nil {
		return fmt.Errorf("loading category restrictions for coupon %d: %w", c.ID, err)
	}
	c.Scope.Products = products
	c.Scope.Categories = categories
	return nil
}

func collectIDSet(ctx context.Context, pool *pgxpool.Pool, query string, id int64) (map[int64]struct{}, error) {
	rows, err := pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(ids))
	for _, v := range ids {
		set[v] = struct{}{}
	}
	return set, nil
}

// buyXGetYRecord is the persisted JSONB shape of a buy-x-get-y config.
type buyXGetYRecord struct {
	BuyQuantity        int             `json:"buy_quantity"`
	GetQuantity        int             `json:"get_quantity"`
	GetDiscountPercent decimal.Decimal `json:"get_discount_percent"`
}

func scanCoupon(row pgx.CollectableRow) (*coupon.Coupon, error) {
	var (
		c                  coupon.Coupon
		couponType         string
		eligibility        string
		productEligibility string
		validFrom          time.Time
		bxgyRaw            []byte
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &couponType, &c.Value,
		&c.MaxDiscountAmount, &c.MinimumAmount, &c.MaximumAmount,
		&c.MinimumQuantity, &c.UsageLimit, &c.UsageLimitPerCustomer,
		&validFrom, &c.ValidUntil, &eligibility, &productEligibility,
		&c.Stackable, &c.AutoApply, &c.RequiresShippingAddress,
		&c.Priority, &bxgyRaw, &c.Active, &c.UsedCount,
	)
	if err != nil {
		return nil, err
	}

	c.Type = coupon.Type(couponType)
	c.CustomerEligibility = coupon.Eligibility(eligibility)
	c.ValidFrom = &validFrom
	c.Scope = scopeFromEligibility(productEligibility)

	if len(bxgyRaw) > 0 {
		var rec buyXGetYRecord
		if err := json.Unmarshal(bxgyRaw, &rec); err != nil {
			return nil, fmt.Errorf("parsing buy_x_get_y_config for coupon %d: %w", c.ID, err)
		}
		c.BuyXGetY = &coupon.BuyXGetYConfig{
			BuyQuantity:        rec.BuyQuantity,
			GetQuantity:        rec.GetQuantity,
			GetDiscountPercent: rec.GetDiscountPercent,
		}
	}
	return &c, nil
}

func scopeFromEligibility(productEligibility string) scope.Scope {
	switch productEligibility {
	case "specific_products", "specific_categories":
		return scope.Scope{Mode: scope.IncludeOnly}
	case "exclude_products", "exclude_categories":
		return scope.Scope{Mode: scope.ExcludeOnly}
	default:
		return scope.Everything()
	}
}
