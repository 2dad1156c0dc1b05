package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/velstore/promo-engine/internal/domain/promotion"
	"github.com/velstore/promo-engine/internal/domain/scope"
)

const (
	listBulkRulesSQL = `SELECT id, name, rule_type, target_type, tiers, stackable
		FROM bulk_discount_rules WHERE is_active = TRUE ORDER BY id`

	bulkRuleProductsSQL = `SELECT product_id FROM bulk_rule_products WHERE rule_id = $1`

	bulkRuleCategoriesSQL = `WITH RECURSIVE cat_tree AS (
		SELECT bc.category_id, bc.cascade_subcategory
		FROM bulk_rule_categories bc
		WHERE bc.rule_id = $1
		UNION
		SELECT c.id, ct.cascade_subcategory
		FROM categories c
		JOIN cat_tree ct ON c.parent_id = ct.category_id
		WHERE ct.cascade_subcategory
	)
	SELECT DISTINCT category_id FROM cat_tree`

	listFlashSalesSQL = `SELECT id, name, start_time, end_time, discount_type,
		discount_value, max_discount_amount, usage_limit, used_count, target_type
		FROM flash_sales
		WHERE is_active = TRUE AND start_time <= $1 AND end_time > $1
		ORDER BY id`

	flashSaleProductsSQL = `SELECT product_id FROM flash_sale_products WHERE sale_id = $1`

	flashSaleCategoriesSQL = `WITH RECURSIVE cat_tree AS (
		SELECT fc.category_id, fc.cascade_subcategory
		FROM flash_sale_categories fc
		WHERE fc.sale_id = $1
		UNION
		SELECT c.id, ct.cascade_subcategory
		FROM categories c
		JOIN cat_tree ct ON c.parent_id = ct.category_id
		WHERE ct.cascade_subcategory
	)
	SELECT DISTINCT category_id FROM cat_tree`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository loads bulk discount rules and flash sales.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// tierRecord is the persisted JSONB shape of a single rule tier.
type tierRecord struct {
	Threshold       decimal.Decimal `json:"threshold"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// ListActiveRules returns active bulk rules with scopes resolved. A rule
// whose tier JSON cannot be parsed is returned with no tiers; the engine
// skips and logs it.
func (r *PromotionRepository) ListActiveRules(ctx context.Context) ([]*promotion.BulkRule, error) {
	rows, err := r.pool.Query(ctx, listBulkRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing bulk rules: %w", err)
	}

	type ruleRow struct {
		rule       *promotion.BulkRule
		targetType string
		tiersRaw   []byte
	}
	scanned, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ruleRow, error) {
		var (
			rr  ruleRow
			br  promotion.BulkRule
			typ string
		)
		err := row.Scan(&br.ID, &br.Name, &typ, &rr.targetType, &rr.tiersRaw, &br.Stackable)
		br.RuleType = promotion.RuleType(typ)
		br.Active = true
		rr.rule = &br
		return rr, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing bulk rules: %w", err)
	}

	out := make([]*promotion.BulkRule, 0, len(scanned))
	for _, rr := range scanned {
		// Malformed tier JSON leaves the rule tierless for the engine
		// to skip, rather than failing the whole listing.
		var tiers []tierRecord
		if err := json.Unmarshal(rr.tiersRaw, &tiers); err == nil {
			rr.rule.Tiers = make([]promotion.Tier, 0, len(tiers))
			for _, t := range tiers {
				rr.rule.Tiers = append(rr.rule.Tiers, promotion.Tier{
					Threshold:       t.Threshold,
					DiscountPercent: t.DiscountPercent,
				})
			}
		}

		rr.rule.Scope, err = r.resolveScope(ctx, rr.targetType, rr.rule.ID, bulkRuleProductsSQL, bulkRuleCategoriesSQL)
		if err != nil {
			return nil, fmt.Errorf("loading scope for bulk rule %d: %w", rr.rule.ID, err)
		}
		out = append(out, rr.rule)
	}
	return out, nil
}

// ListFlashSales returns flash sales live at the given instant with
// scopes resolved. Usage-cap filtering is left to the domain.
func (r *PromotionRepository) ListFlashSales(ctx context.Context, now time.Time) ([]*promotion.FlashSale, error) {
	rows, err := r.pool.Query(ctx, listFlashSalesSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing flash sales: %w", err)
	}

	type saleRow struct {
		sale       *promotion.FlashSale
		targetType string
	}
	scanned, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (saleRow, error) {
		var (
			sr  saleRow
			fs  promotion.FlashSale
			typ string
		)
		err := row.Scan(&fs.ID, &fs.Name, &fs.StartsAt, &fs.EndsAt, &typ,
			&fs.Value, &fs.MaxDiscount, &fs.UsageLimit, &fs.UsedCount, &sr.targetType)
		fs.DiscountType = promotion.FlashDiscount(typ)
		fs.Active = true
		sr.sale = &fs
		return sr, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing flash sales: %w", err)
	}

	out := make([]*promotion.FlashSale, 0, len(scanned))
	for _, sr := range scanned {
		sr.sale.Scope, err = r.resolveScope(ctx, sr.targetType, sr.sale.ID, flashSaleProductsSQL, flashSaleCategoriesSQL)
		if err != nil {
			return nil, fmt.Errorf("loading scope for flash sale %d: %w", sr.sale.ID, err)
		}
		out = append(out, sr.sale)
	}
	return out, nil
}

func (r *PromotionRepository) resolveScope(ctx context.Context, targetType string, id int64, productsSQL, categoriesSQL string) (scope.Scope, error) {
	s := scopeFromTarget(targetType)
	if s.Mode == scope.All {
		return s, nil
	}

	products, err := collectIDSet(ctx, r.pool, productsSQL, id)
	if err != nil {
		return scope.Scope{}, err
	}
	categories, err := collectIDSet(ctx, r.pool, categoriesSQL, id)
	if err != nil {
		return scope.Scope{}, err
	}
	s.Products = products
	s.Categories = categories
	return s, nil
}

func scopeFromTarget(targetType string) scope.Scope {
	switch targetType {
	case "specific_products", "specific_categories":
		return scope.Scope{Mode: scope.IncludeOnly}
	case "exclude_products", "exclude_categories":
		return scope.Scope{Mode: scope.ExcludeOnly}
	default:
		return scope.Everything()
	}
}
