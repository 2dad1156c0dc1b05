// Command seed-db creates the schema and loads a demo dataset: a small
// catalog with a category tree, customers with order history, coupons of
// every type, a bulk discount rule, and a flash sale.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velstore/promo-engine/internal/storage/postgres"
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"catalog", seedCatalog},
		{"customers", seedCustomers},
		{"coupons", seedCoupons},
		{"promotions", seedPromotions},
	}
	for _, s := range steps {
		slog.Info("seeding", slog.String("step", s.name))
		if err := s.fn(ctx, pool); err != nil {
			return errors.Wrapf(err, "seed %s", s.name)
		}
	}
	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	const sql = `
	INSERT INTO categories (id, name, parent_id) VALUES
		(1, 'Apparel', NULL),
		(2, 'Shirts', 1),
		(3, 'Shoes', 1),
		(4, 'Electronics', NULL)
	ON CONFLICT (id) DO NOTHING;

	INSERT INTO products (id, name, price) VALUES
		(1, 'Linen shirt', 59.00),
		(2, 'Oxford shirt', 79.00),
		(3, 'Trail runner', 129.00),
		(4, 'Noise-cancelling headphones', 299.00)
	ON CONFLICT (id) DO NOTHING;

	INSERT INTO product_categories (product_id, category_id) VALUES
		(1, 2), (2, 2), (3, 3), (4, 4)
	ON CONFLICT DO NOTHING;

	SELECT setval('categories_id_seq', 100);
	SELECT setval('products_id_seq', 100);`

	_, err := pool.Exec(ctx, sql)
	return err
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool) error {
	const sql = `
	INSERT INTO customers (id) VALUES (1), (2), (3)
	ON CONFLICT (id) DO NOTHING;

	INSERT INTO orders (id, customer_id, payment_status) VALUES
		(1, 1, 'paid'),
		(2, 1, 'paid'),
		(3, 2, 'pending')
	ON CONFLICT (id) DO NOTHING;

	INSERT INTO customer_groups (id, name) VALUES (1, 'VIP')
	ON CONFLICT (id) DO NOTHING;

	INSERT INTO customer_group_members (group_id, customer_id) VALUES (1, 1)
	ON CONFLICT DO NOTHING;

	SELECT setval('customers_id_seq', 100);
	SELECT setval('orders_id_seq', 100);
	SELECT setval('customer_groups_id_seq', 100);`

	_, err := pool.Exec(ctx, sql)
	return err
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	const sql = `
	INSERT INTO coupons
		(id, code, name, type, value, max_discount_amount, minimum_amount,
		 usage_limit, usage_limit_per_customer, customer_eligibility,
		 product_eligibility, stackable, auto_apply, priority, buy_x_get_y_config)
	VALUES
		(1, 'SAVE10', 'Ten percent off', 'percentage', 10, 200, 0,
		 NULL, NULL, 'all', 'all', FALSE, FALSE, 0, NULL),
		(2, 'FLAT500', 'Flat 500 off', 'fixed_amount', 500, NULL, 1000,
		 100, 1, 'all', 'all', FALSE, FALSE, 0, NULL),
		(3, 'SHIRTDEAL', 'Buy two shirts get one', 'buy_x_get_y', 0, NULL, 0,
		 NULL, NULL, 'all', 'specific_categories', FALSE, FALSE, 0,
		 '{"buy_quantity": 2, "get_quantity": 1, "get_discount_percent": 100}'),
		(4, 'VIPSHIP', 'Free shipping for VIPs', 'free_shipping', 0, NULL, 0,
		 NULL, NULL, 'customer_groups', 'all', TRUE, TRUE, 10, NULL),
		(5, 'WELCOME', 'New customer discount', 'percentage', 15, 100, 0,
		 NULL, 1, 'new_customers', 'all', FALSE, TRUE, 5, NULL)
	ON CONFLICT (id) DO NOTHING;

	INSERT INTO coupon_categories (coupon_id, category_id, cascade_subcategory)
	VALUES (3, 1, TRUE)
	ON CONFLICT DO NOTHING;

	INSERT INTO coupon_customer_groups (coupon_id, group_id) VALUES (4, 1)
	ON CONFLICT DO NOTHING;

	SELECT setval('coupons_id_seq', 100);`

	_, err := pool.Exec(ctx, sql)
	return err
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	now := time.Now().UTC()
	const rulesSQL = `
	INSERT INTO bulk_discount_rules (id, name, rule_type, target_type, tiers, stackable)
	VALUES
		(1, 'Volume discount', 'quantity_based', 'all_products',
		 '[{"threshold": 5, "discount_percent": 5}, {"threshold": 10, "discount_percent": 10}]',
		 TRUE),
		(2, 'Big basket discount', 'amount_based', 'specific_categories',
		 '[{"threshold": 500, "discount_percent": 8}]',
		 FALSE)
	ON CONFLICT (id) DO NOTHING;

	INSERT INTO bulk_rule_categories (rule_id, category_id, cascade_subcategory)
	VALUES (2, 1, TRUE)
	ON CONFLICT DO NOTHING;

	SELECT setval('bulk_discount_rules_id_seq', 100);`

	if _, err := pool.Exec(ctx, rulesSQL); err != nil {
		return err
	}

	const saleSQL = `
	INSERT INTO flash_sales
		(id, name, start_time, end_time, discount_type, discount_value, target_type, usage_limit)
	VALUES (1, 'Weekend flash sale', $1, $2, 'percentage', 20, 'specific_categories', 1000)
	ON CONFLICT (id) DO NOTHING`

	if _, err := pool.Exec(ctx, saleSQL, now.Add(-time.Hour), now.Add(48*time.Hour)); err != nil {
		return err
	}

	const saleScopeSQL = `
	INSERT INTO flash_sale_categories (sale_id, category_id, cascade_subcategory)
	VALUES (1, 4, FALSE)
	ON CONFLICT DO NOTHING;

	SELECT setval('flash_sales_id_seq', 100);`

	_, err := pool.Exec(ctx, saleScopeSQL)
	return err
}
