package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velstore/promo-engine/internal/domain/coupon"
)

const (
	paidOrderCountSQL = `SELECT COUNT(*) FROM orders
		WHERE customer_id = $1 AND payment_status = 'paid'`

	couponUseCountSQL = `SELECT COUNT(*) FROM coupon_usage
		WHERE coupon_id = $1 AND customer_id = $2`

	isAllowedCustomerSQL = `SELECT EXISTS (
		SELECT 1 FROM coupon_customers
		WHERE coupon_id = $1 AND customer_id = $2)`

	inAnyGroupSQL = `SELECT EXISTS (
		SELECT 1
		FROM coupon_customer_groups cg
		JOIN customer_group_members gm ON gm.group_id = cg.group_id
		WHERE cg.coupon_id = $1 AND gm.customer_id = $2)`
)

var _ coupon.EligibilityStore = (*CustomerStore)(nil)

// CustomerStore answers customer-history queries for the eligibility
// evaluator.
type CustomerStore struct {
	pool *pgxpool.Pool
}

// NewCustomerStore returns a CustomerStore that uses the given pool.
func NewCustomerStore(pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{pool: pool}
}

// PaidOrderCount returns the number of paid orders for the customer.
func (s *CustomerStore) PaidOrderCount(ctx context.Context, customerID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, paidOrderCountSQL, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting paid orders for customer %d: %w", customerID, err)
	}
	return n, nil
}

// CouponUseCount returns the customer's successful redemptions of the coupon.
func (s *CustomerStore) CouponUseCount(ctx context.Context, couponID, customerID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, couponUseCountSQL, couponID, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting uses of coupon %d for customer %d: %w", couponID, customerID, err)
	}
	return n, nil
}

// IsAllowedCustomer reports whether the customer is on the coupon's allow list.
func (s *CustomerStore) IsAllowedCustomer(ctx context.Context, couponID, customerID int64) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, isAllowedCustomerSQL, couponID, customerID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking allow list of coupon %d: %w", couponID, err)
	}
	return ok, nil
}

// InAnyGroup reports whether the customer belongs to any customer group
// linked to the coupon.
func (s *CustomerStore) InAnyGroup(ctx context.Context, couponID, customerID int64) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, inAnyGroupSQL, couponID, customerID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking groups of coupon %d: %w", couponID, err)
	}
	return ok, nil
}
