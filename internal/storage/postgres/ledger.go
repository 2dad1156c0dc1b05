package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velstore/promo-engine/internal/domain/coupon"
)

const (
	// Locks the coupon row so concurrent TryApply calls for the same
	// coupon serialize on it.
	lockCouponSQL = `SELECT usage_limit_per_customer
		FROM coupons WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`

	countCustomerUsesSQL = `SELECT COUNT(*) FROM coupon_usage
		WHERE coupon_id = $1 AND customer_id = $2`

	// The WHERE clause is the authoritative usage-limit check: the
	// increment succeeds only while used_count is under the limit.
	incrementUsedSQL = `UPDATE coupons
		SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	insertUsageSQL = `INSERT INTO coupon_usage
		(id, coupon_id, customer_id, order_id, discount_amount,
		 subtotal_before, subtotal_after, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

// txRetries bounds retry attempts on transient serialization conflicts.
const txRetries = 3

var _ coupon.UsageLedger = (*UsageLedger)(nil)

// UsageLedger implements the atomic redemption commit. The counter
// increment and the ledger insert happen in one transaction under a
// row lock on the coupon, so no pair of concurrent calls can push
// used_count past usage_limit.
type UsageLedger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewUsageLedger returns a UsageLedger that uses the given pool.
func NewUsageLedger(pool *pgxpool.Pool) *UsageLedger {
	return &UsageLedger{pool: pool, now: time.Now}
}

// TryApply atomically reserves a usage slot and records the ledger row.
// A limit refusal comes back as a Rejection with no row written.
func (l *UsageLedger) TryApply(ctx context.Context, u coupon.Usage) (uuid.UUID, *coupon.Rejection, error) {
	var lastErr error
	for attempt := 0; attempt < txRetries; attempt++ {
		id, rej, err := l.tryApplyOnce(ctx, u)
		if err == nil {
			return id, rej, nil
		}
		if !isSerializationError(err) {
			return uuid.Nil, nil, err
		}
		lastErr = err
	}
	return uuid.Nil, nil, errors.Wrap(lastErr, "apply retries exhausted")
}

func (l *UsageLedger) tryApplyOnce(ctx context.Context, u coupon.Usage) (uuid.UUID, *coupon.Rejection, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("beginning apply transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var perCustomerLimit *int
	if err := tx.QueryRow(ctx, lockCouponSQL, u.CouponID).Scan(&perCustomerLimit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, &coupon.Rejection{
				Reason:  coupon.ReasonInvalidCoupon,
				Message: "coupon no longer exists",
			}, nil
		}
		return uuid.Nil, nil, fmt.Errorf("locking coupon %d: %w", u.CouponID, err)
	}

	if perCustomerLimit != nil {
		var uses int
		if err := tx.QueryRow(ctx, countCustomerUsesSQL, u.CouponID, u.CustomerID).Scan(&uses); err != nil {
			return uuid.Nil, nil, fmt.Errorf("counting uses for coupon %d: %w", u.CouponID, err)
		}
		if uses >= *perCustomerLimit {
			return uuid.Nil, &coupon.Rejection{
				Reason:  coupon.ReasonCustomerUsageExceeded,
				Message: "customer usage limit reached",
			}, nil
		}
	}

	tag, err := tx.Exec(ctx, incrementUsedSQL, u.CouponID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("incrementing used_count for coupon %d: %w", u.CouponID, err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, &coupon.Rejection{
			Reason:  coupon.ReasonUsageLimitExceeded,
			Message: "coupon usage limit reached",
		}, nil
	}

	entryID := uuid.New()
	usedAt := u.UsedAt
	if usedAt.IsZero() {
		usedAt = l.now()
	}
	_, err = tx.Exec(ctx, insertUsageSQL,
		entryID, u.CouponID, u.CustomerID, u.OrderID,
		u.DiscountAmount, u.SubtotalBefore, u.SubtotalAfter, usedAt,
	)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("inserting usage row for coupon %d: %w", u.CouponID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, nil, fmt.Errorf("committing apply transaction: %w", err)
	}
	return entryID, nil, nil
}

// isSerializationError matches Postgres serialization failures and
// deadlocks, both safe to retry.
func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
