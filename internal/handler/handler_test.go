package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velstore/promo-engine/internal/domain/cart"
	"github.com/velstore/promo-engine/internal/domain/coupon"
	"github.com/velstore/promo-engine/internal/domain/promotion"
)

type mockCouponService struct {
	validateRes *coupon.ValidationResult
	applyRes    *coupon.ApplyResult
	applyRej    *coupon.Rejection
	eligible    []coupon.EligibleCoupon
	best        *coupon.EligibleCoupon
	err         error

	gotCode     string
	gotCustomer *int64
	gotLines    []cart.Line
}

func (m *mockCouponService) Validate(_ context.Context, code string, customerID *int64, lines []cart.Line) (*coupon.ValidationResult, error) {
	m.gotCode, m.gotCustomer, m.gotLines = code, customerID, lines
	return m.validateRes, m.err
}

func (m *mockCouponService) Apply(_ context.Context, code string, customerID int64, _ *int64, lines []cart.Line) (*coupon.ApplyResult, *coupon.Rejection, error) {
	m.gotCode, m.gotCustomer, m.gotLines = code, &customerID, lines
	return m.applyRes, m.applyRej, m.err
}

func (m *mockCouponService) ListEligible(_ context.Context, _ int64, _ []cart.Line) ([]coupon.EligibleCoupon, error) {
	return m.eligible, m.err
}

func (m *mockCouponService) BestAutoApply(_ context.Context, _ int64, _ []cart.Line) (*coupon.EligibleCoupon, error) {
	return m.best, m.err
}

type mockDiscounter struct {
	res promotion.AutoDiscount
	err error
}

func (m *mockDiscounter) ComputeAutoDiscount(_ context.Context, _ []cart.Line) (promotion.AutoDiscount, error) {
	return m.res, m.err
}

type mockGenerator struct {
	code string
	err  error
	spec coupon.GenerateSpec
}

func (m *mockGenerator) Generate(_ context.Context, spec coupon.GenerateSpec) (string, error) {
	m.spec = spec
	return m.code, m.err
}

type mockAdmin struct {
	stats     *coupon.Stats
	deleteErr error
	deletedID int64
}

func (m *mockAdmin) SoftDelete(_ context.Context, couponID int64) error {
	m.deletedID = couponID
	return m.deleteErr
}

func (m *mockAdmin) UsageStats(_ context.Context, _ int64) (*coupon.Stats, error) {
	return m.stats, nil
}

func newTestHandler(svc *mockCouponService, disc *mockDiscounter, gen *mockGenerator, admin *mockAdmin) http.Handler {
	if svc == nil {
		svc = &mockCouponService{}
	}
	if disc == nil {
		disc = &mockDiscounter{}
	}
	if gen == nil {
		gen = &mockGenerator{}
	}
	if admin == nil {
		admin = &mockAdmin{}
	}
	return NewHandler(svc, disc, gen, admin).Routes()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestValidateCoupon(t *testing.T) {
	svc := &mockCouponService{
		validateRes: &coupon.ValidationResult{
			Valid: true,
			Coupon: &coupon.Coupon{
				ID:    1,
				Code:  "SAVE10",
				Type:  coupon.TypePercentage,
				Value: decimal.NewFromInt(10),
			},
			Discount: &coupon.Result{
				Amount:             decimal.NewFromInt(100),
				ApplicableSubtotal: decimal.NewFromInt(1000),
			},
		},
	}
	h := newTestHandler(svc, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/coupons/validate", map[string]any{
		"code":        "SAVE10",
		"customer_id": 7,
		"items": []map[string]any{
			{"product_id": 1, "unit_price": 500.0, "quantity": 2},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	require.NotNil(t, resp.Discount)
	assert.InDelta(t, 100.0, resp.Discount.Amount, 0.001)

	assert.Equal(t, "SAVE10", svc.gotCode)
	require.NotNil(t, svc.gotCustomer)
	assert.Equal(t, int64(7), *svc.gotCustomer)
	require.Len(t, svc.gotLines, 1)
	assert.Equal(t, 2, svc.gotLines[0].Quantity)
}

func TestValidateCoupon_Rejected(t *testing.T) {
	svc := &mockCouponService{
		validateRes: &coupon.ValidationResult{
			Rejection: &coupon.Rejection{
				Reason:  coupon.ReasonMinimumAmountNotMet,
				Message: "cart subtotal 100.00 is below the minimum 500.00",
			},
		},
	}
	h := newTestHandler(svc, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/coupons/validate", map[string]any{
		"code": "SAVE10",
	})

	// Rejections on preview are a valid=false payload, not an HTTP error.
	require.Equal(t, http.StatusOK, rec.Code)
	var resp validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, string(coupon.ReasonMinimumAmountNotMet), resp.ErrorCode)
}

func TestValidateCoupon_BadBody(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateCoupon_BadQuantity(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/coupons/validate", map[string]any{
		"code": "SAVE10",
		"items": []map[string]any{
			{"product_id": 1, "unit_price": 10.0, "quantity": 0},
		},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyCoupon(t *testing.T) {
	entryID := uuid.New()
	svc := &mockCouponService{
		applyRes: &coupon.ApplyResult{
			Coupon: &coupon.Coupon{ID: 1, Code: "SAVE10", Type: coupon.TypePercentage, Value: decimal.NewFromInt(10)},
			Discount: coupon.Result{
				Amount:             decimal.NewFromInt(50),
				ApplicableSubtotal: decimal.NewFromInt(500),
			},
			EntryID: entryID,
		},
	}
	h := newTestHandler(svc, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/coupons/apply", map[string]any{
		"code":        "SAVE10",
		"customer_id": 7,
		"order_id":    1001,
		"items": []map[string]any{
			{"product_id": 1, "unit_price": 500.0, "quantity": 1},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp applyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, entryID.String(), resp.EntryID)
	assert.InDelta(t, 50.0, resp.Discount.Amount, 0.001)
}

func TestApplyCoupon_UsageLimitConflict(t *testing.T) {
	svc := &mockCouponService{
		applyRej: &coupon.Rejection{
			Reason:  coupon.ReasonUsageLimitExceeded,
			Message: "coupon usage limit reached",
		},
	}
	h := newTestHandler(svc, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/coupons/apply", map[string]any{
		"code":        "LIMITED",
		"customer_id": 7,
		"items": []map[string]any{
			{"product_id": 1, "unit_price": 100.0, "quantity": 1},
		},
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(coupon.ReasonUsageLimitExceeded), resp.Code)
}

func TestApplyCoupon_MissingCustomer(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/coupons/apply", map[string]any{
		"code": "SAVE10",
		"items": []map[string]any{
			{"product_id": 1, "unit_price": 100.0, "quantity": 1},
		},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEligibleCoupons(t *testing.T) {
	svc := &mockCouponService{
		eligible: []coupon.EligibleCoupon{
			{
				Coupon:   &coupon.Coupon{ID: 1, Code: "SAVE10", Type: coupon.TypePercentage},
				Discount: coupon.Result{Amount: decimal.NewFromInt(10)},
			},
		},
		best: &coupon.EligibleCoupon{
			Coupon:   &coupon.Coupon{ID: 2, Code: "AUTO5", Type: coupon.TypeFixed, AutoApply: true},
			Discount: coupon.Result{Amount: decimal.NewFromInt(5)},
		},
	}
	h := newTestHandler(svc, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/coupons/eligible", map[string]any{
		"customer_id": 7,
		"items": []map[string]any{
			{"product_id": 1, "unit_price": 100.0, "quantity": 1},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp eligibleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Coupons, 1)
	assert.Equal(t, "SAVE10", resp.Coupons[0].Coupon.Code)
	require.NotNil(t, resp.AutoApply)
	assert.Equal(t, "AUTO5", resp.AutoApply.Coupon.Code)
}

func TestGenerateCode(t *testing.T) {
	gen := &mockGenerator{code: "SUMMER-X7K2"}
	h := newTestHandler(nil, nil, gen, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/coupons/generate-code", map[string]any{
		"length":   4,
		"prefix":   "SUMMER-",
		"alphabet": "readable",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp generateCodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SUMMER-X7K2", resp.Code)
	assert.Equal(t, coupon.AlphabetReadable, gen.spec.Alphabet)
}

func TestGenerateCode_UnknownAlphabet(t *testing.T) {
	h := newTestHandler(nil, nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/coupons/generate-code", map[string]any{
		"alphabet": "hex",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateCode_Exhausted(t *testing.T) {
	gen := &mockGenerator{err: coupon.ErrCodeSpaceExhausted}
	h := newTestHandler(nil, nil, gen, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/coupons/generate-code", map[string]any{})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAutoDiscounts(t *testing.T) {
	disc := &mockDiscounter{
		res: promotion.AutoDiscount{
			Amount: decimal.NewFromInt(12),
			Applied: []promotion.Applied{
				{
					Kind:            promotion.KindBulkRule,
					ID:              1,
					Name:            "bulk tee discount",
					DiscountPercent: decimal.NewFromInt(10),
					Amount:          decimal.NewFromInt(12),
				},
			},
		},
	}
	h := newTestHandler(nil, disc, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/discounts/auto", map[string]any{
		"items": []map[string]any{
			{"product_id": 1, "unit_price": 20.0, "quantity": 6},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp autoDiscountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 12.0, resp.Amount, 0.001)
	require.Len(t, resp.Applied, 1)
	assert.Equal(t, "bulk_rule", resp.Applied[0].Kind)
}

func TestDeleteCoupon(t *testing.T) {
	admin := &mockAdmin{}
	h := newTestHandler(nil, nil, nil, admin)

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/coupons/42", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(42), admin.deletedID)
}

func TestDeleteCoupon_NotFound(t *testing.T) {
	admin := &mockAdmin{deleteErr: coupon.ErrNotFound}
	h := newTestHandler(nil, nil, nil, admin)

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/coupons/42", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCouponStats(t *testing.T) {
	admin := &mockAdmin{
		stats: &coupon.Stats{
			TotalUses:       12,
			UniqueCustomers: 9,
			TotalDiscounted: decimal.NewFromInt(840),
		},
	}
	h := newTestHandler(nil, nil, nil, admin)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/coupons/42/stats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 12, resp.TotalUses)
	assert.Equal(t, 9, resp.UniqueCustomers)
	assert.InDelta(t, 840.0, resp.TotalDiscounted, 0.001)
}
