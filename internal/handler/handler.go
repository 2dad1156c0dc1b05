// Package handler exposes the promotion engine over JSON HTTP endpoints.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/velstore/promo-engine/internal/domain/cart"
	"github.com/velstore/promo-engine/internal/domain/coupon"
	"github.com/velstore/promo-engine/internal/domain/promotion"
)

// CouponService is the validate/apply façade the handler delegates to.
type CouponService interface {
	Validate(ctx context.Context, code string, customerID *int64, lines []cart.Line) (*coupon.ValidationResult, error)
	Apply(ctx context.Context, code string, customerID int64, orderID *int64, lines []cart.Line) (*coupon.ApplyResult, *coupon.Rejection, error)
	ListEligible(ctx context.Context, customerID int64, lines []cart.Line) ([]coupon.EligibleCoupon, error)
	BestAutoApply(ctx context.Context, customerID int64, lines []cart.Line) (*coupon.EligibleCoupon, error)
}

// AutoDiscounter computes code-less automatic discounts.
type AutoDiscounter interface {
	ComputeAutoDiscount(ctx context.Context, lines []cart.Line) (promotion.AutoDiscount, error)
}

// CodeGenerator produces unique coupon codes.
type CodeGenerator interface {
	Generate(ctx context.Context, spec coupon.GenerateSpec) (string, error)
}

// CouponAdmin covers the engine-owned administrative operations.
type CouponAdmin interface {
	SoftDelete(ctx context.Context, couponID int64) error
	UsageStats(ctx context.Context, couponID int64) (*coupon.Stats, error)
}

// Handler serves the engine's HTTP API.
type Handler struct {
	coupons   CouponService
	discounts AutoDiscounter
	generator CodeGenerator
	admin     CouponAdmin
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(coupons CouponService, discounts AutoDiscounter, generator CodeGenerator, admin CouponAdmin) *Handler {
	return &Handler{
		coupons:   coupons,
		discounts: discounts,
		generator: generator,
		admin:     admin,
	}
}

// Routes mounts all API endpoints on a fresh chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/coupons/validate", h.ValidateCoupon)
		r.Post("/coupons/apply", h.ApplyCoupon)
		r.Post("/coupons/eligible", h.ListEligibleCoupons)
		r.Post("/coupons/generate-code", h.GenerateCode)
		r.Get("/coupons/{id}/stats", h.CouponStats)
		r.Delete("/coupons/{id}", h.DeleteCoupon)
		r.Post("/discounts/auto", h.AutoDiscounts)
	})
	return r
}

// errorResponse is the uniform error payload.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRejection(w http.ResponseWriter, rej *coupon.Rejection) {
	writeJSON(w, rejectionStatus(rej.Reason), errorResponse{
		Code:    string(rej.Reason),
		Message: rej.Message,
	})
}

func writeValidationError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    string(coupon.ReasonValidationError),
		Message: msg,
	})
}

func writeInternalError(ctx context.Context, w http.ResponseWriter, err error) {
	zctx.From(ctx).Error("Request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	})
}

// rejectionStatus maps business refusals onto HTTP status codes: limit
// contention is a conflict, everything else is unprocessable.
func rejectionStatus(reason coupon.Reason) int {
	switch reason {
	case coupon.ReasonUsageLimitExceeded, coupon.ReasonCustomerUsageExceeded:
		return http.StatusConflict
	case coupon.ReasonValidationError:
		return http.StatusBadRequest
	case coupon.ReasonInvalidCoupon:
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
}
