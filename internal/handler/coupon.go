package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/velstore/promo-engine/internal/domain/cart"
	"github.com/velstore/promo-engine/internal/domain/coupon"
)

type cartLineDTO struct {
	ProductID int64   `json:"product_id"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

func parseLines(dtos []cartLineDTO) ([]cart.Line, error) {
	lines := make([]cart.Line, len(dtos))
	for i, d := range dtos {
		if d.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be greater than 0 for product %d", d.ProductID)
		}
		if d.UnitPrice < 0 {
			return nil, fmt.Errorf("unit price must not be negative for product %d", d.ProductID)
		}
		lines[i] = cart.Line{
			ProductID: d.ProductID,
			UnitPrice: decimal.NewFromFloat(d.UnitPrice),
			Quantity:  d.Quantity,
		}
	}
	return lines, nil
}

type couponDTO struct {
	ID        int64   `json:"id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Stackable bool    `json:"stackable"`
	AutoApply bool    `json:"auto_apply"`
	Priority  int     `json:"priority"`
}

func toCouponDTO(c *coupon.Coupon) *couponDTO {
	return &couponDTO{
		ID:        c.ID,
		Code:      c.Code,
		Name:      c.Name,
		Type:      string(c.Type),
		Value:     c.Value.InexactFloat64(),
		Stackable: c.Stackable,
		AutoApply: c.AutoApply,
		Priority:  c.Priority,
	}
}

type freeUnitDTO struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type discountDTO struct {
	Amount             float64       `json:"amount"`
	FreeShipping       bool          `json:"free_shipping"`
	ApplicableSubtotal float64       `json:"applicable_subtotal"`
	FreeUnits          []freeUnitDTO `json:"free_units,omitempty"`
}

func toDiscountDTO(d *coupon.Result) *discountDTO {
	if d == nil {
		return nil
	}
	out := &discountDTO{
		Amount:             d.Amount.InexactFloat64(),
		FreeShipping:       d.FreeShipping,
		ApplicableSubtotal: d.ApplicableSubtotal.InexactFloat64(),
	}
	for _, fu := range d.FreeUnits {
		out.FreeUnits = append(out.FreeUnits, freeUnitDTO{
			ProductID: fu.ProductID,
			Quantity:  fu.Quantity,
			UnitPrice: fu.UnitPrice.InexactFloat64(),
		})
	}
	return out
}

type validateRequest struct {
	Code       string        `json:"code"`
	CustomerID *int64        `json:"customer_id,omitempty"`
	Items      []cartLineDTO `json:"items,omitempty"`
}

type validateResponse struct {
	Valid     bool         `json:"valid"`
	ErrorCode string       `json:"error_code,omitempty"`
	Message   string       `json:"message,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Coupon    *couponDTO   `json:"coupon,omitempty"`
	Discount  *discountDTO `json:"discount,omitempty"`
}

// ValidateCoupon previews a coupon without consuming a usage slot.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}
	lines, err := parseLines(req.Items)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	res, err := h.coupons.Validate(r.Context(), req.Code, req.CustomerID, lines)
	if err != nil {
		writeInternalError(r.Context(), w, err)
		return
	}

	if res.Rejection != nil {
		writeJSON(w, http.StatusOK, validateResponse{
			Valid:     false,
			ErrorCode: string(res.Rejection.Reason),
			Message:   res.Rejection.Message,
		})
		return
	}

	resp := validateResponse{
		Valid:    true,
		Coupon:   toCouponDTO(res.Coupon),
		Discount: toDiscountDTO(res.Discount),
	}
	if res.Reason != "" {
		resp.Reason = string(res.Reason)
	}
	writeJSON(w, http.StatusOK, resp)
}

type applyRequest struct {
	Code       string        `json:"code"`
	CustomerID *int64        `json:"customer_id"`
	OrderID    *int64        `json:"order_id,omitempty"`
	Items      []cartLineDTO `json:"items"`
}

type applyResponse struct {
	Coupon   *couponDTO   `json:"coupon"`
	Discount *discountDTO `json:"discount"`
	EntryID  string       `json:"entry_id"`
}

// ApplyCoupon commits a redemption through the usage ledger.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}
	if req.CustomerID == nil {
		writeValidationError(w, "customer_id is required")
		return
	}
	if len(req.Items) == 0 {
		writeValidationError(w, "items are required")
		return
	}
	lines, err := parseLines(req.Items)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	res, rej, err := h.coupons.Apply(r.Context(), req.Code, *req.CustomerID, req.OrderID, lines)
	if err != nil {
		writeInternalError(r.Context(), w, err)
		return
	}
	if rej != nil {
		writeRejection(w, rej)
		return
	}

	writeJSON(w, http.StatusOK, applyResponse{
		Coupon:   toCouponDTO(res.Coupon),
		Discount: toDiscountDTO(&res.Discount),
		EntryID:  res.EntryID.String(),
	})
}

type eligibleRequest struct {
	CustomerID *int64        `json:"customer_id"`
	Items      []cartLineDTO `json:"items"`
}

type eligibleCouponDTO struct {
	Coupon   *couponDTO   `json:"coupon"`
	Discount *discountDTO `json:"discount"`
}

type eligibleResponse struct {
	Coupons   []eligibleCouponDTO `json:"coupons"`
	AutoApply *eligibleCouponDTO  `json:"auto_apply,omitempty"`
}

// ListEligibleCoupons returns every coupon the customer could redeem for
// the cart, plus the auto-apply pick if one qualifies.
func (h *Handler) ListEligibleCoupons(w http.ResponseWriter, r *http.Request) {
	var req eligibleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}
	if req.CustomerID == nil {
		writeValidationError(w, "customer_id is required")
		return
	}
	lines, err := parseLines(req.Items)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	eligible, err := h.coupons.ListEligible(r.Context(), *req.CustomerID, lines)
	if err != nil {
		writeInternalError(r.Context(), w, err)
		return
	}
	best, err := h.coupons.BestAutoApply(r.Context(), *req.CustomerID, lines)
	if err != nil {
		writeInternalError(r.Context(), w, err)
		return
	}

	resp := eligibleResponse{Coupons: make([]eligibleCouponDTO, 0, len(eligible))}
	for i := range eligible {
		resp.Coupons = append(resp.Coupons, eligibleCouponDTO{
			Coupon:   toCouponDTO(eligible[i].Coupon),
			Discount: toDiscountDTO(&eligible[i].Discount),
		})
	}
	if best != nil {
		resp.AutoApply = &eligibleCouponDTO{
			Coupon:   toCouponDTO(best.Coupon),
			Discount: toDiscountDTO(&best.Discount),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type generateCodeRequest struct {
	Length   int    `json:"length,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	Suffix   string `json:"suffix,omitempty"`
	Alphabet string `json:"alphabet,omitempty"`
}

type generateCodeResponse struct {
	Code string `json:"code"`
}

// GenerateCode produces a fresh unique coupon code.
func (h *Handler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	var req generateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
		return
	}

	alphabet, err := parseAlphabet(req.Alphabet)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	code, err := h.generator.Generate(r.Context(), coupon.GenerateSpec{
		Length:   req.Length,
		Prefix:   req.Prefix,
		Suffix:   req.Suffix,
		Alphabet: alphabet,
	})
	if err != nil {
		if errors.Is(err, coupon.ErrCodeSpaceExhausted) {
			writeJSON(w, http.StatusConflict, errorResponse{
				Code:    "CODE_SPACE_EXHAUSTED",
				Message: err.Error(),
			})
			return
		}
		writeValidationError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, generateCodeResponse{Code: code})
}

func parseAlphabet(name string) (coupon.Alphabet, error) {
	switch name {
	case "", "full":
		return coupon.AlphabetFull, nil
	case "digits":
		return coupon.AlphabetDigits, nil
	case "readable":
		return coupon.AlphabetReadable, nil
	default:
		return "", fmt.Errorf("unknown alphabet %q", name)
	}
}

type statsResponse struct {
	TotalUses       int        `json:"total_uses"`
	UniqueCustomers int        `json:"unique_customers"`
	TotalDiscounted float64    `json:"total_discounted"`
	FirstUsedAt     *time.Time `json:"first_used_at,omitempty"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
}

// CouponStats aggregates the usage ledger for one coupon.
func (h *Handler) CouponStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeValidationError(w, "invalid coupon id")
		return
	}

	stats, err := h.admin.UsageStats(r.Context(), id)
	if err != nil {
		writeInternalError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalUses:       stats.TotalUses,
		UniqueCustomers: stats.UniqueCustomers,
		TotalDiscounted: stats.TotalDiscounted.InexactFloat64(),
		FirstUsedAt:     stats.FirstUsedAt,
		LastUsedAt:      stats.LastUsedAt,
	})
}

// DeleteCoupon soft-deletes a coupon, preserving its usage ledger.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeValidationError(w, "invalid coupon id")
		return
	}

	if err := h.admin.SoftDelete(r.Context(), id); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{
				Code:    string(coupon.ReasonInvalidCoupon),
				Message: "coupon not found",
			})
			return
		}
		writeInternalError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
