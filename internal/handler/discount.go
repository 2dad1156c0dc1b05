package handler

import (
	"encoding/json"
	"net/http"
)

type autoDiscountRequest struct {
	Items []cartLineDTO `json:"items"`
}

type appliedPromotionDTO struct {
	Kind            string  `json:"kind"`
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	Amount          float64 `json:"amount"`
}

type autoDiscountResponse struct {
	Amount  float64               `json:"amount"`
	Applied []appliedPromotionDTO `json:"applied"`
}

// AutoDiscounts computes the code-less bulk and flash sale discounts for
// a cart.
func (h *Handler) AutoDiscounts(w http.ResponseWriter, r *http.Request) {
	var req autoDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid request body")
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

	auto, err := h.discounts.ComputeAutoDiscount(r.Context(), lines)
	if err != nil {
		writeInternalError(r.Context(), w, err)
		return
	}

	resp := autoDiscountResponse{
		Amount:  auto.Amount.InexactFloat64(),
		Applied: make([]appliedPromotionDTO, 0, len(auto.Applied)),
	}
	for _, a := range auto.Applied {
		resp.Applied = append(resp.Applied, appliedPromotionDTO{
			Kind:            string(a.Kind),
			ID:              a.ID,
			Name:            a.Name,
			DiscountPercent: a.DiscountPercent.InexactFloat64(),
			Amount:          a.Amount.InexactFloat64(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
