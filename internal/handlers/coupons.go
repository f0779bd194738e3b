package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/httpx"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

const maxCouponBodySize = 4 * 1024

// CouponHandlers exposes coupon validation and application to shoppers.
type CouponHandlers struct {
	authn   *auth.Authenticator
	coupons services.CouponService
	limiter RateLimiter
}

// NewCouponHandlers constructs the coupon endpoints. A nil limiter disables rate limiting.
func NewCouponHandlers(authn *auth.Authenticator, coupons services.CouponService, limiter RateLimiter) *CouponHandlers {
	return &CouponHandlers{authn: authn, coupons: coupons, limiter: limiter}
}

// Routes registers the /coupons endpoints.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.With(rateLimit(h.limiter, callerKey)).Post("/validate", h.validateCoupon)
	r.Post("/apply", h.applyCoupon)
}

type validateCouponRequest struct {
	Code        string           `json:"code"`
	OrderAmount *decimal.Decimal `json:"order_amount"`
}

type applyCouponRequest struct {
	CouponID       string          `json:"coupon_id"`
	OrderID        string          `json:"order_id"`
	OrderAmount    decimal.Decimal `json:"order_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

func (h *CouponHandlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		unavailable(w, r, "coupon")
		return
	}
	var req validateCouponRequest
	if !decodeJSONBody(w, r, maxCouponBodySize, &req) {
		return
	}
	if req.OrderAmount == nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "order_amount is required", http.StatusBadRequest))
		return
	}
	quote, err := h.coupons.ValidateCoupon(ctx, services.ValidateCouponCommand{
		Code:        req.Code,
		OrderAmount: *req.OrderAmount,
		UserID:      viewerFromRequest(r).UserID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"coupon":          publicCouponPayload(quote.Coupon),
		"discount_amount": amount(quote.DiscountAmount),
		"final_amount":    amount(quote.FinalAmount),
	})
}

func (h *CouponHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		unavailable(w, r, "coupon")
		return
	}
	viewer, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req applyCouponRequest
	if !decodeJSONBody(w, r, maxCouponBodySize, &req) {
		return
	}
	usage, err := h.coupons.ApplyCoupon(ctx, services.ApplyCouponCommand{
		CouponID:       strings.TrimSpace(req.CouponID),
		OrderID:        strings.TrimSpace(req.OrderID),
		OrderAmount:    req.OrderAmount,
		DiscountAmount: req.DiscountAmount,
		UserID:         viewer.UserID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"usage": buildCouponUsagePayload(usage)})
}
