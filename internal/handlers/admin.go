package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/httpx"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

const (
	maxAdminBodySize     = 16 * 1024
	refundIdempotencyKey = "Idempotency-Key"
)

// AdminHandlers exposes back-office operations for coupons, orders, refunds and shipments.
type AdminHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	coupons   services.CouponService
	payments  services.PaymentService
	shipments services.ShipmentService
}

// AdminDeps bundles the services the admin surface delegates to. Nil services answer 503.
type AdminDeps struct {
	Authenticator *auth.Authenticator
	Orders        services.OrderService
	Coupons       services.CouponService
	Payments      services.PaymentService
	Shipments     services.ShipmentService
}

// NewAdminHandlers constructs the admin endpoints.
func NewAdminHandlers(deps AdminDeps) *AdminHandlers {
	return &AdminHandlers{
		authn:     deps.Authenticator,
		orders:    deps.Orders,
		coupons:   deps.Coupons,
		payments:  deps.Payments,
		shipments: deps.Shipments,
	}
}

// Routes registers the /admin endpoints. Every route requires the admin role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Use(requireAdmin)

	r.Route("/coupons", func(rt chi.Router) {
		rt.Get("/", h.listCoupons)
		rt.Post("/", h.createCoupon)
		rt.Get("/{couponID}", h.getCoupon)
		rt.Put("/{couponID}", h.updateCoupon)
		rt.Delete("/{couponID}", h.deleteCoupon)
		rt.Get("/{couponID}/usages", h.listCouponUsages)
	})
	r.Route("/orders", func(rt chi.Router) {
		rt.Get("/", h.listOrders)
		rt.Get("/{orderID}", h.getOrder)
		rt.Put("/{orderID}/status", h.updateOrderStatus)
		rt.Put("/{orderID}/cancel", h.cancelOrder)
		rt.Post("/{orderID}/refund", h.refundOrder)
		rt.Post("/{orderID}/shipment", h.createShipment)
		rt.Delete("/{orderID}/shipment", h.cancelShipment)
	})
}

// requireAdmin guards against a router wired without an authenticator.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok || identity == nil {
			httpx.WriteError(r.Context(), w, httpx.NewError(codeUnauthenticated, "authentication required", http.StatusUnauthorized))
			return
		}
		if !identity.IsAdmin() {
			httpx.WriteError(r.Context(), w, httpx.NewError(codeForbidden, "admin role required", http.StatusForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type couponRequest struct {
	Code              string           `json:"code"`
	Description       string           `json:"description"`
	DiscountType      string           `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MinOrderAmount    *decimal.Decimal `json:"min_order_amount"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	UsageLimit        *int             `json:"usage_limit"`
	Active            *bool            `json:"active"`
	StartsAt          *time.Time       `json:"starts_at"`
	ExpiresAt         *time.Time       `json:"expires_at"`
}

func (req couponRequest) toCoupon(id string) domain.Coupon {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return domain.Coupon{
		ID:                id,
		Code:              req.Code,
		Description:       strings.TrimSpace(req.Description),
		DiscountType:      domain.DiscountType(strings.ToLower(strings.TrimSpace(req.DiscountType))),
		DiscountValue:     req.DiscountValue,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		UsageLimit:        req.UsageLimit,
		Active:            active,
		StartsAt:          req.StartsAt,
		ExpiresAt:         req.ExpiresAt,
	}
}

func (h *AdminHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		unavailable(w, r, "coupon")
		return
	}
	query := r.URL.Query()
	pageReq, ok := parsePagination(w, r)
	if !ok {
		return
	}
	activeOnly, _ := strconv.ParseBool(strings.TrimSpace(query.Get("active")))
	page, err := h.coupons.ListCoupons(ctx, services.CouponListFilter{
		ActiveOnly: activeOnly,
		Pagination: pageReq,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]couponPayload, 0, len(page.Items))
	for _, coupon := range page.Items {
		items = append(items, buildCouponPayload(coupon))
	}
	payload := map[string]any{"coupons": items}
	if page.NextPageToken != "" {
		payload["next_page_token"] = page.NextPageToken
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	h.upsertCoupon(w, r, "")
}

func (h *AdminHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "couponID"))
	if id == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError(codeValidation, "coupon id is required", http.StatusBadRequest))
		return
	}
	h.upsertCoupon(w, r, id)
}

func (h *AdminHandlers) upsertCoupon(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	if h.coupons == nil {
		unavailable(w, r, "coupon")
		return
	}
	var req couponRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	cmd := services.UpsertCouponCommand{Coupon: req.toCoupon(id), ActorID: viewerFromRequest(r).UserID}

	var (
		coupon services.Coupon
		err    error
		status = http.StatusOK
	)
	if id == "" {
		coupon, err = h.coupons.CreateCoupon(ctx, cmd)
		status = http.StatusCreated
	} else {
		coupon, err = h.coupons.UpdateCoupon(ctx, cmd)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, map[string]any{"coupon": buildCouponPayload(coupon)})
}

func (h *AdminHandlers) getCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		unavailable(w, r, "coupon")
		return
	}
	coupon, err := h.coupons.GetCoupon(ctx, strings.TrimSpace(chi.URLParam(r, "couponID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"coupon": buildCouponPayload(coupon)})
}

func (h *AdminHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		unavailable(w, r, "coupon")
		return
	}
	if err := h.coupons.DeleteCoupon(ctx, strings.TrimSpace(chi.URLParam(r, "couponID"))); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) listCouponUsages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		unavailable(w, r, "coupon")
		return
	}
	pageReq, ok := parsePagination(w, r)
	if !ok {
		return
	}
	page, err := h.coupons.ListUsages(ctx, strings.TrimSpace(chi.URLParam(r, "couponID")), pageReq)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]couponUsagePayload, 0, len(page.Items))
	for _, usage := range page.Items {
		items = append(items, buildCouponUsagePayload(usage))
	}
	payload := map[string]any{"usages": items}
	if page.NextPageToken != "" {
		payload["next_page_token"] = page.NextPageToken
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	query := r.URL.Query()
	pageReq, ok := parsePagination(w, r)
	if !ok {
		return
	}
	statuses := make([]domain.OrderStatus, 0)
	for _, raw := range parseFilterValues(query["status"]) {
		statuses = append(statuses, domain.OrderStatus(raw))
	}
	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		Viewer:     viewerFromRequest(r),
		UserID:     strings.TrimSpace(query.Get("user_id")),
		Status:     statuses,
		Pagination: pageReq,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeOrderPage(w, page, buildOrderPayload)
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	order, err := h.orders.GetOrder(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")), viewerFromRequest(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	var req updateOrderStatusRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "status is required", http.StatusBadRequest))
		return
	}
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:  domain.OrderStatus(status),
		ActorID: viewerFromRequest(r).UserID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	var req cancelOrderRequest
	if r.ContentLength != 0 && !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Viewer:  viewerFromRequest(r),
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

// refundOrder refunds the captured payment. An omitted amount refunds the remaining balance.
func (h *AdminHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		unavailable(w, r, "payment")
		return
	}
	var req refundRequest
	if r.ContentLength != 0 && !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	cmd := services.RefundCommand{
		OrderID:        strings.TrimSpace(chi.URLParam(r, "orderID")),
		Reason:         strings.TrimSpace(req.Reason),
		ActorID:        viewerFromRequest(r).UserID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(refundIdempotencyKey)),
	}
	if req.Amount != nil {
		cmd.Amount = *req.Amount
	}
	order, err := h.payments.RefundPayment(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *AdminHandlers) createShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		unavailable(w, r, "shipment")
		return
	}
	order, err := h.shipments.CreateShipment(ctx, services.CreateShipmentCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID: viewerFromRequest(r).UserID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"order":    buildOrderSummary(order),
		"shipment": buildShipmentPayload(order.Shipment),
	})
}

func (h *AdminHandlers) cancelShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		unavailable(w, r, "shipment")
		return
	}
	order, err := h.shipments.CancelShipment(ctx, services.CancelShipmentCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID: viewerFromRequest(r).UserID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}
