package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/httpx"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/pagination"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxOrderBodySize       = 32 * 1024
	maxOrderCancelBodySize = 4 * 1024
)

// OrderHandlers exposes checkout and the buyer's order history.
type OrderHandlers struct {
	authn       *auth.Authenticator
	guests      *GuestSessions
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
	limiter     RateLimiter
}

// OrderOption customises OrderHandlers.
type OrderOption func(*OrderHandlers)

// WithOrderIdempotency guards POST /orders with the Idempotency-Key middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) { h.idempotency = mw }
}

// WithOrderRateLimit bounds checkout attempts per caller.
func WithOrderRateLimit(limiter RateLimiter) OrderOption {
	return func(h *OrderHandlers) { h.limiter = limiter }
}

// NewOrderHandlers constructs the order endpoints.
func NewOrderHandlers(authn *auth.Authenticator, guests *GuestSessions, orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	if guests == nil {
		guests = NewGuestSessions()
	}
	h := &OrderHandlers{authn: authn, guests: guests, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Use(h.guests.Resolve())

	create := r.With(rateLimit(h.limiter, callerKey))
	if h.idempotency != nil {
		create = create.With(h.idempotency)
	}
	create.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}/cancel", h.cancelOrder)
}

type orderLineRequest struct {
	ProductID   string          `json:"productId"`
	VariantSize string          `json:"variantSize"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type couponInfoRequest struct {
	Code           string          `json:"code"`
	CouponID       string          `json:"couponId"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

type shippingDetailsRequest struct {
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
	Notes        string `json:"notes"`
}

type createOrderRequest struct {
	Items           []orderLineRequest     `json:"items"`
	TotalAmount     *decimal.Decimal       `json:"totalAmount"`
	CouponInfo      *couponInfoRequest     `json:"couponInfo"`
	ShippingDetails shippingDetailsRequest `json:"shippingDetails"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	viewer := viewerFromRequest(r)
	if viewer.UserID == "" && viewer.GuestSession == "" {
		httpx.WriteError(ctx, w, httpx.NewError(codeUnauthenticated, "sign in or provide a guest session", http.StatusUnauthorized))
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}
	if req.TotalAmount == nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "totalAmount is required", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		Viewer:      viewer,
		Items:       make([]services.OrderLineInput, 0, len(req.Items)),
		TotalAmount: *req.TotalAmount,
		Shipping: services.ShippingDetails{
			FullName:     req.ShippingDetails.FullName,
			Email:        req.ShippingDetails.Email,
			Phone:        req.ShippingDetails.Phone,
			AddressLine1: req.ShippingDetails.AddressLine1,
			AddressLine2: req.ShippingDetails.AddressLine2,
			City:         req.ShippingDetails.City,
			State:        req.ShippingDetails.State,
			PostalCode:   req.ShippingDetails.PostalCode,
			Country:      req.ShippingDetails.Country,
			Notes:        req.ShippingDetails.Notes,
		},
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderLineInput{
			ProductID: strings.TrimSpace(item.ProductID),
			Size:      strings.TrimSpace(item.VariantSize),
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	if req.CouponInfo != nil {
		cmd.Coupon = &services.CouponInput{
			Code:           req.CouponInfo.Code,
			CouponID:       req.CouponInfo.CouponID,
			DiscountAmount: req.CouponInfo.DiscountAmount,
		}
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderSummary(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	viewer, ok := requireUser(w, r)
	if !ok {
		return
	}
	viewer.Admin = false

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
		Viewer:     viewer,
		Status:     statuses,
		Pagination: pageReq,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeOrderPage(w, page, buildOrderSummary)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	viewer := viewerFromRequest(r)
	if viewer.UserID == "" && viewer.GuestSession == "" {
		httpx.WriteError(ctx, w, httpx.NewError(codeUnauthenticated, "authentication required", http.StatusUnauthorized))
		return
	}
	order, err := h.orders.GetOrder(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")), viewer)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	viewer := viewerFromRequest(r)
	if viewer.UserID == "" && viewer.GuestSession == "" {
		httpx.WriteError(ctx, w, httpx.NewError(codeUnauthenticated, "authentication required", http.StatusUnauthorized))
		return
	}
	var req cancelOrderRequest
	if r.ContentLength != 0 && !decodeJSONBody(w, r, maxOrderCancelBodySize, &req) {
		return
	}
	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Viewer:  viewer,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func parsePagination(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		message := "page_size must be a positive integer"
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			message = "page_token is invalid"
		}
		httpx.WriteError(r.Context(), w, httpx.NewError(codeValidation, message, http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func writeOrderPage[T any](w http.ResponseWriter, page domain.Page[services.Order], build func(services.Order) T) {
	items := make([]T, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, build(order))
	}
	payload := map[string]any{"orders": items}
	if page.NextPageToken != "" {
		payload["next_page_token"] = page.NextPageToken
	}
	writeJSONResponse(w, http.StatusOK, payload)
}
