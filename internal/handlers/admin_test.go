package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

func newAdminRouter(deps AdminDeps) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", NewAdminHandlers(deps).Routes)
	return router
}

func adminRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return withIdentity(req, "admin-1", auth.RoleAdmin)
}

func TestAdminHandlersRequireAdminRole(t *testing.T) {
	router := newAdminRouter(AdminDeps{Coupons: &stubCouponService{}})

	anonymous := httptest.NewRequest(http.MethodGet, "/admin/coupons", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, anonymous)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	buyer := withIdentity(httptest.NewRequest(http.MethodGet, "/admin/coupons", nil), "user-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, buyer)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestAdminHandlersCreateCoupon(t *testing.T) {
	var captured services.UpsertCouponCommand
	svc := &stubCouponService{
		createFn: func(_ context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
			captured = cmd
			coupon := cmd.Coupon
			coupon.ID = "cpn-1"
			coupon.Code = strings.ToUpper(coupon.Code)
			return coupon, nil
		},
	}
	router := newAdminRouter(AdminDeps{Coupons: svc})

	body := `{"code":"summer20","discount_type":"Percentage","discount_value":20,"max_discount_amount":500,"usage_limit":100,"expires_at":"2024-08-31T23:59:59Z"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/coupons", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	c := captured.Coupon
	if captured.ActorID != "admin-1" || c.ID != "" || c.DiscountType != domain.DiscountTypePercentage {
		t.Fatalf("unexpected command %+v", captured)
	}
	if !c.Active {
		t.Fatalf("coupons default to active")
	}
	if c.MaxDiscountAmount == nil || !c.MaxDiscountAmount.Equal(domain.MoneyFromFloat(500)) {
		t.Fatalf("unexpected max discount %v", c.MaxDiscountAmount)
	}
	if c.UsageLimit == nil || *c.UsageLimit != 100 {
		t.Fatalf("unexpected usage limit %v", c.UsageLimit)
	}
	if c.ExpiresAt == nil || !c.ExpiresAt.Equal(time.Date(2024, 8, 31, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", c.ExpiresAt)
	}
	coupon, _ := decodeResponse(t, rr)["coupon"].(map[string]any)
	if coupon["code"] != "SUMMER20" || coupon["usage_limit"] != 100.0 {
		t.Fatalf("unexpected coupon payload %v", coupon)
	}
}

func TestAdminHandlersCreateCouponDuplicateCode(t *testing.T) {
	svc := &stubCouponService{
		createFn: func(context.Context, services.UpsertCouponCommand) (services.Coupon, error) {
			return services.Coupon{}, services.ErrCouponCodeTaken
		},
	}
	router := newAdminRouter(AdminDeps{Coupons: svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/coupons", `{"code":"X","discount_type":"fixed","discount_value":10}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != codeCouponExists {
		t.Fatalf("expected %s, got %s", codeCouponExists, code)
	}
}

func TestAdminHandlersUpdateAndDeleteCoupon(t *testing.T) {
	var updatedID, deletedID string
	svc := &stubCouponService{
		updateFn: func(_ context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
			updatedID = cmd.Coupon.ID
			return cmd.Coupon, nil
		},
		deleteFn: func(_ context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	router := newAdminRouter(AdminDeps{Coupons: svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPut, "/admin/coupons/cpn-1", `{"code":"X","discount_type":"fixed","discount_value":10,"active":false}`))
	if rr.Code != http.StatusOK || updatedID != "cpn-1" {
		t.Fatalf("expected update of cpn-1, got %d (%q)", rr.Code, updatedID)
	}
	coupon, _ := decodeResponse(t, rr)["coupon"].(map[string]any)
	if coupon["active"] != false {
		t.Fatalf("expected inactive coupon, got %v", coupon)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodDelete, "/admin/coupons/cpn-1", ""))
	if rr.Code != http.StatusNoContent || deletedID != "cpn-1" {
		t.Fatalf("expected delete of cpn-1, got %d (%q)", rr.Code, deletedID)
	}
}

func TestAdminHandlersDeleteCouponInUse(t *testing.T) {
	svc := &stubCouponService{
		deleteFn: func(context.Context, string) error { return services.ErrCouponInUse },
	}
	router := newAdminRouter(AdminDeps{Coupons: svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodDelete, "/admin/coupons/cpn-1", ""))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestAdminHandlersListCouponsAndUsages(t *testing.T) {
	var filter services.CouponListFilter
	var usageCoupon string
	svc := &stubCouponService{
		listFn: func(_ context.Context, f services.CouponListFilter) (domain.Page[services.Coupon], error) {
			filter = f
			return domain.Page[services.Coupon]{Items: []services.Coupon{{ID: "cpn-1", Code: "A"}}, NextPageToken: "n"}, nil
		},
		usagesFn: func(_ context.Context, id string, _ domain.Pagination) (domain.Page[services.CouponUsage], error) {
			usageCoupon = id
			return domain.Page[services.CouponUsage]{Items: []services.CouponUsage{{ID: "use-1", CouponID: id}}}, nil
		},
	}
	router := newAdminRouter(AdminDeps{Coupons: svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/coupons?active=true&page_size=5", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !filter.ActiveOnly || filter.Pagination.PageSize != 5 {
		t.Fatalf("unexpected filter %+v", filter)
	}
	body := decodeResponse(t, rr)
	if coupons, _ := body["coupons"].([]any); len(coupons) != 1 || body["next_page_token"] != "n" {
		t.Fatalf("unexpected listing %v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/coupons/cpn-1/usages", ""))
	if rr.Code != http.StatusOK || usageCoupon != "cpn-1" {
		t.Fatalf("expected usages for cpn-1, got %d (%q)", rr.Code, usageCoupon)
	}
}

func TestAdminHandlersListOrdersKeepsAdminScope(t *testing.T) {
	var filter services.OrderListFilter
	svc := &stubOrderService{
		listFn: func(_ context.Context, f services.OrderListFilter) (domain.Page[services.Order], error) {
			filter = f
			return domain.Page[services.Order]{}, nil
		},
	}
	router := newAdminRouter(AdminDeps{Orders: svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/orders?user_id=user-9&status=new", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !filter.Viewer.Admin || filter.UserID != "user-9" || len(filter.Status) != 1 {
		t.Fatalf("unexpected filter %+v", filter)
	}
}

func TestAdminHandlersUpdateOrderStatus(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	svc := &stubOrderService{
		statusFn: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			captured = cmd
			if cmd.Status == domain.OrderStatusNew {
				return services.Order{}, services.ErrOrderInvalidTransition
			}
			return services.Order{ID: cmd.OrderID, Status: cmd.Status}, nil
		},
	}
	router := newAdminRouter(AdminDeps{Orders: svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPut, "/admin/orders/ord-1/status", `{"status":"Processing","reason":"packed"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Status != domain.OrderStatusProcessing || captured.ActorID != "admin-1" || captured.Reason != "packed" {
		t.Fatalf("unexpected command %+v", captured)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPut, "/admin/orders/ord-1/status", `{"status":"new"}`))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPut, "/admin/orders/ord-1/status", `{}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without status, got %d", rr.Code)
	}
}

func TestAdminHandlersRefund(t *testing.T) {
	var captured services.RefundCommand
	svc := &stubPaymentService{
		refundFn: func(_ context.Context, cmd services.RefundCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:      cmd.OrderID,
				Refunds: []domain.Refund{{ID: "rfnd_1", Amount: cmd.Amount, Status: "processed"}},
			}, nil
		},
	}
	router := newAdminRouter(AdminDeps{Payments: svc})

	req := adminRequest(http.MethodPost, "/admin/orders/ord-1/refund", `{"amount":500,"reason":"damaged"}`)
	req.Header.Set("Idempotency-Key", "refund-ord-1-a")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.IdempotencyKey != "refund-ord-1-a" || !captured.Amount.Equal(domain.MoneyFromFloat(500)) || captured.ActorID != "admin-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	order, _ := decodeResponse(t, rr)["order"].(map[string]any)
	if refunds, _ := order["refunds"].([]any); len(refunds) != 1 {
		t.Fatalf("expected one refund, got %v", order["refunds"])
	}
}

func TestAdminHandlersRefundFullBalance(t *testing.T) {
	var captured services.RefundCommand
	svc := &stubPaymentService{
		refundFn: func(_ context.Context, cmd services.RefundCommand) (services.Order, error) {
			captured = cmd
			return services.Order{}, services.ErrPaymentNotRefundable
		},
	}
	router := newAdminRouter(AdminDeps{Payments: svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/orders/ord-1/refund", ""))
	if !captured.Amount.IsZero() {
		t.Fatalf("expected zero amount for full refund, got %s", captured.Amount)
	}
	if code := errorCode(t, rr); code != codeNotRefundable {
		t.Fatalf("expected %s, got %s", codeNotRefundable, code)
	}
}

func TestAdminHandlersShipmentLifecycle(t *testing.T) {
	svc := &stubShipmentService{
		createFn: func(_ context.Context, cmd services.CreateShipmentCommand) (services.Order, error) {
			return services.Order{ID: cmd.OrderID, Shipment: domain.ShipmentInfo{Status: domain.ShipmentStatusCreated}}, nil
		},
		cancelFn: func(context.Context, services.CancelShipmentCommand) (services.Order, error) {
			return services.Order{}, services.ErrShipmentNotCancellable
		},
	}
	router := newAdminRouter(AdminDeps{Shipments: svc})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/orders/ord-1/shipment", ""))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodDelete, "/admin/orders/ord-1/shipment", ""))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != codeShipmentNotCancelable {
		t.Fatalf("expected %s, got %s", codeShipmentNotCancelable, code)
	}
}
