package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/payments"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/shipping"
)

var errNotStubbed = errors.New("not implemented")

type stubOrderService struct {
	createFn func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn    func(context.Context, string, services.Viewer) (services.Order, error)
	listFn   func(context.Context, services.OrderListFilter) (domain.Page[services.Order], error)
	cancelFn func(context.Context, services.CancelOrderCommand) (services.Order, error)
	statusFn func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, viewer services.Viewer) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, viewer)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[services.Order]{}, nil
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

type stubCouponService struct {
	validateFn func(context.Context, services.ValidateCouponCommand) (services.CouponQuote, error)
	applyFn    func(context.Context, services.ApplyCouponCommand) (services.CouponUsage, error)
	createFn   func(context.Context, services.UpsertCouponCommand) (services.Coupon, error)
	updateFn   func(context.Context, services.UpsertCouponCommand) (services.Coupon, error)
	getFn      func(context.Context, string) (services.Coupon, error)
	listFn     func(context.Context, services.CouponListFilter) (domain.Page[services.Coupon], error)
	deleteFn   func(context.Context, string) error
	usagesFn   func(context.Context, string, domain.Pagination) (domain.Page[services.CouponUsage], error)
}

func (s *stubCouponService) ValidateCoupon(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponQuote, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, cmd)
	}
	return services.CouponQuote{}, errNotStubbed
}

func (s *stubCouponService) CalculateDiscount(services.Coupon, services.Money) services.Money {
	return domain.Zero
}

func (s *stubCouponService) ApplyCoupon(ctx context.Context, cmd services.ApplyCouponCommand) (services.CouponUsage, error) {
	if s.applyFn != nil {
		return s.applyFn(ctx, cmd)
	}
	return services.CouponUsage{}, errNotStubbed
}

func (s *stubCouponService) CreateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Coupon{}, errNotStubbed
}

func (s *stubCouponService) UpdateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Coupon{}, errNotStubbed
}

func (s *stubCouponService) GetCoupon(ctx context.Context, couponID string) (services.Coupon, error) {
	if s.getFn != nil {
		return s.getFn(ctx, couponID)
	}
	return services.Coupon{}, errNotStubbed
}

func (s *stubCouponService) ListCoupons(ctx context.Context, filter services.CouponListFilter) (domain.Page[services.Coupon], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[services.Coupon]{}, nil
}

func (s *stubCouponService) DeleteCoupon(ctx context.Context, couponID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, couponID)
	}
	return errNotStubbed
}

func (s *stubCouponService) ListUsages(ctx context.Context, couponID string, pager domain.Pagination) (domain.Page[services.CouponUsage], error) {
	if s.usagesFn != nil {
		return s.usagesFn(ctx, couponID, pager)
	}
	return domain.Page[services.CouponUsage]{}, nil
}

type stubPaymentService struct {
	createFn    func(context.Context, services.CreatePaymentOrderCommand) (services.PaymentSession, error)
	verifyFn    func(context.Context, services.VerifyPaymentCommand) (services.VerifyPaymentResult, error)
	webhookFn   func(context.Context, payments.WebhookEvent) error
	reconcileFn func(context.Context, services.ReconcileCommand) (services.ReconcileReport, error)
	refundFn    func(context.Context, services.RefundCommand) (services.Order, error)
}

func (s *stubPaymentService) CreateGatewayOrder(ctx context.Context, cmd services.CreatePaymentOrderCommand) (services.PaymentSession, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.PaymentSession{}, errNotStubbed
}

func (s *stubPaymentService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.VerifyPaymentResult, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.VerifyPaymentResult{}, errNotStubbed
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, event payments.WebhookEvent) error {
	if s.webhookFn != nil {
		return s.webhookFn(ctx, event)
	}
	return nil
}

func (s *stubPaymentService) ReconcilePending(ctx context.Context, cmd services.ReconcileCommand) (services.ReconcileReport, error) {
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, cmd)
	}
	return services.ReconcileReport{}, nil
}

func (s *stubPaymentService) RefundPayment(ctx context.Context, cmd services.RefundCommand) (services.Order, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

type stubShipmentService struct {
	createFn  func(context.Context, services.CreateShipmentCommand) (services.Order, error)
	trackFn   func(context.Context, string) (services.TrackingResult, error)
	webhookFn func(context.Context, shipping.WebhookEvent) error
	cancelFn  func(context.Context, services.CancelShipmentCommand) (services.Order, error)
}

func (s *stubShipmentService) CreateShipment(ctx context.Context, cmd services.CreateShipmentCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubShipmentService) Track(ctx context.Context, identifier string) (services.TrackingResult, error) {
	if s.trackFn != nil {
		return s.trackFn(ctx, identifier)
	}
	return services.TrackingResult{}, errNotStubbed
}

func (s *stubShipmentService) HandleWebhook(ctx context.Context, event shipping.WebhookEvent) error {
	if s.webhookFn != nil {
		return s.webhookFn(ctx, event)
	}
	return nil
}

func (s *stubShipmentService) CancelShipment(ctx context.Context, cmd services.CancelShipmentCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

type stubCartService struct {
	getFn    func(context.Context, services.Viewer) (services.Cart, error)
	addFn    func(context.Context, services.AddCartItemCommand) (services.Cart, error)
	updateFn func(context.Context, services.UpdateCartItemCommand) (services.Cart, error)
	removeFn func(context.Context, services.Viewer, string) (services.Cart, error)
	clearFn  func(context.Context, services.Viewer) error
	mergeFn  func(context.Context, string, string) (services.Cart, error)
}

func (s *stubCartService) GetCart(ctx context.Context, owner services.Viewer) (services.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, owner)
	}
	return services.Cart{}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.Cart{}, errNotStubbed
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Cart{}, errNotStubbed
}

func (s *stubCartService) RemoveItem(ctx context.Context, owner services.Viewer, itemID string) (services.Cart, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, owner, itemID)
	}
	return services.Cart{}, errNotStubbed
}

func (s *stubCartService) ClearCart(ctx context.Context, owner services.Viewer) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, owner)
	}
	return nil
}

func (s *stubCartService) MergeGuestCart(ctx context.Context, userID, guestSession string) (services.Cart, error) {
	if s.mergeFn != nil {
		return s.mergeFn(ctx, userID, guestSession)
	}
	return services.Cart{}, errNotStubbed
}

type stubSystemService struct {
	report services.HealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.HealthReport, error) {
	return s.report, s.err
}

func withIdentity(req *http.Request, uid string, roles ...string) *http.Request {
	identity := &auth.Identity{UID: uid, Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

// errorCode reads the code from the error envelope.
func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeResponse(t, rr)
	if errObj, ok := body["error"].(map[string]any); ok {
		code, _ := errObj["code"].(string)
		return code
	}
	code, _ := body["code"].(string)
	return code
}
