package services

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/shipping"
)

type shipmentFixture struct {
	svc           ShipmentService
	orders        *memOrderRepo
	aggregator    *stubAggregator
	notifications *recordingNotifications
	logs          *recordingLogger
	dispatcher    *TaskDispatcher
}

func newShipmentFixture(t *testing.T, orders ...domain.Order) shipmentFixture {
	t.Helper()
	fx := shipmentFixture{
		orders:        newMemOrderRepo(orders...),
		aggregator:    &stubAggregator{},
		notifications: &recordingNotifications{},
		logs:          &recordingLogger{},
		dispatcher:    NewTaskDispatcher(TaskDispatcherDeps{}),
	}
	svc, err := NewShipmentService(ShipmentServiceDeps{
		Orders:        fx.orders,
		Aggregator:    fx.aggregator,
		Notifications: fx.notifications,
		Dispatcher:    fx.dispatcher,
		Clock:         fixedClock,
		Logger:        fx.logs.log,
	})
	if err != nil {
		t.Fatalf("new shipment service: %v", err)
	}
	fx.svc = svc
	return fx
}

func shippedOrder(status domain.ShipmentStatus) domain.Order {
	order := existingOrder(domain.OrderStatusShipped, domain.PaymentStatusCompleted)
	order.Shipment = domain.ShipmentInfo{
		Status:          status,
		ProviderOrderID: "sr_1001",
		TrackingCode:    "AWB123456",
		Courier:         "Delhivery",
	}
	return order
}

func TestShipmentService_CreateShipment(t *testing.T) {
	fx := newShipmentFixture(t, existingOrder(domain.OrderStatusConfirmed, domain.PaymentStatusCompleted))

	order, err := fx.svc.CreateShipment(context.Background(), CreateShipmentCommand{OrderID: "ord_1", ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	if order.Status != domain.OrderStatusShipped || order.ShippedAt == nil {
		t.Fatalf("expected shipped order, got %s", order.Status)
	}
	if order.Shipment.Status != domain.ShipmentStatusCreated || order.Shipment.TrackingCode != "AWB123456" || order.Shipment.EstimatedDelivery == nil {
		t.Fatalf("unexpected shipment %+v", order.Shipment)
	}

	req := fx.aggregator.requests[0]
	if req.OrderNumber != "TA-20240315-000001-ABCD" || req.Address.Phone != "919876543210" || req.Address.Country != "India" {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(req.Items) != 1 || req.Items[0].Name != "Gold Cup (M)" || req.Items[0].Units != 2 || !req.Items[0].UnitPrice.Equal(money("1200")) {
		t.Fatalf("unexpected manifest %+v", req.Items)
	}
	drain(t, fx.dispatcher)
	if got := fx.notifications.kinds(); !slices.Equal(got, []string{NotificationOrderShipped}) {
		t.Fatalf("unexpected notifications %v", got)
	}
}

func TestShipmentService_CreateShipmentGuards(t *testing.T) {
	unpaid := existingOrder(domain.OrderStatusNew, domain.PaymentStatusPending)
	fx := newShipmentFixture(t, unpaid)
	if _, err := fx.svc.CreateShipment(context.Background(), CreateShipmentCommand{OrderID: "ord_1"}); !errors.Is(err, ErrShipmentOrderNotPaid) {
		t.Fatalf("expected not paid, got %v", err)
	}

	fx = newShipmentFixture(t, shippedOrder(domain.ShipmentStatusInTransit))
	if _, err := fx.svc.CreateShipment(context.Background(), CreateShipmentCommand{OrderID: "ord_1"}); !errors.Is(err, ErrShipmentAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if len(fx.aggregator.requests) != 0 {
		t.Fatalf("aggregator must not be called")
	}
}

func TestShipmentService_CreateShipmentAggregatorFailure(t *testing.T) {
	fx := newShipmentFixture(t, existingOrder(domain.OrderStatusConfirmed, domain.PaymentStatusCompleted))
	fx.aggregator.createFn = func(shipping.ShipmentRequest) (shipping.Shipment, error) {
		return shipping.Shipment{}, &shipping.AggregatorError{Provider: "shiprocket", Op: "assign awb", StatusCode: 422, Message: "no courier"}
	}

	_, err := fx.svc.CreateShipment(context.Background(), CreateShipmentCommand{OrderID: "ord_1"})
	var aggErr *shipping.AggregatorError
	if !errors.As(err, &aggErr) || aggErr.StatusCode != 422 {
		t.Fatalf("expected aggregator error, got %v", err)
	}
	if fx.orders.writeCount() != 0 {
		t.Fatalf("failed booking must not write")
	}
}

func TestShipmentService_TrackFallsBackToStoredSnapshot(t *testing.T) {
	fx := newShipmentFixture(t, shippedOrder(domain.ShipmentStatusInTransit))
	fx.aggregator.trackFn = func(string) (shipping.Tracking, error) {
		return shipping.Tracking{}, &shipping.AggregatorError{Provider: "shiprocket", Op: "track", StatusCode: 503}
	}

	result, err := fx.svc.Track(context.Background(), "AWB123456")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if result.Live || result.Shipment.Status != domain.ShipmentStatusInTransit || result.OrderID != "ord_1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if !fx.logs.has("shipment.track.live_failed") {
		t.Fatalf("expected live failure to be logged")
	}
}

func TestShipmentService_TrackByOrderID(t *testing.T) {
	fx := newShipmentFixture(t, shippedOrder(domain.ShipmentStatusInTransit))
	fx.aggregator.trackFn = func(code string) (shipping.Tracking, error) {
		return shipping.Tracking{TrackingCode: code, Activities: []shipping.Activity{{At: testNow, Status: "PICKED UP", Location: "Pune"}}}, nil
	}

	result, err := fx.svc.Track(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !result.Live || len(result.Activities) != 1 {
		t.Fatalf("expected live activities, got %+v", result)
	}

	if _, err := fx.svc.Track(context.Background(), "AWB000"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestShipmentService_TrackByOrderNumber(t *testing.T) {
	fx := newShipmentFixture(t, shippedOrder(domain.ShipmentStatusInTransit))
	var tracked string
	fx.aggregator.trackFn = func(code string) (shipping.Tracking, error) {
		tracked = code
		return shipping.Tracking{TrackingCode: code}, nil
	}

	result, err := fx.svc.Track(context.Background(), "  TA-20240315-000001-ABCD ")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if result.OrderID != "ord_1" || result.OrderNumber != "TA-20240315-000001-ABCD" {
		t.Fatalf("unexpected result %+v", result)
	}
	if tracked != "AWB123456" {
		t.Fatalf("expected live lookup by stored tracking code, got %q", tracked)
	}
}

func TestShipmentService_WebhookDelivered(t *testing.T) {
	fx := newShipmentFixture(t, shippedOrder(domain.ShipmentStatusInTransit))
	at := testNow.Add(48 * time.Hour)

	err := fx.svc.HandleWebhook(context.Background(), shipping.WebhookEvent{TrackingCode: "AWB123456", ExternalStatus: "DELIVERED", OccurredAt: &at})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	drain(t, fx.dispatcher)
	stored := fx.orders.get("ord_1")
	if stored.Shipment.Status != domain.ShipmentStatusDelivered || stored.Status != domain.OrderStatusDelivered {
		t.Fatalf("unexpected statuses %s/%s", stored.Status, stored.Shipment.Status)
	}
	if stored.DeliveredAt == nil || !stored.DeliveredAt.Equal(at) {
		t.Fatalf("expected delivered timestamp %v, got %v", at, stored.DeliveredAt)
	}
	if got := fx.notifications.kinds(); !slices.Equal(got, []string{NotificationOrderDelivered}) {
		t.Fatalf("unexpected notifications %v", got)
	}
}

func TestShipmentService_WebhookRegressionIgnored(t *testing.T) {
	fx := newShipmentFixture(t, shippedOrder(domain.ShipmentStatusOutForDelivery))

	err := fx.svc.HandleWebhook(context.Background(), shipping.WebhookEvent{TrackingCode: "AWB123456", ExternalStatus: "IN TRANSIT"})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if got := fx.orders.get("ord_1").Shipment.Status; got != domain.ShipmentStatusOutForDelivery {
		t.Fatalf("shipment regressed to %s", got)
	}
	if fx.orders.writeCount() != 0 {
		t.Fatalf("regression must not write")
	}
	if !fx.logs.has("shipment.webhook.regression_ignored") {
		t.Fatalf("expected regression log")
	}
}

func TestShipmentService_WebhookUnknownCodeIsNoop(t *testing.T) {
	fx := newShipmentFixture(t)

	if err := fx.svc.HandleWebhook(context.Background(), shipping.WebhookEvent{TrackingCode: "AWB999", ExternalStatus: "DELIVERED"}); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestShipmentService_WebhookUnknownLabelMeansInTransit(t *testing.T) {
	fx := newShipmentFixture(t, shippedOrder(domain.ShipmentStatusCreated))

	if err := fx.svc.HandleWebhook(context.Background(), shipping.WebhookEvent{TrackingCode: "AWB123456", ExternalStatus: "REACHED HUB"}); err != nil {
		t.Fatalf("webhook: %v", err)
	}
	stored := fx.orders.get("ord_1")
	if stored.Shipment.Status != domain.ShipmentStatusInTransit || stored.Shipment.LastEvent != "REACHED HUB" {
		t.Fatalf("unexpected shipment %+v", stored.Shipment)
	}
}

func TestShipmentService_CancelShipment(t *testing.T) {
	fx := newShipmentFixture(t, shippedOrder(domain.ShipmentStatusCreated))

	order, err := fx.svc.CancelShipment(context.Background(), CancelShipmentCommand{OrderID: "ord_1", ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Shipment.Status != domain.ShipmentStatusCancelled {
		t.Fatalf("expected cancelled shipment, got %s", order.Shipment.Status)
	}
	if len(fx.aggregator.cancels) != 1 || fx.aggregator.cancels[0][0] != "sr_1001" {
		t.Fatalf("unexpected cancel calls %v", fx.aggregator.cancels)
	}

	delivered := newShipmentFixture(t, shippedOrder(domain.ShipmentStatusDelivered))
	if _, err := delivered.svc.CancelShipment(context.Background(), CancelShipmentCommand{OrderID: "ord_1"}); !errors.Is(err, ErrShipmentNotCancellable) {
		t.Fatalf("expected not cancellable, got %v", err)
	}

	none := newShipmentFixture(t, existingOrder(domain.OrderStatusConfirmed, domain.PaymentStatusCompleted))
	if _, err := none.svc.CancelShipment(context.Background(), CancelShipmentCommand{OrderID: "ord_1"}); !errors.Is(err, ErrShipmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
