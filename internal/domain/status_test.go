package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCheckPaymentTransition(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		want     error
	}{
		{PaymentStatusPending, PaymentStatusAuthorized, nil},
		{PaymentStatusPending, PaymentStatusCompleted, nil},
		{PaymentStatusAuthorized, PaymentStatusCompleted, nil},
		{PaymentStatusFailed, PaymentStatusCompleted, nil},
		{PaymentStatusCompleted, PaymentStatusDisputed, nil},
		{PaymentStatusCompleted, PaymentStatusCompleted, ErrStateUnchanged},
		{PaymentStatusCompleted, PaymentStatusFailed, ErrStateRegression},
		{PaymentStatusCompleted, PaymentStatusAuthorized, ErrStateRegression},
		{PaymentStatusDisputed, PaymentStatusCompleted, ErrStateRegression},
		{PaymentStatusPending, PaymentStatusDisputed, ErrInvalidTransition},
		{PaymentStatusPending, PaymentStatus("refunded"), ErrInvalidTransition},
	}
	for _, tc := range cases {
		err := CheckPaymentTransition(tc.from, tc.to)
		if tc.want == nil && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, err)
		}
	}
}

func TestCheckOrderTransition(t *testing.T) {
	if err := CheckOrderTransition(OrderStatusNew, OrderStatusConfirmed); err != nil {
		t.Fatalf("new -> confirmed: %v", err)
	}
	if err := CheckOrderTransition(OrderStatusConfirmed, OrderStatusShipped); err != nil {
		t.Fatalf("confirmed -> shipped: %v", err)
	}
	if err := CheckOrderTransition(OrderStatusShipped, OrderStatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("shipped -> cancelled should be invalid, got %v", err)
	}
	if err := CheckOrderTransition(OrderStatusDelivered, OrderStatusShipped); !errors.Is(err, ErrStateRegression) {
		t.Fatalf("delivered -> shipped should regress, got %v", err)
	}
	var transitionErr *TransitionError
	if err := CheckOrderTransition(OrderStatusCancelled, OrderStatusNew); !errors.As(err, &transitionErr) || transitionErr.Machine != "order" {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestOrderStatusCancellable(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusNew, OrderStatusConfirmed, OrderStatusProcessing} {
		if !s.Cancellable() {
			t.Fatalf("%s should be cancellable", s)
		}
	}
	for _, s := range []OrderStatus{OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled} {
		if s.Cancellable() {
			t.Fatalf("%s should not be cancellable", s)
		}
	}
}

func TestCheckShipmentTransition(t *testing.T) {
	if err := CheckShipmentTransition(ShipmentStatusNone, ShipmentStatusCreated); err != nil {
		t.Fatalf("none -> created: %v", err)
	}
	if err := CheckShipmentTransition(ShipmentStatusCreated, ShipmentStatusDelivered); err != nil {
		t.Fatalf("forward skip should be allowed: %v", err)
	}
	if err := CheckShipmentTransition(ShipmentStatusInTransit, ShipmentStatusLost); err != nil {
		t.Fatalf("in_transit -> lost: %v", err)
	}
	if err := CheckShipmentTransition(ShipmentStatusOutForDelivery, ShipmentStatusInTransit); !errors.Is(err, ErrStateRegression) {
		t.Fatalf("expected regression, got %v", err)
	}
	if err := CheckShipmentTransition(ShipmentStatusDelivered, ShipmentStatusDamaged); !errors.Is(err, ErrStateRegression) {
		t.Fatalf("terminal state must not move, got %v", err)
	}
	if err := CheckShipmentTransition(ShipmentStatusNone, ShipmentStatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cannot cancel a shipment that does not exist, got %v", err)
	}
}

func TestMoneyHelpers(t *testing.T) {
	amount, _ := NewMoney("1200.505")
	if got := ToMinorUnits(amount); got != 120051 {
		t.Fatalf("expected 120051 paise, got %d", got)
	}
	if !MoneyFromMinor(240000).Equal(MoneyFromFloat(2400)) {
		t.Fatalf("minor conversion mismatch")
	}
	a, _ := NewMoney("2200.00")
	b, _ := NewMoney("2200.01")
	c, _ := NewMoney("2200.02")
	if !WithinTolerance(a, b) || WithinTolerance(a, c) {
		t.Fatalf("tolerance boundary is 0.01")
	}
}

func TestCartRecalculate(t *testing.T) {
	cart := Cart{Items: []CartItem{
		{ID: "a", Price: MoneyFromFloat(1200), Quantity: 2},
		{ID: "b", Price: MoneyFromFloat(99.5), Quantity: 1},
	}}
	cart.Recalculate()
	if cart.TotalItems != 3 || !cart.TotalAmount.Equal(MoneyFromFloat(2499.5)) {
		t.Fatalf("unexpected totals %d %s", cart.TotalItems, cart.TotalAmount)
	}
	if !cart.Items[0].Subtotal.Equal(MoneyFromFloat(2400)) {
		t.Fatalf("unexpected subtotal %s", cart.Items[0].Subtotal)
	}
}

func TestCouponValidate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	limit := 0
	cases := map[string]Coupon{
		"percentage over 100": {Code: "X", DiscountType: DiscountTypePercentage, DiscountValue: MoneyFromFloat(101)},
		"fixed zero":          {Code: "X", DiscountType: DiscountTypeFixed, DiscountValue: Zero},
		"window inverted":     {Code: "X", DiscountType: DiscountTypeFixed, DiscountValue: MoneyFromFloat(10), StartsAt: &start, ExpiresAt: &end},
		"zero usage limit":    {Code: "X", DiscountType: DiscountTypeFixed, DiscountValue: MoneyFromFloat(10), UsageLimit: &limit},
		"unknown type":        {Code: "X", DiscountType: "bogo", DiscountValue: MoneyFromFloat(10)},
	}
	for name, coupon := range cases {
		if err := coupon.Validate(); !errors.Is(err, ErrCouponDefinition) {
			t.Fatalf("%s: expected definition error, got %v", name, err)
		}
	}
	ok := Coupon{Code: "SAVE10", DiscountType: DiscountTypePercentage, DiscountValue: MoneyFromFloat(100)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("100%% coupon should be valid: %v", err)
	}
	if ok.ActiveAt(start) {
		t.Fatalf("inactive coupon reported active")
	}
}
