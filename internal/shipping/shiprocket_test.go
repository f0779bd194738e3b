package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ShiprocketClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewShiprocketClient(ShiprocketConfig{
		BaseURL:    srv.URL,
		Email:      "ops@example.com",
		Password:   "pw",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCreateShipmentLogsInOnceAndAssignsAWB(t *testing.T) {
	var logins int32
	var order shiprocketOrderRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			atomic.AddInt32(&logins, 1)
			_, _ = w.Write([]byte(`{"token":"tok"}`))
		case "/orders/create/adhoc":
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("missing bearer token")
			}
			_ = json.NewDecoder(r.Body).Decode(&order)
			_, _ = w.Write([]byte(`{"order_id":111,"shipment_id":222,"status":"NEW"}`))
		case "/courier/assign/awb":
			_, _ = w.Write([]byte(`{"awb_assign_status":1,"response":{"data":{"awb_code":"AWB123","courier_name":"Delhivery"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	req := ShipmentRequest{
		OrderNumber: "TA-20250101-000001-ABCD",
		OrderDate:   time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		Address:     Address{Name: "Asha Rao Kulkarni", Line1: "12 MG Road", City: "Pune", State: "MH", PostalCode: "411001", Phone: "9999999999"},
		Items: []Item{
			{Name: "Gold Cup", SKU: "CUP-L", Units: 2, UnitPrice: domain.MoneyFromFloat(1200), WeightKg: 1.5},
			{Name: "Medal", SKU: "MED", Units: 1, UnitPrice: domain.MoneyFromFloat(99.5)},
		},
		SubTotal: domain.MoneyFromFloat(2499.5),
	}
	shipment, err := client.CreateShipment(context.Background(), req)
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	if shipment.TrackingCode != "AWB123" || shipment.Courier != "Delhivery" || shipment.ProviderOrderID != "111" || shipment.ShipmentID != "222" {
		t.Fatalf("unexpected shipment %+v", shipment)
	}
	if shipment.Status != domain.ShipmentStatusCreated || shipment.TrackingURL == "" {
		t.Fatalf("unexpected shipment state %+v", shipment)
	}
	if order.BillingName != "Asha" || order.BillingLastName != "Rao Kulkarni" || order.PaymentMethod != "Prepaid" {
		t.Fatalf("unexpected order payload %+v", order)
	}
	if order.Weight != 3.5 || order.OrderDate != "2025-01-01 15:30" {
		t.Fatalf("unexpected weight/date %v %q", order.Weight, order.OrderDate)
	}

	if atomic.LoadInt32(&logins) != 1 {
		t.Fatalf("expected token to be cached, got %d logins", logins)
	}
}

func TestExpiredTokenIsRefreshedOnUnauthorized(t *testing.T) {
	var logins int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			n := atomic.AddInt32(&logins, 1)
			_, _ = w.Write([]byte(`{"token":"tok` + string(rune('0'+n)) + `"}`))
		case "/orders/cancel":
			if r.Header.Get("Authorization") == "Bearer tok1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	})

	if err := client.Cancel(context.Background(), "111"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if atomic.LoadInt32(&logins) != 2 {
		t.Fatalf("expected a second login, got %d", logins)
	}
}

func TestTrackMapsStatusAndActivities(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			_, _ = w.Write([]byte(`{"token":"tok"}`))
		case "/courier/track/awb/AWB123":
			_, _ = w.Write([]byte(`{"tracking_data":{"track_status":1,
				"shipment_track":[{"awb_code":"AWB123","courier_name":"Delhivery","current_status":"Out For Delivery","edd":"2025-01-05 18:00:00"}],
				"shipment_track_activities":[{"date":"2025-01-04 09:00:00","activity":"Out for delivery","location":"Pune","sr-status-label":"OUT FOR DELIVERY"}],
				"track_url":"https://shiprocket.co/tracking/AWB123"}}`))
		}
	})

	tracking, err := client.Track(context.Background(), "AWB123")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if tracking.Status != domain.ShipmentStatusOutForDelivery || tracking.Courier != "Delhivery" {
		t.Fatalf("unexpected tracking %+v", tracking)
	}
	if len(tracking.Activities) != 1 || tracking.Activities[0].At.IsZero() {
		t.Fatalf("unexpected activities %+v", tracking.Activities)
	}
	want := time.Date(2025, 1, 5, 12, 30, 0, 0, time.UTC)
	if tracking.EstimatedDelivery == nil || !tracking.EstimatedDelivery.Equal(want) {
		t.Fatalf("expected edd %v, got %v", want, tracking.EstimatedDelivery)
	}
}

func TestAggregatorErrorsAreTyped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
	})
	_, err := client.Track(context.Background(), "AWB1")
	var aggErr *AggregatorError
	if !errors.As(err, &aggErr) || !errors.Is(err, ErrShippingProvider) {
		t.Fatalf("expected aggregator error, got %v", err)
	}
	if aggErr.Op != "login" || aggErr.Message != "Invalid credentials" {
		t.Fatalf("unexpected error %+v", aggErr)
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]domain.ShipmentStatus{
		"PICKED UP":          domain.ShipmentStatusInTransit,
		"shipped":            domain.ShipmentStatusInTransit,
		"In-Transit":         domain.ShipmentStatusInTransit,
		"OUT_FOR_DELIVERY":   domain.ShipmentStatusOutForDelivery,
		"Delivered":          domain.ShipmentStatusDelivered,
		"CANCELED":           domain.ShipmentStatusCancelled,
		"RTO Initiated":      domain.ShipmentStatusCancelled,
		"LOST":               domain.ShipmentStatusLost,
		"Destroyed":          domain.ShipmentStatusDamaged,
		"AWB Assigned":       domain.ShipmentStatusCreated,
		"Manifest Generated": domain.ShipmentStatusCreated,
		"Misrouted":          domain.ShipmentStatusInTransit,
		"":                   domain.ShipmentStatusInTransit,
	}
	for label, want := range cases {
		if got := MapStatus(label); got != want {
			t.Fatalf("%q: expected %s, got %s", label, want, got)
		}
	}
}

func TestParseWebhook(t *testing.T) {
	event, err := ParseWebhook([]byte(`{"awb":59650000000123,"order_id":"TA-1","current_status":"DELIVERED","current_timestamp":"2025-01-05 10:00:00","courier_name":"Delhivery","scans":[{"date":"2025-01-05 10:00:00","activity":"Delivered","location":"Pune","sr-status-label":"DELIVERED"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.TrackingCode != "59650000000123" || event.Status != domain.ShipmentStatusDelivered || event.OccurredAt == nil {
		t.Fatalf("unexpected event %+v", event)
	}
	if len(event.Activities) != 1 {
		t.Fatalf("expected one scan, got %d", len(event.Activities))
	}

	if _, err := ParseWebhook([]byte(`{"current_status":"DELIVERED"}`)); !errors.Is(err, ErrInvalidWebhook) {
		t.Fatalf("expected invalid webhook for missing awb, got %v", err)
	}
	if _, err := ParseWebhook([]byte(`not json`)); !errors.Is(err, ErrInvalidWebhook) {
		t.Fatalf("expected invalid webhook, got %v", err)
	}
}
