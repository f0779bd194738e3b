package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/payments"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/shipping"
)

var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func money(value string) Money {
	m, err := domain.NewMoney(value)
	if err != nil {
		panic(err)
	}
	return m
}

// memOrderRepo keeps orders in a map and applies mutations the way the Firestore transaction does.
type memOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	inserts  int
	writes   int
	stock    [][]repositories.StockLine
	insertFn func(domain.Order, []repositories.StockLine) error
	listFn   func(repositories.OrderListFilter) (domain.Page[domain.Order], error)
	awaiting []domain.Order
}

func newMemOrderRepo(orders ...domain.Order) *memOrderRepo {
	repo := &memOrderRepo{orders: make(map[string]domain.Order)}
	for _, o := range orders {
		repo.orders[o.ID] = cloneOrder(o)
	}
	return repo
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	o.Refunds = slices.Clone(o.Refunds)
	return o
}

func (r *memOrderRepo) get(id string) domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneOrder(r.orders[id])
}

func (r *memOrderRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *memOrderRepo) Insert(_ context.Context, order domain.Order, stock []repositories.StockLine) error {
	if r.insertFn != nil {
		if err := r.insertFn(order, stock); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
	r.inserts++
	r.stock = append(r.stock, stock)
	return nil
}

func (r *memOrderRepo) find(match func(domain.Order) bool) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if match(o) {
			return cloneOrder(o), nil
		}
	}
	return domain.Order{}, repositories.NewNotFoundError("orders.find")
}

func (r *memOrderRepo) FindByID(_ context.Context, id string) (domain.Order, error) {
	return r.find(func(o domain.Order) bool { return o.ID == id })
}

func (r *memOrderRepo) FindByOrderNumber(_ context.Context, number string) (domain.Order, error) {
	return r.find(func(o domain.Order) bool { return o.OrderNumber == number })
}

func (r *memOrderRepo) FindByGatewayOrderID(_ context.Context, id string) (domain.Order, error) {
	return r.find(func(o domain.Order) bool { return id != "" && o.Payment.GatewayOrderID == id })
}

func (r *memOrderRepo) FindByGatewayPaymentID(_ context.Context, id string) (domain.Order, error) {
	return r.find(func(o domain.Order) bool { return id != "" && o.Payment.GatewayPaymentID == id })
}

func (r *memOrderRepo) FindByTrackingCode(_ context.Context, code string) (domain.Order, error) {
	return r.find(func(o domain.Order) bool { return code != "" && o.Shipment.TrackingCode == code })
}

func (r *memOrderRepo) Mutate(_ context.Context, id string, fn repositories.OrderMutation) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[id]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.mutate")
	}
	next := cloneOrder(current)
	if err := fn(&next); err != nil {
		if errors.Is(err, repositories.ErrSkipWrite) {
			return cloneOrder(current), nil
		}
		return domain.Order{}, err
	}
	r.orders[id] = cloneOrder(next)
	r.writes++
	return next, nil
}

func (r *memOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r.listFn != nil {
		return r.listFn(filter)
	}
	return domain.Page[domain.Order]{}, nil
}

func (r *memOrderRepo) ListAwaitingPayment(context.Context, time.Time, int) ([]domain.Order, error) {
	return r.awaiting, nil
}

type stubCatalogRepo struct {
	products  map[string]domain.Product
	restoreFn func([]repositories.StockLine) error
}

func (s *stubCatalogRepo) FindProduct(_ context.Context, id string) (domain.Product, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return domain.Product{}, repositories.NewNotFoundError("catalog.find")
}

func (s *stubCatalogRepo) RestoreStock(_ context.Context, lines []repositories.StockLine) error {
	if s.restoreFn != nil {
		return s.restoreFn(lines)
	}
	return nil
}

func trophyCatalog() *stubCatalogRepo {
	return &stubCatalogRepo{products: map[string]domain.Product{
		"trophy-gold": {
			ID:     "trophy-gold",
			Name:   "Gold Cup",
			Active: true,
			Variants: []domain.ProductVariant{
				{ID: "gold-m", ProductID: "trophy-gold", Size: "M", SKU: "GC-M", Price: money("1200"), Stock: 10, Available: true, WeightKg: 0.8},
				{ID: "gold-l", ProductID: "trophy-gold", Size: "L", SKU: "GC-L", Price: money("1800"), Stock: 1, Available: true, WeightKg: 1.2},
				{ID: "gold-xl", ProductID: "trophy-gold", Size: "XL", SKU: "GC-XL", Price: money("2500"), Stock: 5, Available: false},
			},
		},
		"plaque-retired": {ID: "plaque-retired", Name: "Retired Plaque", Active: false},
	}}
}

type stubCounterService struct {
	nextFn func(context.Context) (string, error)
}

func (s *stubCounterService) NextOrderNumber(ctx context.Context) (string, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx)
	}
	return "TA-20240315-000001-ABCD", nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (r *recordingEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingNotifications struct {
	mu    sync.Mutex
	sent  []Notification
	errFn func(Notification) error
}

func (r *recordingNotifications) PublishNotification(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	if r.errFn != nil {
		return r.errFn(n)
	}
	return nil
}

func (r *recordingNotifications) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type stubGateway struct {
	mu             sync.Mutex
	createOrderFn  func(payments.OrderRequest) (payments.GatewayOrder, error)
	fetchPaymentFn func(string) (payments.Payment, error)
	fetchOrderFn   func(string) ([]payments.Payment, error)
	captureFn      func(payments.CaptureRequest) (payments.Payment, error)
	refundFn       func(payments.RefundRequest) (payments.RefundResult, error)
	captures       int
	refunds        int
}

func (g *stubGateway) Name() string { return payments.ProviderRazorpay }

func (g *stubGateway) CreateOrder(_ context.Context, req payments.OrderRequest) (payments.GatewayOrder, error) {
	if g.createOrderFn != nil {
		return g.createOrderFn(req)
	}
	return payments.GatewayOrder{ID: "order_gw_1", Provider: payments.ProviderRazorpay, AmountMinor: req.AmountMinor, Currency: req.Currency, Receipt: req.Receipt}, nil
}

func (g *stubGateway) FetchPayment(_ context.Context, id string) (payments.Payment, error) {
	if g.fetchPaymentFn != nil {
		return g.fetchPaymentFn(id)
	}
	return payments.Payment{ID: id, State: payments.StateCaptured, Captured: true}, nil
}

func (g *stubGateway) FetchOrderPayments(_ context.Context, id string) ([]payments.Payment, error) {
	if g.fetchOrderFn != nil {
		return g.fetchOrderFn(id)
	}
	return nil, nil
}

func (g *stubGateway) Capture(_ context.Context, req payments.CaptureRequest) (payments.Payment, error) {
	g.mu.Lock()
	g.captures++
	g.mu.Unlock()
	if g.captureFn != nil {
		return g.captureFn(req)
	}
	return payments.Payment{ID: req.PaymentID, State: payments.StateCaptured, Captured: true, AmountMinor: req.AmountMinor}, nil
}

func (g *stubGateway) Refund(_ context.Context, req payments.RefundRequest) (payments.RefundResult, error) {
	g.mu.Lock()
	g.refunds++
	g.mu.Unlock()
	if g.refundFn != nil {
		return g.refundFn(req)
	}
	return payments.RefundResult{ID: "rfnd_gw_1", PaymentID: req.PaymentID, AmountMinor: req.AmountMinor, Status: "processed"}, nil
}

type stubAggregator struct {
	mu       sync.Mutex
	createFn func(shipping.ShipmentRequest) (shipping.Shipment, error)
	trackFn  func(string) (shipping.Tracking, error)
	cancelFn func([]string) error
	requests []shipping.ShipmentRequest
	cancels  [][]string
}

func (a *stubAggregator) CreateShipment(_ context.Context, req shipping.ShipmentRequest) (shipping.Shipment, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	if a.createFn != nil {
		return a.createFn(req)
	}
	eta := testNow.Add(72 * time.Hour)
	return shipping.Shipment{
		ProviderOrderID:   "sr_1001",
		ShipmentID:        "shp_1001",
		TrackingCode:      "AWB123456",
		Courier:           "Delhivery",
		TrackingURL:       "https://shiprocket.co/tracking/AWB123456",
		Status:            domain.ShipmentStatusCreated,
		EstimatedDelivery: &eta,
	}, nil
}

func (a *stubAggregator) Track(_ context.Context, code string) (shipping.Tracking, error) {
	if a.trackFn != nil {
		return a.trackFn(code)
	}
	return shipping.Tracking{TrackingCode: code}, nil
}

func (a *stubAggregator) Cancel(_ context.Context, ids ...string) error {
	a.mu.Lock()
	a.cancels = append(a.cancels, ids)
	a.mu.Unlock()
	if a.cancelFn != nil {
		return a.cancelFn(ids)
	}
	return nil
}

type logEntry struct {
	event  string
	fields map[string]any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{event: event, fields: fields})
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.event == event {
			return true
		}
	}
	return false
}

// drain waits for every task dispatched so far.
func drain(t *testing.T, d *TaskDispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("dispatcher shutdown: %v", err)
	}
}
