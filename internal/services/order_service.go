package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/textutil"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventCancelled     = "order.cancelled"
	orderEventStatusChanged = "order.status_changed"

	orderIDPrefix   = "ord_"
	defaultCurrency = "INR"

	maxOrderLines       = 50
	maxLineQuantity     = 1000
	shippingFieldLimit  = 200
	shippingNotesLimit  = 500
	cancelReasonLimit   = 500
	defaultCancelReason = "cancelled by customer"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderProductUnavailable indicates a product is missing or inactive.
	ErrOrderProductUnavailable = errors.New("order: product unavailable")
	// ErrOrderVariantUnavailable indicates the requested size is missing or switched off.
	ErrOrderVariantUnavailable = errors.New("order: variant unavailable")
	// ErrOrderInsufficientStock indicates the variant cannot cover the requested quantity.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderPriceMismatch indicates a submitted unit price differs from the live price.
	ErrOrderPriceMismatch = errors.New("order: price mismatch")
	// ErrOrderInvalidDiscount indicates the discount exceeds the order subtotal.
	ErrOrderInvalidDiscount = errors.New("order: invalid discount")
	// ErrOrderTotalMismatch indicates the client total differs from the recomputed total.
	ErrOrderTotalMismatch = errors.New("order: total mismatch")
	// ErrOrderCannotCancel indicates the order already shipped, was delivered or was cancelled.
	ErrOrderCannotCancel = errors.New("order: cannot cancel")
	// ErrOrderInvalidTransition indicates an admin status change that the order lifecycle forbids.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent write won.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderValidationKind enumerates why a checkout was rejected.
type OrderValidationKind string

const (
	OrderValidationInvalidInput       OrderValidationKind = "invalid_input"
	OrderValidationProductUnavailable OrderValidationKind = "product_unavailable"
	OrderValidationVariantUnavailable OrderValidationKind = "variant_unavailable"
	OrderValidationInsufficientStock  OrderValidationKind = "insufficient_stock"
	OrderValidationPriceMismatch      OrderValidationKind = "price_mismatch"
	OrderValidationInvalidDiscount    OrderValidationKind = "invalid_discount"
	OrderValidationTotalMismatch      OrderValidationKind = "total_mismatch"
)

var validationSentinels = map[OrderValidationKind]error{
	OrderValidationInvalidInput:       ErrOrderInvalidInput,
	OrderValidationProductUnavailable: ErrOrderProductUnavailable,
	OrderValidationVariantUnavailable: ErrOrderVariantUnavailable,
	OrderValidationInsufficientStock:  ErrOrderInsufficientStock,
	OrderValidationPriceMismatch:      ErrOrderPriceMismatch,
	OrderValidationInvalidDiscount:    ErrOrderInvalidDiscount,
	OrderValidationTotalMismatch:      ErrOrderTotalMismatch,
}

// OrderValidationError describes a rejected checkout. errors.Is matches the sentinel for Kind.
type OrderValidationError struct {
	Kind      OrderValidationKind
	ProductID string
	Size      string
	Requested int
	Available int
	Expected  *Money
	Actual    *Money
	Message   string
}

func (e *OrderValidationError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Unwrap().Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *OrderValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	if sentinel, ok := validationSentinels[e.Kind]; ok {
		return sentinel
	}
	return ErrOrderInvalidInput
}

func invalidOrderInput(format string, args ...any) error {
	return &OrderValidationError{Kind: OrderValidationInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent describes a state change on an order.
type OrderEvent struct {
	ID             string
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	PaymentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderRefunder issues refunds for cancelled paid orders.
type OrderRefunder interface {
	RefundPayment(ctx context.Context, cmd RefundCommand) (Order, error)
}

// OrderSnapshotArchiver keeps an immutable copy of an order at a lifecycle milestone.
type OrderSnapshotArchiver interface {
	ArchiveOrderSnapshot(ctx context.Context, orderID, reason string, at time.Time, payload any) (string, error)
}

// OrderServiceDeps bundles the collaborators required by the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Catalog       repositories.CatalogRepository
	Counters      CounterService
	Refunds       OrderRefunder
	Events        OrderEventPublisher
	Notifications NotificationPublisher
	// Snapshots is optional. When set, cancelled orders are archived.
	Snapshots   OrderSnapshotArchiver
	Dispatcher  *TaskDispatcher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
	Currency    string
	// SkipStockDecrement leaves stock untouched at checkout. Stock is decremented by default.
	SkipStockDecrement bool
}

type orderService struct {
	orders         repositories.OrderRepository
	catalog        repositories.CatalogRepository
	counters       CounterService
	refunds        OrderRefunder
	events         OrderEventPublisher
	snapshots      OrderSnapshotArchiver
	dispatcher     *TaskDispatcher
	notifier       notifier
	clock          func() time.Time
	newID          func() string
	logger         Logger
	currency       string
	decrementStock bool
}

// NewOrderService constructs the order service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utc := func() time.Time { return clock().UTC() }
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = NewTaskDispatcher(TaskDispatcherDeps{Logger: logger})
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	return &orderService{
		orders:         deps.Orders,
		catalog:        deps.Catalog,
		counters:       deps.Counters,
		refunds:        deps.Refunds,
		events:         deps.Events,
		snapshots:      deps.Snapshots,
		dispatcher:     dispatcher,
		notifier:       notifier{publisher: deps.Notifications, dispatcher: dispatcher, clock: utc},
		clock:          utc,
		newID:          idGen,
		logger:         logger,
		currency:       currency,
		decrementStock: !deps.SkipStockDecrement,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if err := validateCreateOrder(cmd); err != nil {
		return Order{}, err
	}

	items, stock, subtotal, err := s.priceItems(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	discount := domain.Zero
	var couponCode, couponID string
	if cmd.Coupon != nil {
		discount = cmd.Coupon.DiscountAmount.Round(2)
		if discount.IsNegative() || discount.GreaterThan(subtotal) {
			return Order{}, &OrderValidationError{
				Kind:     OrderValidationInvalidDiscount,
				Expected: &subtotal,
				Actual:   &discount,
				Message:  fmt.Sprintf("discount %s exceeds subtotal %s", discount.StringFixed(2), subtotal.StringFixed(2)),
			}
		}
		couponCode = textutil.NormalizeCode(cmd.Coupon.Code)
		couponID = strings.TrimSpace(cmd.Coupon.CouponID)
	}

	expected := subtotal.Sub(discount)
	if !domain.WithinTolerance(expected, cmd.TotalAmount) {
		actual := cmd.TotalAmount
		return Order{}, &OrderValidationError{
			Kind:     OrderValidationTotalMismatch,
			Expected: &expected,
			Actual:   &actual,
			Message:  fmt.Sprintf("expected %s, got %s", expected.StringFixed(2), actual.StringFixed(2)),
		}
	}

	orderNumber, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	order := Order{
		ID:             ensurePrefixedID(orderIDPrefix, s.newID()),
		OrderNumber:    orderNumber,
		UserID:         strings.TrimSpace(cmd.Viewer.UserID),
		Items:          items,
		Subtotal:       subtotal,
		CouponCode:     couponCode,
		CouponID:       couponID,
		CouponDiscount: discount,
		TotalAmount:    expected,
		Currency:       s.currency,
		Shipping:       sanitizeShipping(cmd.Shipping),
		Status:         domain.OrderStatusNew,
		PaymentStatus:  domain.PaymentStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if order.UserID == "" {
		order.GuestSession = strings.TrimSpace(cmd.Viewer.GuestSession)
	}

	if !s.decrementStock {
		stock = nil
	}
	if err := s.orders.Insert(ctx, order, stock); err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return Order{}, stockValidationError(stockErr, items)
		}
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       order.TotalAmount.StringFixed(2),
		"items":       len(order.Items),
		"guest":       order.UserID == "",
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		ActorID:       cmd.Viewer.ActorID(),
		OccurredAt:    now,
		Metadata: map[string]any{
			"totalAmount": order.TotalAmount.StringFixed(2),
			"couponCode":  order.CouponCode,
		},
	})
	return order, nil
}

// priceItems checks every line against the live catalog. Any failing line rejects the whole order.
func (s *orderService) priceItems(ctx context.Context, lines []OrderLineInput) ([]OrderItem, []repositories.StockLine, Money, error) {
	products := make(map[string]domain.Product, len(lines))
	requested := make(map[string]int, len(lines))
	items := make([]OrderItem, 0, len(lines))
	stock := make([]repositories.StockLine, 0, len(lines))
	stockIndex := make(map[string]int, len(lines))
	subtotal := domain.Zero

	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		size := strings.TrimSpace(line.Size)

		product, ok := products[productID]
		if !ok {
			found, err := s.catalog.FindProduct(ctx, productID)
			if err != nil {
				if isNotFound(err) {
					return nil, nil, domain.Zero, &OrderValidationError{Kind: OrderValidationProductUnavailable, ProductID: productID, Size: size, Message: "product not found"}
				}
				return nil, nil, domain.Zero, mapRepositoryError(err, nil, nil)
			}
			product = found
			products[productID] = product
		}
		if !product.Active {
			return nil, nil, domain.Zero, &OrderValidationError{Kind: OrderValidationProductUnavailable, ProductID: productID, Size: size, Message: fmt.Sprintf("%s is no longer available", product.Name)}
		}

		variant, ok := product.Variant(size)
		if !ok || !variant.Available {
			return nil, nil, domain.Zero, &OrderValidationError{Kind: OrderValidationVariantUnavailable, ProductID: productID, Size: size, Message: fmt.Sprintf("size %s of %s is unavailable", size, product.Name)}
		}

		key := productID + "/" + variant.ID
		requested[key] += line.Quantity
		if variant.Stock < requested[key] {
			return nil, nil, domain.Zero, &OrderValidationError{
				Kind:      OrderValidationInsufficientStock,
				ProductID: productID,
				Size:      size,
				Requested: requested[key],
				Available: variant.Stock,
				Message:   fmt.Sprintf("only %d of %s (%s) left", variant.Stock, product.Name, size),
			}
		}

		submitted := line.Price.Round(2)
		current := variant.Price.Round(2)
		if !submitted.Equal(current) {
			return nil, nil, domain.Zero, &OrderValidationError{
				Kind:      OrderValidationPriceMismatch,
				ProductID: productID,
				Size:      size,
				Expected:  &current,
				Actual:    &submitted,
				Message:   fmt.Sprintf("price of %s (%s) changed to %s", product.Name, size, current.StringFixed(2)),
			}
		}

		lineTotal := current.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, OrderItem{
			ProductID:   productID,
			ProductName: product.Name,
			VariantID:   variant.ID,
			Size:        variant.Size,
			SKU:         variant.SKU,
			UnitPrice:   current,
			Quantity:    line.Quantity,
			Subtotal:    lineTotal,
			WeightKg:    variant.WeightKg,
		})

		if idx, ok := stockIndex[key]; ok {
			stock[idx].Quantity += line.Quantity
			continue
		}
		stockIndex[key] = len(stock)
		stock = append(stock, repositories.StockLine{ProductID: productID, VariantID: variant.ID, Quantity: line.Quantity})
	}
	return items, stock, subtotal, nil
}

func stockValidationError(err *repositories.StockError, items []OrderItem) error {
	size := ""
	for _, item := range items {
		if item.ProductID == err.ProductID && item.VariantID == err.VariantID {
			size = item.Size
			break
		}
	}
	verr := &OrderValidationError{
		ProductID: err.ProductID,
		Size:      size,
		Requested: err.Requested,
		Available: err.Available,
	}
	switch err.Code {
	case repositories.StockErrorInsufficient:
		verr.Kind = OrderValidationInsufficientStock
		verr.Message = fmt.Sprintf("only %d left", err.Available)
	default:
		verr.Kind = OrderValidationVariantUnavailable
		verr.Message = "variant is unavailable"
	}
	return verr
}

func validateCreateOrder(cmd CreateOrderCommand) error {
	if strings.TrimSpace(cmd.Viewer.UserID) == "" && strings.TrimSpace(cmd.Viewer.GuestSession) == "" {
		return invalidOrderInput("buyer identity is required")
	}
	if len(cmd.Items) == 0 {
		return invalidOrderInput("at least one item is required")
	}
	if len(cmd.Items) > maxOrderLines {
		return invalidOrderInput("at most %d items are allowed", maxOrderLines)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return invalidOrderInput("items[%d].product_id is required", i)
		}
		if strings.TrimSpace(item.Size) == "" {
			return invalidOrderInput("items[%d].size is required", i)
		}
		if item.Quantity <= 0 || item.Quantity > maxLineQuantity {
			return invalidOrderInput("items[%d].quantity must be between 1 and %d", i, maxLineQuantity)
		}
		if item.Price.IsNegative() {
			return invalidOrderInput("items[%d].price must not be negative", i)
		}
	}
	if cmd.TotalAmount.IsNegative() {
		return invalidOrderInput("total_amount must not be negative")
	}

	ship := cmd.Shipping
	required := map[string]string{
		"full_name":     ship.FullName,
		"phone":         ship.Phone,
		"address_line1": ship.AddressLine1,
		"city":          ship.City,
		"state":         ship.State,
		"postal_code":   ship.PostalCode,
	}
	for _, field := range []string{"full_name", "phone", "address_line1", "city", "state", "postal_code"} {
		if strings.TrimSpace(required[field]) == "" {
			return invalidOrderInput("shipping_details.%s is required", field)
		}
	}
	if email := strings.TrimSpace(ship.Email); email != "" && !strings.Contains(email, "@") {
		return invalidOrderInput("shipping_details.email is invalid")
	}
	return nil
}

func sanitizeShipping(in ShippingDetails) ShippingDetails {
	country := textutil.PlainText(in.Country, shippingFieldLimit)
	if country == "" {
		country = "India"
	}
	return ShippingDetails{
		FullName:     textutil.PlainText(in.FullName, shippingFieldLimit),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        textutil.Digits(in.Phone),
		AddressLine1: textutil.PlainText(in.AddressLine1, shippingFieldLimit),
		AddressLine2: textutil.PlainText(in.AddressLine2, shippingFieldLimit),
		City:         textutil.PlainText(in.City, shippingFieldLimit),
		State:        textutil.PlainText(in.State, shippingFieldLimit),
		PostalCode:   textutil.Digits(in.PostalCode),
		Country:      country,
		Notes:        textutil.PlainText(in.Notes, shippingNotesLimit),
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, viewer Viewer) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, invalidOrderInput("order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	if !canView(order, viewer) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func canView(order Order, viewer Viewer) bool {
	return viewer.Admin || order.OwnedBy(viewer.UserID, viewer.GuestSession)
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error) {
	userID := strings.TrimSpace(filter.UserID)
	if !filter.Viewer.Admin {
		userID = strings.TrimSpace(filter.Viewer.UserID)
		if userID == "" {
			return domain.Page[Order]{}, invalidOrderInput("user is required")
		}
	}
	for _, status := range filter.Status {
		if !status.Valid() {
			return domain.Page[Order]{}, invalidOrderInput("unknown status %q", status)
		}
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     userID,
		Status:     filter.Status,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.Page[Order]{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	return page, nil
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	current, err := s.GetOrder(ctx, cmd.OrderID, cmd.Viewer)
	if err != nil {
		return Order{}, err
	}

	reason := textutil.PlainText(cmd.Reason, cancelReasonLimit)
	if reason == "" {
		reason = defaultCancelReason
	}

	var previous domain.OrderStatus
	updated, err := s.orders.Mutate(ctx, current.ID, func(order *domain.Order) error {
		previous = order.Status
		if !order.Status.Cancellable() {
			return fmt.Errorf("%w: order is %s", ErrOrderCannotCancel, order.Status)
		}
		now := s.clock()
		order.Status = domain.OrderStatusCancelled
		order.CancelReason = reason
		order.CancelledAt = &now
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderCannotCancel) {
			return Order{}, err
		}
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId":        updated.ID,
		"previousStatus": string(previous),
		"paymentStatus":  string(updated.PaymentStatus),
		"actor":          cmd.Viewer.ActorID(),
	})

	s.restoreStock(ctx, updated)
	if updated.PaymentStatus == domain.PaymentStatusCompleted && s.refunds != nil {
		s.requestRefund(ctx, updated, cmd.Viewer.ActorID())
	}
	s.archiveSnapshot(ctx, updated, "cancelled")
	s.notifier.notify(ctx, NotificationOrderCancelled, updated)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(updated.Status),
		PaymentStatus:  string(updated.PaymentStatus),
		ActorID:        cmd.Viewer.ActorID(),
		OccurredAt:     s.clock(),
		Metadata:       map[string]any{"reason": reason},
	})
	return updated, nil
}

func (s *orderService) restoreStock(ctx context.Context, order Order) {
	if !s.decrementStock {
		return
	}
	lines := make([]repositories.StockLine, 0, len(order.Items))
	for _, item := range order.Items {
		if item.VariantID == "" || item.Quantity <= 0 {
			continue
		}
		lines = append(lines, repositories.StockLine{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity})
	}
	if len(lines) == 0 {
		return
	}
	if err := s.catalog.RestoreStock(ctx, lines); err != nil {
		s.logger(ctx, "order.stock.restore_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

const (
	cancelRefundReason    = "order cancelled"
	cancelRefundKeyPrefix = "cancel-"
)

func (s *orderService) requestRefund(ctx context.Context, order Order, actorID string) {
	amount := order.TotalAmount.Sub(order.RefundedAmount())
	if !amount.IsPositive() {
		return
	}
	cmd := RefundCommand{
		OrderID:        order.ID,
		Amount:         amount,
		Reason:         cancelRefundReason,
		ActorID:        actorID,
		IdempotencyKey: cancelRefundKeyPrefix + order.ID,
	}
	s.dispatcher.Dispatch(ctx, "order.cancel.refund", func(ctx context.Context) error {
		_, err := s.refunds.RefundPayment(ctx, cmd)
		return err
	})
}

func (s *orderService) archiveSnapshot(ctx context.Context, order Order, reason string) {
	if s.snapshots == nil {
		return
	}
	at := s.clock()
	s.dispatcher.Dispatch(ctx, "order.snapshot."+reason, func(ctx context.Context) error {
		_, err := s.snapshots.ArchiveOrderSnapshot(ctx, order.ID, reason, at, order)
		return err
	})
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, invalidOrderInput("order id is required")
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	if !target.Valid() {
		return Order{}, invalidOrderInput("unknown status %q", cmd.Status)
	}

	var previous domain.OrderStatus
	updated, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		previous = order.Status
		if err := domain.CheckOrderTransition(order.Status, target); err != nil {
			if errors.Is(err, domain.ErrStateUnchanged) {
				return repositories.ErrSkipWrite
			}
			return fmt.Errorf("%w: %v", ErrOrderInvalidTransition, err)
		}
		now := s.clock()
		order.Status = target
		order.UpdatedAt = now
		switch target {
		case domain.OrderStatusShipped:
			if order.ShippedAt == nil {
				order.ShippedAt = &now
			}
		case domain.OrderStatusDelivered:
			order.DeliveredAt = &now
		case domain.OrderStatusCancelled:
			order.CancelledAt = &now
			order.CancelReason = textutil.PlainText(cmd.Reason, cancelReasonLimit)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderInvalidTransition) {
			return Order{}, err
		}
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	if previous == updated.Status {
		return updated, nil
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId": updated.ID,
		"from":    string(previous),
		"to":      string(updated.Status),
		"actor":   cmd.ActorID,
	})
	switch updated.Status {
	case domain.OrderStatusCancelled:
		s.restoreStock(ctx, updated)
		if updated.PaymentStatus == domain.PaymentStatusCompleted && s.refunds != nil {
			s.requestRefund(ctx, updated, cmd.ActorID)
		}
		s.notifier.notify(ctx, NotificationOrderCancelled, updated)
	case domain.OrderStatusShipped:
		s.notifier.notify(ctx, NotificationOrderShipped, updated)
	case domain.OrderStatusDelivered:
		s.notifier.notify(ctx, NotificationOrderDelivered, updated)
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(updated.Status),
		PaymentStatus:  string(updated.PaymentStatus),
		ActorID:        cmd.ActorID,
		OccurredAt:     s.clock(),
	})
	return updated, nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	publishOrderEvent(ctx, s.events, s.logger, event)
}

func publishOrderEvent(ctx context.Context, publisher OrderEventPublisher, logger Logger, event OrderEvent) {
	if publisher == nil {
		return
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}
