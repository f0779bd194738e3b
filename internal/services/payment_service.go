package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/payments"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

const (
	defaultContinuationWait = 10 * time.Second
	defaultReconcileAge     = 15 * time.Minute
	defaultReconcileLimit   = 50
	maxReconcileLimit       = 500
	reconcileConcurrency    = 4
	refundIDPrefix          = "rfd_"
	systemActor             = "system"
)

var (
	// ErrPaymentInvalidInput signals malformed payment input.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentAmountMismatch indicates the client amount differs from the order total.
	ErrPaymentAmountMismatch = errors.New("payment: amount mismatch")
	// ErrPaymentAlreadyPaid indicates the order payment is already complete.
	ErrPaymentAlreadyPaid = errors.New("payment: already paid")
	// ErrPaymentInvalidSignature indicates the checkout callback failed verification.
	ErrPaymentInvalidSignature = errors.New("payment: invalid signature")
	// ErrPaymentOrderMismatch indicates the callback refers to a different gateway order.
	ErrPaymentOrderMismatch = errors.New("payment: gateway order mismatch")
	// ErrPaymentNotRefundable indicates the order has no captured payment left to refund.
	ErrPaymentNotRefundable = errors.New("payment: not refundable")
)

// PaymentServiceDeps bundles the collaborators of the payment reconciliation service.
type PaymentServiceDeps struct {
	Orders  repositories.OrderRepository
	Gateway payments.Gateway
	// Shipments is optional. When set, a verified payment books the shipment.
	Shipments     ShipmentService
	Events        OrderEventPublisher
	Notifications NotificationPublisher
	Dispatcher    *TaskDispatcher
	// KeyID is handed to the checkout widget; KeySecret signs checkout callbacks.
	KeyID     string
	KeySecret string
	Currency  string
	// ContinuationWait bounds how long VerifyPayment waits for capture and shipment booking.
	ContinuationWait time.Duration
	Clock            func() time.Time
	Logger           Logger
}

type paymentService struct {
	orders           repositories.OrderRepository
	gateway          payments.Gateway
	shipments        ShipmentService
	events           OrderEventPublisher
	dispatcher       *TaskDispatcher
	notifier         notifier
	keyID            string
	keySecret        string
	currency         string
	continuationWait time.Duration
	clock            func() time.Time
	logger           Logger
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService wires the payment reconciliation service.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}
	if strings.TrimSpace(deps.KeySecret) == "" {
		return nil, errors.New("payment service: key secret is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utc := func() time.Time { return clock().UTC() }
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
	wait := deps.ContinuationWait
	if wait <= 0 {
		wait = defaultContinuationWait
	}

	return &paymentService{
		orders:           deps.Orders,
		gateway:          deps.Gateway,
		shipments:        deps.Shipments,
		events:           deps.Events,
		dispatcher:       dispatcher,
		notifier:         notifier{publisher: deps.Notifications, dispatcher: dispatcher, clock: utc},
		keyID:            strings.TrimSpace(deps.KeyID),
		keySecret:        deps.KeySecret,
		currency:         currency,
		continuationWait: wait,
		clock:            utc,
		logger:           logger,
	}, nil
}

func (s *paymentService) CreateGatewayOrder(ctx context.Context, cmd CreatePaymentOrderCommand) (PaymentSession, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentSession{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return PaymentSession{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	if !canView(order, cmd.Viewer) {
		return PaymentSession{}, ErrOrderNotFound
	}
	if err := payableCheck(order); err != nil {
		return PaymentSession{}, err
	}
	if !domain.WithinTolerance(cmd.Amount, order.TotalAmount) {
		return PaymentSession{}, fmt.Errorf("%w: expected %s, got %s", ErrPaymentAmountMismatch, order.TotalAmount.StringFixed(2), cmd.Amount.StringFixed(2))
	}

	// Stripe client secrets are not persisted, so only Razorpay orders are reused.
	if order.Payment.GatewayOrderID != "" && order.Payment.Provider != payments.ProviderStripe {
		s.logger(ctx, "payment.gateway_order.reused", map[string]any{
			"orderId":        order.ID,
			"gatewayOrderId": order.Payment.GatewayOrderID,
		})
		return s.session(order, order.Payment.Provider, order.Payment.GatewayOrderID, ""), nil
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, payments.OrderRequest{
		AmountMinor: domain.ToMinorUnits(order.TotalAmount),
		Currency:    s.currency,
		Receipt:     order.OrderNumber,
		Notes: map[string]string{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
		},
	})
	if err != nil {
		s.logger(ctx, "payment.gateway_order.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return PaymentSession{}, err
	}

	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		if err := payableCheck(*o); err != nil {
			return err
		}
		o.Payment.Provider = gwOrder.Provider
		o.Payment.GatewayOrderID = gwOrder.ID
		o.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPaymentAlreadyPaid) || errors.Is(err, ErrPaymentInvalidInput) {
			return PaymentSession{}, err
		}
		return PaymentSession{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	s.logger(ctx, "payment.gateway_order.created", map[string]any{
		"orderId":        updated.ID,
		"provider":       gwOrder.Provider,
		"gatewayOrderId": gwOrder.ID,
		"amountMinor":    gwOrder.AmountMinor,
	})
	return s.session(updated, gwOrder.Provider, gwOrder.ID, gwOrder.ClientSecret), nil
}

func payableCheck(order Order) error {
	switch {
	case order.PaymentStatus == domain.PaymentStatusCompleted, order.PaymentStatus == domain.PaymentStatusDisputed:
		return ErrPaymentAlreadyPaid
	case order.Status == domain.OrderStatusCancelled:
		return fmt.Errorf("%w: order is cancelled", ErrPaymentInvalidInput)
	}
	return nil
}

func (s *paymentService) session(order Order, provider, gatewayOrderID, clientSecret string) PaymentSession {
	keyID := s.keyID
	if provider == payments.ProviderStripe {
		keyID = ""
	}
	return PaymentSession{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Provider:       provider,
		GatewayOrderID: gatewayOrderID,
		KeyID:          keyID,
		ClientSecret:   clientSecret,
		Amount:         order.TotalAmount,
		AmountMinor:    domain.ToMinorUnits(order.TotalAmount),
		Currency:       s.currency,
		Prefill: PaymentPrefill{
			Name:    order.Shipping.FullName,
			Email:   order.Shipping.Email,
			Contact: order.Shipping.Phone,
		},
	}
}

func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	paymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	if orderID == "" || gatewayOrderID == "" || paymentID == "" {
		return VerifyPaymentResult{}, fmt.Errorf("%w: order id, gateway order id and payment id are required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return VerifyPaymentResult{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	if !s.callbackAuthentic(ctx, order, gatewayOrderID, paymentID, cmd.Signature) {
		s.logger(ctx, "security.payment.signature_invalid", map[string]any{
			"orderId":          order.ID,
			"gatewayOrderId":   gatewayOrderID,
			"gatewayPaymentId": paymentID,
			"actor":            cmd.Viewer.ActorID(),
		})
		return VerifyPaymentResult{}, ErrPaymentInvalidSignature
	}
	if order.Payment.GatewayOrderID != gatewayOrderID {
		s.logger(ctx, "security.payment.order_mismatch", map[string]any{
			"orderId":        order.ID,
			"gatewayOrderId": gatewayOrderID,
			"expected":       order.Payment.GatewayOrderID,
		})
		return VerifyPaymentResult{}, ErrPaymentOrderMismatch
	}

	var transitioned bool
	var previous domain.OrderStatus
	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		transitioned = false
		previous = o.Status
		if o.Payment.GatewayOrderID != gatewayOrderID {
			return ErrPaymentOrderMismatch
		}
		now := s.clock()
		if o.Payment.GatewayPaymentID == "" || o.PaymentStatus != domain.PaymentStatusCompleted {
			o.Payment.GatewayPaymentID = paymentID
		}
		if err := domain.CheckPaymentTransition(o.PaymentStatus, domain.PaymentStatusCompleted); err != nil {
			if o.Payment.SignatureVerified {
				return repositories.ErrSkipWrite
			}
			// Completed by a webhook before the browser came back; record the verification only.
			o.Payment.SignatureVerified = true
			o.Payment.VerifiedAt = &now
			o.UpdatedAt = now
			return nil
		}
		o.PaymentStatus = domain.PaymentStatusCompleted
		o.Payment.SignatureVerified = true
		o.Payment.VerifiedAt = &now
		o.Payment.FailureReason = ""
		o.PaidAt = &now
		o.UpdatedAt = now
		if domain.CheckOrderTransition(o.Status, domain.OrderStatusConfirmed) == nil {
			o.Status = domain.OrderStatusConfirmed
		}
		transitioned = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPaymentOrderMismatch) {
			return VerifyPaymentResult{}, err
		}
		return VerifyPaymentResult{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	result := VerifyPaymentResult{Order: updated, Shipment: shipmentSnapshot(updated)}
	if !transitioned {
		return result, nil
	}

	s.logger(ctx, "payment.verified", map[string]any{
		"orderId":          updated.ID,
		"gatewayPaymentId": paymentID,
		"status":           string(updated.Status),
	})
	s.paymentCompleted(ctx, updated, previous, "verify")
	if updated.Status == domain.OrderStatusCancelled {
		s.logger(ctx, "payment.verified_on_cancelled_order", map[string]any{"orderId": updated.ID})
		return result, nil
	}

	cont := &continuationResult{}
	done := s.dispatcher.Dispatch(ctx, "payment.verify.continuations", func(ctx context.Context) error {
		cont.captureErr = s.capture(ctx, updated)
		if s.shipments != nil {
			cont.order, cont.shipmentErr = s.shipments.CreateShipment(ctx, CreateShipmentCommand{OrderID: updated.ID, ActorID: systemActor})
		}
		return errors.Join(cont.captureErr, cont.shipmentErr)
	})
	finished, _ := Await(ctx, done, s.continuationWait)
	if !finished {
		s.logger(ctx, "payment.continuations.pending", map[string]any{"orderId": updated.ID})
		return result, nil
	}
	result.CaptureError = cont.captureErr
	result.ShipmentError = cont.shipmentErr
	if cont.shipmentErr == nil && cont.order.ID != "" {
		result.Order = cont.order
		result.Shipment = shipmentSnapshot(cont.order)
	}
	return result, nil
}

type continuationResult struct {
	captureErr  error
	shipmentErr error
	order       Order
}

// callbackAuthentic checks the checkout callback. Razorpay signs orderID|paymentID with the key secret;
// Stripe has no client signature, so the intent is fetched and must belong to the order.
func (s *paymentService) callbackAuthentic(ctx context.Context, order Order, gatewayOrderID, paymentID, signature string) bool {
	if order.Payment.Provider != payments.ProviderStripe {
		return payments.VerifyPaymentSignature(gatewayOrderID, paymentID, signature, s.keySecret)
	}
	payment, err := s.gateway.FetchPayment(payments.WithProvider(ctx, order.Payment.Provider), paymentID)
	if err != nil {
		s.logger(ctx, "payment.verify.fetch_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return false
	}
	if payment.OrderID != gatewayOrderID {
		return false
	}
	return payment.State == payments.StateAuthorized || payment.State == payments.StateCaptured
}

// capture settles an authorised payment. Auto-captured payments only get their timestamp recorded.
func (s *paymentService) capture(ctx context.Context, order Order) error {
	gwCtx := payments.WithProvider(ctx, order.Payment.Provider)
	payment, err := s.gateway.FetchPayment(gwCtx, order.Payment.GatewayPaymentID)
	if err != nil {
		s.logger(ctx, "payment.capture.failed", map[string]any{"orderId": order.ID, "stage": "fetch", "error": err.Error()})
		return err
	}
	method := payment.Method
	switch payment.State {
	case payments.StateCaptured:
	case payments.StateAuthorized:
		captured, err := s.gateway.Capture(gwCtx, payments.CaptureRequest{
			PaymentID:   payment.ID,
			AmountMinor: domain.ToMinorUnits(order.TotalAmount),
			Currency:    s.currency,
		})
		if err != nil {
			s.logger(ctx, "payment.capture.failed", map[string]any{"orderId": order.ID, "stage": "capture", "error": err.Error()})
			return err
		}
		if captured.Method != "" {
			method = captured.Method
		}
	default:
		return nil
	}

	_, err = s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		if o.Payment.CapturedAt != nil {
			return repositories.ErrSkipWrite
		}
		now := s.clock()
		o.Payment.CapturedAt = &now
		if o.Payment.Method == "" {
			o.Payment.Method = method
		}
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logger(ctx, "payment.capture.persist_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	s.logger(ctx, "payment.captured", map[string]any{"orderId": order.ID, "gatewayPaymentId": order.Payment.GatewayPaymentID})
	return nil
}

func shipmentSnapshot(order Order) *ShipmentSnapshot {
	if order.Shipment.Status == domain.ShipmentStatusNone && order.Shipment.TrackingCode == "" {
		return nil
	}
	return &ShipmentSnapshot{
		Status:            order.Shipment.Status,
		Courier:           order.Shipment.Courier,
		TrackingCode:      order.Shipment.TrackingCode,
		TrackingURL:       order.Shipment.TrackingURL,
		EstimatedDelivery: order.Shipment.EstimatedDelivery,
	}
}

// paymentCompleted runs the side effects of a payment reaching completed exactly once per transition.
func (s *paymentService) paymentCompleted(ctx context.Context, order Order, previous domain.OrderStatus, source string) {
	if order.Status == domain.OrderStatusCancelled {
		s.refundCancelledOrder(ctx, order, source)
		return
	}
	s.notifier.notify(ctx, NotificationOrderConfirmed, order)
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		ActorID:        systemActor,
		OccurredAt:     s.clock(),
		Metadata:       map[string]any{"source": source},
	})
}

// refundCancelledOrder returns money captured after the order was cancelled. It shares the
// cancellation refund key, so the gateway refunds at most once per order.
func (s *paymentService) refundCancelledOrder(ctx context.Context, order Order, source string) {
	amount := order.TotalAmount.Sub(order.RefundedAmount())
	if !amount.IsPositive() {
		return
	}
	s.logger(ctx, "payment.completed_on_cancelled_order", map[string]any{
		"orderId": order.ID,
		"source":  source,
		"amount":  amount.StringFixed(2),
	})
	cmd := RefundCommand{
		OrderID:        order.ID,
		Amount:         amount,
		Reason:         cancelRefundReason,
		ActorID:        systemActor,
		IdempotencyKey: cancelRefundKeyPrefix + order.ID,
	}
	s.dispatcher.Dispatch(ctx, "payment.cancelled.refund", func(ctx context.Context) error {
		_, err := s.RefundPayment(ctx, cmd)
		return err
	})
}

func (s *paymentService) HandleWebhook(ctx context.Context, event payments.WebhookEvent) error {
	order, err := s.findWebhookOrder(ctx, event)
	if err != nil {
		if isNotFound(err) {
			s.logger(ctx, "payment.webhook.unmatched", map[string]any{
				"event":            event.Type,
				"gatewayOrderId":   event.GatewayOrderID,
				"gatewayPaymentId": event.GatewayPaymentID,
			})
			return nil
		}
		s.logger(ctx, "payment.webhook.lookup_failed", map[string]any{"event": event.Type, "error": err.Error()})
		return mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	outcome, err := s.applyGatewayEvent(ctx, order, event)
	if err != nil {
		s.logger(ctx, "payment.webhook.failed", map[string]any{
			"event":   event.Type,
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return err
	}
	if outcome == outcomeCompleted && s.shipments != nil {
		orderID := order.ID
		s.dispatcher.Dispatch(ctx, "payment.webhook.shipment", func(ctx context.Context) error {
			_, err := s.shipments.CreateShipment(ctx, CreateShipmentCommand{OrderID: orderID, ActorID: systemActor})
			if errors.Is(err, ErrShipmentAlreadyExists) || errors.Is(err, ErrShipmentOrderNotPaid) {
				return nil
			}
			return err
		})
	}
	return nil
}

func (s *paymentService) findWebhookOrder(ctx context.Context, event payments.WebhookEvent) (Order, error) {
	if id := strings.TrimSpace(event.GatewayPaymentID); id != "" {
		order, err := s.orders.FindByGatewayPaymentID(ctx, id)
		if err == nil {
			return order, nil
		}
		if !isNotFound(err) {
			return Order{}, err
		}
	}
	return s.orders.FindByGatewayOrderID(ctx, strings.TrimSpace(event.GatewayOrderID))
}

type gatewayOutcome int

const (
	outcomeNone gatewayOutcome = iota
	outcomeAuthorized
	outcomeCompleted
	outcomeFailed
	outcomeDisputed
)

// applyGatewayEvent moves the payment state forward for a webhook or reconciliation result. Stale and
// duplicate events are ignored, never applied backwards.
func (s *paymentService) applyGatewayEvent(ctx context.Context, order Order, event payments.WebhookEvent) (gatewayOutcome, error) {
	var target domain.PaymentStatus
	outcome := outcomeNone
	switch event.Type {
	case payments.EventPaymentAuthorized:
		target, outcome = domain.PaymentStatusAuthorized, outcomeAuthorized
	case payments.EventPaymentCaptured:
		target, outcome = domain.PaymentStatusCompleted, outcomeCompleted
	case payments.EventOrderPaid:
		if order.PaymentStatus == domain.PaymentStatusCompleted {
			return outcomeNone, nil
		}
		target, outcome = domain.PaymentStatusCompleted, outcomeCompleted
	case payments.EventPaymentFailed:
		target, outcome = domain.PaymentStatusFailed, outcomeFailed
	case payments.EventDisputeCreated:
		target, outcome = domain.PaymentStatusDisputed, outcomeDisputed
	case payments.EventRefundProcessed:
		return outcomeNone, s.recordGatewayRefund(ctx, order, event)
	default:
		s.logger(ctx, "payment.webhook.ignored", map[string]any{"event": event.Type, "orderId": order.ID})
		return outcomeNone, nil
	}

	var transitioned bool
	var previous domain.OrderStatus
	var from domain.PaymentStatus
	var rejected error
	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		transitioned = false
		rejected = nil
		previous = o.Status
		from = o.PaymentStatus
		if err := domain.CheckPaymentTransition(o.PaymentStatus, target); err != nil {
			if !errors.Is(err, domain.ErrStateUnchanged) {
				rejected = err
			}
			return repositories.ErrSkipWrite
		}

		now := s.clock()
		at := event.OccurredAt
		if at.IsZero() {
			at = now
		}
		o.PaymentStatus = target
		// A successful retry replaces the id of an earlier failed attempt.
		if event.GatewayPaymentID != "" && (o.Payment.GatewayPaymentID == "" || target == domain.PaymentStatusCompleted) {
			o.Payment.GatewayPaymentID = event.GatewayPaymentID
		}
		if o.Payment.Method == "" {
			o.Payment.Method = event.Method
		}
		switch target {
		case domain.PaymentStatusCompleted:
			o.Payment.FailureReason = ""
			if o.Payment.CapturedAt == nil {
				o.Payment.CapturedAt = &at
			}
			if o.PaidAt == nil {
				o.PaidAt = &at
			}
			if o.Status == domain.OrderStatusNew {
				o.Status = domain.OrderStatusConfirmed
			}
		case domain.PaymentStatusFailed:
			o.Payment.FailureReason = failureReason(event)
			o.Payment.FailedAt = &at
		case domain.PaymentStatusDisputed:
			o.Payment.DisputedAt = &at
		}
		o.UpdatedAt = now
		transitioned = true
		return nil
	})
	if err != nil {
		return outcomeNone, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	if rejected != nil {
		eventName := "payment.webhook.transition_rejected"
		if errors.Is(rejected, domain.ErrStateRegression) {
			eventName = "payment.webhook.regression_ignored"
		}
		s.logger(ctx, eventName, map[string]any{
			"event":   event.Type,
			"orderId": order.ID,
			"from":    string(from),
			"to":      string(target),
		})
		return outcomeNone, nil
	}
	if !transitioned {
		return outcomeNone, nil
	}

	s.logger(ctx, "payment.status.updated", map[string]any{
		"event":   event.Type,
		"orderId": updated.ID,
		"from":    string(from),
		"to":      string(target),
	})
	if outcome == outcomeCompleted {
		s.paymentCompleted(ctx, updated, previous, event.Type)
		if updated.Status == domain.OrderStatusCancelled {
			return outcomeNone, nil
		}
	}
	return outcome, nil
}

// recordGatewayRefund appends refunds issued from the gateway dashboard. Refunds already recorded by
// RefundPayment carry the same gateway id and are skipped.
func (s *paymentService) recordGatewayRefund(ctx context.Context, order Order, event payments.WebhookEvent) error {
	gatewayID := strings.TrimSpace(event.RefundID)
	var recorded bool
	var amount domain.Money
	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		recorded = false
		remaining := o.TotalAmount.Sub(o.RefundedAmount())
		if gatewayID != "" {
			for i := range o.Refunds {
				if o.Refunds[i].GatewayID != gatewayID {
					continue
				}
				if event.RefundStatus == "" || o.Refunds[i].Status == event.RefundStatus {
					return repositories.ErrSkipWrite
				}
				o.Refunds[i].Status = event.RefundStatus
				o.UpdatedAt = s.clock()
				return nil
			}
			amount = domain.MoneyFromMinor(event.AmountMinor)
		} else {
			// Only the running total is known; record whatever is not yet accounted for.
			amount = domain.MoneyFromMinor(event.RefundedTotalMinor).Sub(o.RefundedAmount())
			gatewayID = event.GatewayPaymentID
		}
		if !amount.IsPositive() || !remaining.IsPositive() {
			return repositories.ErrSkipWrite
		}
		if amount.GreaterThan(remaining) {
			amount = remaining
		}
		now := s.clock()
		at := event.OccurredAt
		if at.IsZero() {
			at = now
		}
		o.Refunds = append(o.Refunds, domain.Refund{
			ID:        refundIDPrefix + ulid.Make().String(),
			GatewayID: gatewayID,
			Amount:    amount,
			Reason:    "issued at gateway",
			Status:    event.RefundStatus,
			CreatedBy: systemActor,
			CreatedAt: at,
		})
		o.UpdatedAt = now
		recorded = true
		return nil
	})
	if err != nil {
		return mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	if recorded {
		s.logger(ctx, "payment.refund.recorded", map[string]any{
			"orderId":  updated.ID,
			"refundId": gatewayID,
			"amount":   amount.StringFixed(2),
			"provider": event.Provider,
		})
	}
	return nil
}

func failureReason(event payments.WebhookEvent) string {
	reason := strings.TrimSpace(event.ErrorDescription)
	if reason == "" {
		reason = strings.TrimSpace(event.ErrorCode)
	}
	if reason == "" {
		reason = "payment failed"
	}
	return reason
}

func (s *paymentService) ReconcilePending(ctx context.Context, cmd ReconcileCommand) (ReconcileReport, error) {
	age := cmd.OlderThan
	if age <= 0 {
		age = defaultReconcileAge
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	if limit > maxReconcileLimit {
		limit = maxReconcileLimit
	}

	orders, err := s.orders.ListAwaitingPayment(ctx, s.clock().Add(-age), limit)
	if err != nil {
		return ReconcileReport{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	var mu sync.Mutex
	report := ReconcileReport{Checked: len(orders)}
	record := func(outcome gatewayOutcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			report.Errors++
		case outcome == outcomeCompleted:
			report.Completed++
		case outcome == outcomeFailed:
			report.Failed++
		default:
			report.Unchanged++
		}
	}

	var g errgroup.Group
	g.SetLimit(reconcileConcurrency)
	for _, order := range orders {
		g.Go(func() error {
			outcome, err := s.reconcileOrder(ctx, order)
			if err != nil {
				s.logger(ctx, "payment.reconcile.order_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
			}
			record(outcome, err)
			return nil
		})
	}
	_ = g.Wait()

	s.logger(ctx, "payment.reconcile.completed", map[string]any{
		"checked":   report.Checked,
		"completed": report.Completed,
		"failed":    report.Failed,
		"unchanged": report.Unchanged,
		"errors":    report.Errors,
	})
	return report, nil
}

func (s *paymentService) reconcileOrder(ctx context.Context, order Order) (gatewayOutcome, error) {
	attempts, err := s.gateway.FetchOrderPayments(payments.WithProvider(ctx, order.Payment.Provider), order.Payment.GatewayOrderID)
	if err != nil {
		return outcomeNone, err
	}
	event, ok := reconcileEvent(attempts)
	if !ok {
		return outcomeNone, nil
	}
	event.Provider = order.Payment.Provider
	event.GatewayOrderID = order.Payment.GatewayOrderID
	return s.applyGatewayEvent(ctx, order, event)
}

// reconcileEvent picks the most advanced outcome across payment attempts: any capture wins, then any
// authorisation, and the order only fails when every attempt failed.
func reconcileEvent(attempts []payments.Payment) (payments.WebhookEvent, bool) {
	var authorized, failed *payments.Payment
	allFailed := len(attempts) > 0
	for i := range attempts {
		p := &attempts[i]
		switch p.State {
		case payments.StateCaptured, payments.StateRefunded:
			return payments.WebhookEvent{Type: payments.EventPaymentCaptured, GatewayPaymentID: p.ID, AmountMinor: p.AmountMinor, Method: p.Method, OccurredAt: p.CreatedAt}, true
		case payments.StateAuthorized:
			authorized = p
			allFailed = false
		case payments.StateFailed:
			failed = p
		default:
			allFailed = false
		}
	}
	if authorized != nil {
		return payments.WebhookEvent{Type: payments.EventPaymentAuthorized, GatewayPaymentID: authorized.ID, Method: authorized.Method, OccurredAt: authorized.CreatedAt}, true
	}
	if allFailed && failed != nil {
		return payments.WebhookEvent{
			Type:             payments.EventPaymentFailed,
			GatewayPaymentID: failed.ID,
			ErrorCode:        failed.ErrorCode,
			ErrorDescription: failed.ErrorDescription,
			OccurredAt:       failed.CreatedAt,
		}, true
	}
	return payments.WebhookEvent{}, false
}

func (s *paymentService) RefundPayment(ctx context.Context, cmd RefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	if cmd.Amount.IsNegative() {
		return Order{}, fmt.Errorf("%w: amount must not be negative", ErrPaymentInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	refundID := refundIDPrefix + ulid.Make().String()
	if key := strings.TrimSpace(cmd.IdempotencyKey); key != "" {
		refundID = refundIDPrefix + key
		for _, existing := range order.Refunds {
			if existing.ID == refundID {
				return order, nil
			}
		}
	}

	if order.PaymentStatus != domain.PaymentStatusCompleted && order.PaymentStatus != domain.PaymentStatusDisputed {
		return Order{}, fmt.Errorf("%w: payment is %s", ErrPaymentNotRefundable, order.PaymentStatus)
	}
	if order.Payment.GatewayPaymentID == "" {
		return Order{}, fmt.Errorf("%w: no gateway payment recorded", ErrPaymentNotRefundable)
	}
	remaining := order.TotalAmount.Sub(order.RefundedAmount())
	amount := cmd.Amount.Round(2)
	if amount.IsZero() {
		amount = remaining
	}
	if !amount.IsPositive() || amount.GreaterThan(remaining) {
		return Order{}, fmt.Errorf("%w: refundable amount is %s", ErrPaymentNotRefundable, remaining.StringFixed(2))
	}

	reason := strings.TrimSpace(cmd.Reason)
	result, err := s.gateway.Refund(payments.WithProvider(ctx, order.Payment.Provider), payments.RefundRequest{
		PaymentID:      order.Payment.GatewayPaymentID,
		AmountMinor:    domain.ToMinorUnits(amount),
		Reason:         reason,
		IdempotencyKey: strings.TrimPrefix(refundID, refundIDPrefix),
		Notes:          map[string]string{"order_id": order.ID},
	})
	if err != nil {
		s.logger(ctx, "payment.refund.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return Order{}, err
	}

	refund := domain.Refund{
		ID:        refundID,
		GatewayID: result.ID,
		Amount:    amount,
		Reason:    reason,
		Status:    result.Status,
		CreatedBy: strings.TrimSpace(cmd.ActorID),
		CreatedAt: s.clock(),
	}
	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		for i, existing := range o.Refunds {
			if existing.ID == refund.ID {
				return repositories.ErrSkipWrite
			}
			// The gateway webhook can land before this write.
			if refund.GatewayID != "" && existing.GatewayID == refund.GatewayID {
				o.Refunds[i].ID = refund.ID
				o.Refunds[i].Reason = refund.Reason
				o.Refunds[i].CreatedBy = refund.CreatedBy
				o.UpdatedAt = s.clock()
				return nil
			}
		}
		o.Refunds = append(o.Refunds, refund)
		o.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		s.logger(ctx, "payment.refund.persist_failed", map[string]any{
			"orderId":  order.ID,
			"refundId": result.ID,
			"error":    err.Error(),
		})
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	s.logger(ctx, "payment.refunded", map[string]any{
		"orderId":  updated.ID,
		"refundId": result.ID,
		"amount":   amount.StringFixed(2),
		"actor":    cmd.ActorID,
	})
	return updated, nil
}
