package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/shipping"
)

var (
	// ErrShipmentInvalidInput signals malformed shipment input.
	ErrShipmentInvalidInput = errors.New("shipment: invalid input")
	// ErrShipmentOrderNotPaid indicates the order payment has not completed.
	ErrShipmentOrderNotPaid = errors.New("shipment: order not paid")
	// ErrShipmentAlreadyExists indicates the order already carries a tracking code.
	ErrShipmentAlreadyExists = errors.New("shipment: already exists")
	// ErrShipmentNotFound indicates the order has no shipment to act on.
	ErrShipmentNotFound = errors.New("shipment: not found")
	// ErrShipmentNotCancellable indicates the shipment already reached a final state.
	ErrShipmentNotCancellable = errors.New("shipment: not cancellable")
)

// ShipmentServiceDeps bundles the collaborators of the shipment service.
type ShipmentServiceDeps struct {
	Orders        repositories.OrderRepository
	Aggregator    shipping.Aggregator
	Events        OrderEventPublisher
	Notifications NotificationPublisher
	Dispatcher    *TaskDispatcher
	Clock         func() time.Time
	Logger        Logger
}

type shipmentService struct {
	orders     repositories.OrderRepository
	aggregator shipping.Aggregator
	events     OrderEventPublisher
	notifier   notifier
	clock      func() time.Time
	logger     Logger
}

var _ ShipmentService = (*shipmentService)(nil)

// NewShipmentService wires the shipment service.
func NewShipmentService(deps ShipmentServiceDeps) (ShipmentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("shipment service: order repository is required")
	}
	if deps.Aggregator == nil {
		return nil, errors.New("shipment service: aggregator is required")
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
	return &shipmentService{
		orders:     deps.Orders,
		aggregator: deps.Aggregator,
		events:     deps.Events,
		notifier:   notifier{publisher: deps.Notifications, dispatcher: dispatcher, clock: utc},
		clock:      utc,
		logger:     logger,
	}, nil
}

func (s *shipmentService) CreateShipment(ctx context.Context, cmd CreateShipmentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrShipmentInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	if err := shippableCheck(order); err != nil {
		return Order{}, err
	}

	booking, err := s.aggregator.CreateShipment(ctx, shipmentRequest(order))
	if err != nil {
		s.logger(ctx, "shipment.create.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return Order{}, err
	}

	var previous domain.OrderStatus
	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		if err := shippableCheck(*o); err != nil {
			return err
		}
		now := s.clock()
		previous = o.Status
		status := booking.Status
		if status == domain.ShipmentStatusNone {
			status = domain.ShipmentStatusCreated
		}
		o.Shipment = domain.ShipmentInfo{
			Status:            status,
			ProviderOrderID:   booking.ProviderOrderID,
			ShipmentID:        booking.ShipmentID,
			Courier:           booking.Courier,
			TrackingCode:      booking.TrackingCode,
			TrackingURL:       booking.TrackingURL,
			EstimatedDelivery: booking.EstimatedDelivery,
			UpdatedAt:         &now,
		}
		if domain.CheckOrderTransition(o.Status, domain.OrderStatusShipped) == nil {
			o.Status = domain.OrderStatusShipped
			o.ShippedAt = &now
		}
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrShipmentAlreadyExists) {
			// A concurrent booking won; release ours so the aggregator does not keep a duplicate.
			if booking.ProviderOrderID != "" {
				if cancelErr := s.aggregator.Cancel(ctx, booking.ProviderOrderID); cancelErr != nil {
					s.logger(ctx, "shipment.duplicate.cancel_failed", map[string]any{"orderId": order.ID, "error": cancelErr.Error()})
				}
			}
			return Order{}, err
		}
		if errors.Is(err, ErrShipmentOrderNotPaid) {
			return Order{}, err
		}
		s.logger(ctx, "shipment.persist.failed", map[string]any{
			"orderId":      order.ID,
			"trackingCode": booking.TrackingCode,
			"error":        err.Error(),
		})
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	s.logger(ctx, "shipment.created", map[string]any{
		"orderId":      updated.ID,
		"trackingCode": updated.Shipment.TrackingCode,
		"courier":      updated.Shipment.Courier,
		"actor":        cmd.ActorID,
	})
	if updated.Status != previous {
		s.notifier.notify(ctx, NotificationOrderShipped, updated)
		s.publishStatusChange(ctx, updated, previous, cmd.ActorID, "shipment.created")
	}
	return updated, nil
}

func shippableCheck(order Order) error {
	if order.PaymentStatus != domain.PaymentStatusCompleted {
		return ErrShipmentOrderNotPaid
	}
	if strings.TrimSpace(order.Shipment.TrackingCode) != "" {
		return ErrShipmentAlreadyExists
	}
	if order.Status == domain.OrderStatusCancelled {
		return fmt.Errorf("%w: order is cancelled", ErrShipmentInvalidInput)
	}
	return nil
}

func shipmentRequest(order Order) shipping.ShipmentRequest {
	items := make([]shipping.Item, 0, len(order.Items))
	for _, item := range order.Items {
		name := item.ProductName
		if item.Size != "" {
			name = fmt.Sprintf("%s (%s)", item.ProductName, item.Size)
		}
		items = append(items, shipping.Item{
			Name:      name,
			SKU:       item.SKU,
			Units:     item.Quantity,
			UnitPrice: item.UnitPrice,
			WeightKg:  item.WeightKg,
		})
	}
	ship := order.Shipping
	return shipping.ShipmentRequest{
		OrderNumber: order.OrderNumber,
		OrderDate:   order.CreatedAt,
		Address: shipping.Address{
			Name:       ship.FullName,
			Email:      ship.Email,
			Phone:      ship.Phone,
			Line1:      ship.AddressLine1,
			Line2:      ship.AddressLine2,
			City:       ship.City,
			State:      ship.State,
			PostalCode: ship.PostalCode,
			Country:    ship.Country,
		},
		Items:    items,
		SubTotal: order.Subtotal,
		Discount: order.CouponDiscount,
		Notes:    ship.Notes,
	}
}

// findTrackedOrder resolves a tracking code, an order number or an order id, in that order.
func (s *shipmentService) findTrackedOrder(ctx context.Context, identifier string) (domain.Order, error) {
	lookups := []func(context.Context, string) (domain.Order, error){
		s.orders.FindByTrackingCode,
		s.orders.FindByOrderNumber,
		s.orders.FindByID,
	}
	for _, lookup := range lookups {
		order, err := lookup(ctx, identifier)
		if err == nil {
			return order, nil
		}
		if !isNotFound(err) {
			return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
		}
	}
	return domain.Order{}, ErrOrderNotFound
}

func (s *shipmentService) Track(ctx context.Context, identifier string) (TrackingResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return TrackingResult{}, fmt.Errorf("%w: tracking code, order number or order id is required", ErrShipmentInvalidInput)
	}
	order, err := s.findTrackedOrder(ctx, identifier)
	if err != nil {
		return TrackingResult{}, err
	}

	result := TrackingResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Shipment:    order.Shipment,
	}
	code := order.Shipment.TrackingCode
	if code == "" {
		return result, nil
	}
	live, err := s.aggregator.Track(ctx, code)
	if err != nil {
		s.logger(ctx, "shipment.track.live_failed", map[string]any{
			"orderId":      order.ID,
			"trackingCode": code,
			"error":        err.Error(),
		})
		return result, nil
	}
	result.Live = true
	result.Activities = live.Activities
	if live.TrackingURL != "" && result.Shipment.TrackingURL == "" {
		result.Shipment.TrackingURL = live.TrackingURL
	}
	if live.EstimatedDelivery != nil {
		result.Shipment.EstimatedDelivery = live.EstimatedDelivery
	}
	return result, nil
}

func (s *shipmentService) HandleWebhook(ctx context.Context, event shipping.WebhookEvent) error {
	code := strings.TrimSpace(event.TrackingCode)
	if code == "" {
		s.logger(ctx, "shipment.webhook.ignored", map[string]any{"reason": "missing tracking code"})
		return nil
	}
	order, err := s.orders.FindByTrackingCode(ctx, code)
	if err != nil {
		if isNotFound(err) {
			s.logger(ctx, "shipment.webhook.unmatched", map[string]any{"trackingCode": code})
			return nil
		}
		return mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	target := event.Status
	if target == domain.ShipmentStatusNone {
		target = shipping.MapStatus(event.ExternalStatus)
	}

	var (
		rejected   error
		previous   domain.OrderStatus
		fromStatus domain.ShipmentStatus
		changed    bool
	)
	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		rejected = nil
		changed = false
		previous = o.Status
		fromStatus = o.Shipment.Status
		now := s.clock()
		if err := domain.CheckShipmentTransition(o.Shipment.Status, target); err != nil {
			if errors.Is(err, domain.ErrStateUnchanged) && event.EstimatedDelivery != nil {
				o.Shipment.EstimatedDelivery = event.EstimatedDelivery
				o.Shipment.UpdatedAt = &now
				o.UpdatedAt = now
				return nil
			}
			if !errors.Is(err, domain.ErrStateUnchanged) {
				rejected = err
			}
			return repositories.ErrSkipWrite
		}
		at := now
		if event.OccurredAt != nil {
			at = event.OccurredAt.UTC()
		}
		o.Shipment.Status = target
		o.Shipment.LastEvent = event.ExternalStatus
		o.Shipment.UpdatedAt = &now
		if event.Courier != "" {
			o.Shipment.Courier = event.Courier
		}
		if event.EstimatedDelivery != nil {
			o.Shipment.EstimatedDelivery = event.EstimatedDelivery
		}
		if target == domain.ShipmentStatusDelivered {
			o.Shipment.DeliveredAt = &at
			if err := domain.CheckOrderTransition(o.Status, domain.OrderStatusDelivered); err == nil {
				o.Status = domain.OrderStatusDelivered
				o.DeliveredAt = &at
			}
		}
		o.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		s.logger(ctx, "shipment.webhook.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	if rejected != nil {
		s.logger(ctx, "shipment.webhook.regression_ignored", map[string]any{
			"orderId":      order.ID,
			"trackingCode": code,
			"from":         string(fromStatus),
			"to":           string(target),
			"external":     event.ExternalStatus,
		})
		return nil
	}
	if !changed {
		return nil
	}

	s.logger(ctx, "shipment.status.updated", map[string]any{
		"orderId":      updated.ID,
		"trackingCode": code,
		"from":         string(fromStatus),
		"to":           string(updated.Shipment.Status),
	})
	if updated.Status != previous && updated.Status == domain.OrderStatusDelivered {
		s.notifier.notify(ctx, NotificationOrderDelivered, updated)
		s.publishStatusChange(ctx, updated, previous, systemActor, "shipment.webhook")
	}
	return nil
}

func (s *shipmentService) CancelShipment(ctx context.Context, cmd CancelShipmentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrShipmentInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	if order.Shipment.TrackingCode == "" && order.Shipment.ProviderOrderID == "" {
		return Order{}, ErrShipmentNotFound
	}
	if order.Shipment.Status == domain.ShipmentStatusCancelled {
		return order, nil
	}
	if err := domain.CheckShipmentTransition(order.Shipment.Status, domain.ShipmentStatusCancelled); err != nil {
		return Order{}, fmt.Errorf("%w: shipment is %s", ErrShipmentNotCancellable, order.Shipment.Status)
	}

	if order.Shipment.ProviderOrderID != "" {
		if err := s.aggregator.Cancel(ctx, order.Shipment.ProviderOrderID); err != nil {
			s.logger(ctx, "shipment.cancel.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
			return Order{}, err
		}
	}

	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		if err := domain.CheckShipmentTransition(o.Shipment.Status, domain.ShipmentStatusCancelled); err != nil {
			if errors.Is(err, domain.ErrStateUnchanged) {
				return repositories.ErrSkipWrite
			}
			return fmt.Errorf("%w: shipment is %s", ErrShipmentNotCancellable, o.Shipment.Status)
		}
		now := s.clock()
		o.Shipment.Status = domain.ShipmentStatusCancelled
		o.Shipment.LastEvent = "CANCELLED"
		o.Shipment.UpdatedAt = &now
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrShipmentNotCancellable) {
			return Order{}, err
		}
		return Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	s.logger(ctx, "shipment.cancelled", map[string]any{
		"orderId": updated.ID,
		"actor":   cmd.ActorID,
	})
	return updated, nil
}

func (s *shipmentService) publishStatusChange(ctx context.Context, order Order, previous domain.OrderStatus, actor, source string) {
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		ActorID:        actor,
		OccurredAt:     s.clock(),
		Metadata:       map[string]any{"source": source},
	})
}
