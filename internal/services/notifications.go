package services

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Notification kinds consumed by the mailer.
const (
	NotificationOrderConfirmed = "order.confirmed"
	NotificationOrderShipped   = "order.shipped"
	NotificationOrderDelivered = "order.delivered"
	NotificationOrderCancelled = "order.cancelled"
)

// Notification is a customer facing message request.
type Notification struct {
	ID          string
	Kind        string
	OrderID     string
	OrderNumber string
	UserID      string
	Email       string
	Name        string
	Data        map[string]any
	CreatedAt   time.Time
}

// NotificationPublisher hands notifications to the delivery pipeline.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, notification Notification) error
}

func orderNotification(kind string, order Order, now time.Time) Notification {
	return Notification{
		ID:          ulid.Make().String(),
		Kind:        kind,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Email:       order.Shipping.Email,
		Name:        order.Shipping.FullName,
		Data: map[string]any{
			"status":        string(order.Status),
			"paymentStatus": string(order.PaymentStatus),
			"totalAmount":   order.TotalAmount.StringFixed(2),
			"trackingCode":  order.Shipment.TrackingCode,
			"trackingUrl":   order.Shipment.TrackingURL,
			"courier":       order.Shipment.Courier,
		},
		CreatedAt: now,
	}
}

// notifier dispatches notifications through the task dispatcher so delivery never blocks a request.
type notifier struct {
	publisher  NotificationPublisher
	dispatcher *TaskDispatcher
	clock      func() time.Time
}

func (n notifier) notify(ctx context.Context, kind string, order Order) {
	if n.publisher == nil || n.dispatcher == nil {
		return
	}
	notification := orderNotification(kind, order, n.clock())
	n.dispatcher.Dispatch(ctx, "notify."+kind, func(ctx context.Context) error {
		return n.publisher.PublishNotification(ctx, notification)
	})
}
