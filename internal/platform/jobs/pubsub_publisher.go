package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

// Default topic names.
const (
	OrderEventsTopic   = "order-events"
	NotificationsTopic = "notifications"
)

// PubSubPublisher publishes order events and customer notifications to Pub/Sub topics.
type PubSubPublisher struct {
	events        *pubsub.Topic
	notifications *pubsub.Topic
	marshal       func(any) ([]byte, error)
}

var (
	_ services.OrderEventPublisher   = (*PubSubPublisher)(nil)
	_ services.NotificationPublisher = (*PubSubPublisher)(nil)
)

// NewPubSubPublisher constructs a publisher. Both topics are required.
func NewPubSubPublisher(events, notifications *pubsub.Topic) (*PubSubPublisher, error) {
	if events == nil {
		return nil, errors.New("pubsub publisher: order events topic is required")
	}
	if notifications == nil {
		return nil, errors.New("pubsub publisher: notifications topic is required")
	}
	return &PubSubPublisher{
		events:        events,
		notifications: notifications,
		marshal:       json.Marshal,
	}, nil
}

type orderEventMessage struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	PaymentStatus  string         `json:"paymentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type notificationMessage struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	OrderID     string         `json:"orderId,omitempty"`
	OrderNumber string         `json:"orderNumber,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Email       string         `json:"email,omitempty"`
	Name        string         `json:"name,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// PublishOrderEvent publishes event on the order events topic and waits for the server ack.
func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.events == nil {
		return errors.New("pubsub publisher: not initialised")
	}
	data, err := p.marshal(orderEventMessage{
		ID:             event.ID,
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		PaymentStatus:  event.PaymentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "status", event.CurrentStatus)

	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if p.events.EnableMessageOrdering {
		msg.OrderingKey = event.OrderID
	}
	if _, err := p.events.Publish(ctx, msg).Get(ctx); err != nil {
		if msg.OrderingKey != "" {
			p.events.ResumePublish(msg.OrderingKey)
		}
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PublishNotification publishes a notification request for the mailer.
func (p *PubSubPublisher) PublishNotification(ctx context.Context, notification services.Notification) error {
	if p == nil || p.notifications == nil {
		return errors.New("pubsub publisher: not initialised")
	}
	data, err := p.marshal(notificationMessage{
		ID:          notification.ID,
		Kind:        notification.Kind,
		OrderID:     notification.OrderID,
		OrderNumber: notification.OrderNumber,
		UserID:      notification.UserID,
		Email:       notification.Email,
		Name:        notification.Name,
		Data:        notification.Data,
		CreatedAt:   notification.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "notificationId", notification.ID)
	setAttr(attrs, "kind", notification.Kind)
	setAttr(attrs, "orderId", notification.OrderID)

	if _, err := p.notifications.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Stop flushes pending messages on both topics.
func (p *PubSubPublisher) Stop() {
	if p == nil {
		return
	}
	p.events.Stop()
	p.notifications.Stop()
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
