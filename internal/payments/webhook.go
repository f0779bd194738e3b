package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Webhook event types understood by the reconciliation service. Stripe events are
// translated onto the same names.
const (
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentCaptured   = "payment.captured"
	EventOrderPaid         = "order.paid"
	EventPaymentFailed     = "payment.failed"
	EventDisputeCreated    = "payment.dispute.created"
	EventRefundProcessed   = "refund.processed"
)

// ErrInvalidWebhook is returned when a webhook body cannot be interpreted.
var ErrInvalidWebhook = errors.New("payments: invalid webhook payload")

// WebhookEvent is a normalised gateway notification.
type WebhookEvent struct {
	ID                 string
	Provider           string
	Type               string
	GatewayOrderID     string
	GatewayPaymentID   string
	AmountMinor        int64
	Method             string
	ErrorCode          string
	ErrorDescription   string
	// RefundID and RefundStatus are set on refund events. When RefundID is empty,
	// RefundedTotalMinor carries the cumulative amount refunded on the payment.
	RefundID           string
	RefundStatus       string
	RefundedTotalMinor int64
	OccurredAt         time.Time
}

type razorpayWebhook struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity razorpayPayment `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity razorpayOrder `json:"entity"`
		} `json:"order"`
		Refund *struct {
			Entity razorpayRefund `json:"entity"`
		} `json:"refund"`
		Dispute *struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Amount    int64  `json:"amount"`
			} `json:"entity"`
		} `json:"dispute"`
	} `json:"payload"`
}

// ParseRazorpayWebhook decodes a Razorpay webhook body. The signature must already have
// been verified against the raw body.
func ParseRazorpayWebhook(body []byte) (WebhookEvent, error) {
	var payload razorpayWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	eventType := strings.TrimSpace(payload.Event)
	if eventType == "" {
		return WebhookEvent{}, fmt.Errorf("%w: event type is required", ErrInvalidWebhook)
	}
	event := WebhookEvent{
		Provider:   ProviderRazorpay,
		Type:       eventType,
		OccurredAt: unixUTC(payload.CreatedAt),
	}
	if p := payload.Payload.Payment; p != nil {
		event.GatewayPaymentID = p.Entity.ID
		event.GatewayOrderID = p.Entity.OrderID
		event.AmountMinor = p.Entity.Amount
		event.Method = p.Entity.Method
		event.ErrorCode = p.Entity.ErrorCode
		event.ErrorDescription = p.Entity.ErrorDescription
	}
	if o := payload.Payload.Order; o != nil {
		if event.GatewayOrderID == "" {
			event.GatewayOrderID = o.Entity.ID
		}
		if event.AmountMinor == 0 {
			event.AmountMinor = o.Entity.Amount
		}
	}
	if r := payload.Payload.Refund; r != nil {
		event.RefundID = r.Entity.ID
		event.RefundStatus = r.Entity.Status
		event.AmountMinor = r.Entity.Amount
		if event.GatewayPaymentID == "" {
			event.GatewayPaymentID = r.Entity.PaymentID
		}
	}
	if d := payload.Payload.Dispute; d != nil && event.GatewayPaymentID == "" {
		event.GatewayPaymentID = d.Entity.PaymentID
		event.AmountMinor = d.Entity.Amount
	}
	return event, nil
}

// ParseStripeWebhook verifies the Stripe-Signature header and maps the event onto the
// Razorpay-style event names. Unrelated events are returned with their Stripe type.
func ParseStripeWebhook(body []byte, signatureHeader, secret string) (WebhookEvent, error) {
	evt, err := webhook.ConstructEventWithOptions(body, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	event := WebhookEvent{
		ID:         evt.ID,
		Provider:   ProviderStripe,
		Type:       string(evt.Type),
		OccurredAt: unixUTC(evt.Created),
	}
	if evt.Data == nil {
		return event, nil
	}

	switch evt.Type {
	case "payment_intent.amount_capturable_updated", "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		payment := stripePayment(&intent)
		event.GatewayOrderID = intent.ID
		event.GatewayPaymentID = intent.ID
		event.AmountMinor = intent.Amount
		event.Method = payment.Method
		event.ErrorCode = payment.ErrorCode
		event.ErrorDescription = payment.ErrorDescription
		switch evt.Type {
		case "payment_intent.amount_capturable_updated":
			event.Type = EventPaymentAuthorized
		case "payment_intent.succeeded":
			event.Type = EventPaymentCaptured
		default:
			event.Type = EventPaymentFailed
		}
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &charge); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		event.Type = EventRefundProcessed
		event.RefundedTotalMinor = charge.AmountRefunded
		if charge.PaymentIntent != nil {
			event.GatewayPaymentID = charge.PaymentIntent.ID
			event.GatewayOrderID = charge.PaymentIntent.ID
		}
		// Stripe lists refunds newest first and only includes them on older API versions.
		if charge.Refunds != nil && len(charge.Refunds.Data) > 0 && charge.Refunds.Data[0] != nil {
			latest := charge.Refunds.Data[0]
			event.RefundID = latest.ID
			event.RefundStatus = string(latest.Status)
			event.AmountMinor = latest.Amount
		}
	case "charge.dispute.created":
		var dispute stripe.Dispute
		if err := json.Unmarshal(evt.Data.Raw, &dispute); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		event.Type = EventDisputeCreated
		event.AmountMinor = dispute.Amount
		if dispute.PaymentIntent != nil {
			event.GatewayPaymentID = dispute.PaymentIntent.ID
			event.GatewayOrderID = dispute.PaymentIntent.ID
		}
	}
	return event, nil
}
