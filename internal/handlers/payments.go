package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/payments"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/httpx"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

const (
	maxPaymentBodySize    = 4 * 1024
	maxWebhookBodySize    = 1 << 20
	razorpaySigHeader     = "X-Razorpay-Signature"
	stripeSignatureHeader = "Stripe-Signature"
)

// WebhookArchiver keeps the raw vendor payload for audit. storage.Archive implements it.
type WebhookArchiver interface {
	ArchiveWebhook(ctx context.Context, provider, eventID string, receivedAt time.Time, body []byte) (string, error)
}

// EventLogger receives structured handler events.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// PaymentHandlers exposes the checkout payment flow and the gateway webhooks.
type PaymentHandlers struct {
	authn        *auth.Authenticator
	guests       *GuestSessions
	payments     services.PaymentService
	verifier     *auth.WebhookVerifier
	stripeSecret string
	archive      WebhookArchiver
	limiter      RateLimiter
	logger       EventLogger
	clock        func() time.Time
}

// PaymentOption customises PaymentHandlers.
type PaymentOption func(*PaymentHandlers)

// WithRazorpayWebhookVerifier sets the signature check guarding POST /payments/webhook.
func WithRazorpayWebhookVerifier(v *auth.WebhookVerifier) PaymentOption {
	return func(h *PaymentHandlers) { h.verifier = v }
}

// WithStripeWebhookSecret enables POST /payments/webhook/stripe.
func WithStripeWebhookSecret(secret string) PaymentOption {
	return func(h *PaymentHandlers) { h.stripeSecret = strings.TrimSpace(secret) }
}

// WithPaymentWebhookArchive stores raw webhook bodies.
func WithPaymentWebhookArchive(archive WebhookArchiver) PaymentOption {
	return func(h *PaymentHandlers) { h.archive = archive }
}

// WithPaymentRateLimit bounds verify attempts per caller.
func WithPaymentRateLimit(limiter RateLimiter) PaymentOption {
	return func(h *PaymentHandlers) { h.limiter = limiter }
}

// WithPaymentLogger sets the event logger.
func WithPaymentLogger(logger EventLogger) PaymentOption {
	return func(h *PaymentHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewPaymentHandlers constructs the payment endpoints.
func NewPaymentHandlers(authn *auth.Authenticator, guests *GuestSessions, svc services.PaymentService, opts ...PaymentOption) *PaymentHandlers {
	if guests == nil {
		guests = NewGuestSessions()
	}
	h := &PaymentHandlers{
		authn:    authn,
		guests:   guests,
		payments: svc,
		logger:   func(context.Context, string, map[string]any) {},
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(buyer chi.Router) {
		if h.authn != nil {
			buyer.Use(h.authn.OptionalFirebaseAuth())
		}
		buyer.Use(h.guests.Resolve())
		buyer.Post("/create-order", h.createGatewayOrder)
		buyer.With(rateLimit(h.limiter, callerKey)).Post("/verify", h.verifyPayment)
	})

	verifier := h.verifier
	if verifier == nil {
		// An unconfigured secret rejects every delivery with 503.
		verifier = auth.NewWebhookVerifier(payments.ProviderRazorpay, "", razorpaySigHeader)
	}
	r.With(verifier.Middleware()).Post("/webhook", h.razorpayWebhook)
	if h.stripeSecret != "" {
		r.Post("/webhook/stripe", h.stripeWebhook)
	}
}

type createPaymentOrderRequest struct {
	OrderID string           `json:"orderId"`
	Amount  *decimal.Decimal `json:"amount"`
}

type verifyPaymentRequest struct {
	OrderID           string `json:"order_id"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

type paymentSessionPayload struct {
	OrderID        string         `json:"order_id"`
	OrderNumber    string         `json:"order_number"`
	Provider       string         `json:"provider"`
	GatewayOrderID string         `json:"razorpay_order_id"`
	KeyID          string         `json:"key,omitempty"`
	ClientSecret   string         `json:"client_secret,omitempty"`
	Amount         json.Number    `json:"amount"`
	AmountMinor    int64          `json:"amount_minor"`
	Currency       string         `json:"currency"`
	Prefill        prefillPayload `json:"prefill"`
}

type prefillPayload struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

func (h *PaymentHandlers) createGatewayOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		unavailable(w, r, "payment")
		return
	}
	var req createPaymentOrderRequest
	if !decodeJSONBody(w, r, maxPaymentBodySize, &req) {
		return
	}
	if strings.TrimSpace(req.OrderID) == "" || req.Amount == nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "orderId and amount are required", http.StatusBadRequest))
		return
	}
	session, err := h.payments.CreateGatewayOrder(ctx, services.CreatePaymentOrderCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		Amount:  *req.Amount,
		Viewer:  viewerFromRequest(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"payment": paymentSessionPayload{
		OrderID:        session.OrderID,
		OrderNumber:    session.OrderNumber,
		Provider:       session.Provider,
		GatewayOrderID: session.GatewayOrderID,
		KeyID:          session.KeyID,
		ClientSecret:   session.ClientSecret,
		Amount:         amount(session.Amount),
		AmountMinor:    session.AmountMinor,
		Currency:       session.Currency,
		Prefill: prefillPayload{
			Name:    session.Prefill.Name,
			Email:   session.Prefill.Email,
			Contact: session.Prefill.Contact,
		},
	}})
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		unavailable(w, r, "payment")
		return
	}
	var req verifyPaymentRequest
	if !decodeJSONBody(w, r, maxPaymentBodySize, &req) {
		return
	}
	result, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		OrderID:          strings.TrimSpace(req.OrderID),
		GatewayOrderID:   strings.TrimSpace(req.RazorpayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.RazorpayPaymentID),
		Signature:        strings.TrimSpace(req.RazorpaySignature),
		Viewer:           viewerFromRequest(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := map[string]any{
		"order":           buildOrderPayload(result.Order),
		"capture_pending": result.CaptureError != nil,
	}
	if result.Shipment != nil {
		payload["shipping"] = map[string]any{
			"status":             string(result.Shipment.Status),
			"courier":            result.Shipment.Courier,
			"tracking_code":      result.Shipment.TrackingCode,
			"tracking_url":       result.Shipment.TrackingURL,
			"estimated_delivery": formatTime(pointerTime(result.Shipment.EstimatedDelivery)),
		}
	} else if result.ShipmentError != nil {
		payload["shipping_pending"] = true
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// razorpayWebhook runs behind the signature verifier. Processing failures are logged and still
// acknowledged so the gateway does not redeliver in a loop.
func (h *PaymentHandlers) razorpayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meta, ok := auth.WebhookMetadataFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError(codeInvalidSignature, "webhook signature missing", http.StatusBadRequest))
		return
	}
	h.archiveBody(ctx, payments.ProviderRazorpay, meta.EventID, meta.ReceivedAt, meta.Body)

	event, err := payments.ParseRazorpayWebhook(meta.Body)
	if err != nil {
		h.logger(ctx, "payment.webhook.unparseable", map[string]any{"provider": payments.ProviderRazorpay, "error": err.Error()})
		acknowledge(w)
		return
	}
	event.ID = meta.EventID
	h.dispatchWebhook(ctx, event)
	acknowledge(w)
}

// stripeWebhook verifies the Stripe-Signature header itself since Stripe signs a timestamped
// payload rather than the bare body.
func (h *PaymentHandlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "unable to read webhook body", http.StatusBadRequest))
		return
	}
	event, err := payments.ParseStripeWebhook(body, r.Header.Get(stripeSignatureHeader), h.stripeSecret)
	if err != nil {
		h.logger(ctx, "security.webhook_rejected", map[string]any{"provider": payments.ProviderStripe, "reason": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError(codeInvalidSignature, "webhook signature invalid", http.StatusBadRequest))
		return
	}
	h.archiveBody(ctx, payments.ProviderStripe, event.ID, h.clock().UTC(), body)
	h.dispatchWebhook(ctx, event)
	acknowledge(w)
}

func (h *PaymentHandlers) dispatchWebhook(ctx context.Context, event payments.WebhookEvent) {
	if h.payments == nil {
		return
	}
	if err := h.payments.HandleWebhook(ctx, event); err != nil {
		h.logger(ctx, "payment.webhook.failed", map[string]any{
			"provider":  event.Provider,
			"eventId":   event.ID,
			"eventType": event.Type,
			"error":     err.Error(),
		})
	}
}

func (h *PaymentHandlers) archiveBody(ctx context.Context, provider, eventID string, at time.Time, body []byte) {
	if h.archive == nil || len(body) == 0 {
		return
	}
	if _, err := h.archive.ArchiveWebhook(ctx, provider, eventID, at, body); err != nil {
		h.logger(ctx, "webhook.archive_failed", map[string]any{"provider": provider, "error": err.Error()})
	}
}

func acknowledge(w http.ResponseWriter) {
	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}
