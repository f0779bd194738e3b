package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/httpx"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/shipping"
)

const shiprocketSigHeader = "X-Shiprocket-Signature"

// ShippingHandlers exposes shipment booking, public tracking and the aggregator webhook.
type ShippingHandlers struct {
	authn     *auth.Authenticator
	shipments services.ShipmentService
	verifier  *auth.WebhookVerifier
	archive   WebhookArchiver
	limiter   RateLimiter
	logger    EventLogger
}

// ShippingOption customises ShippingHandlers.
type ShippingOption func(*ShippingHandlers)

// WithShiprocketWebhookVerifier sets the signature check guarding POST /shipping/webhook.
func WithShiprocketWebhookVerifier(v *auth.WebhookVerifier) ShippingOption {
	return func(h *ShippingHandlers) { h.verifier = v }
}

// WithShippingWebhookArchive stores raw webhook bodies.
func WithShippingWebhookArchive(archive WebhookArchiver) ShippingOption {
	return func(h *ShippingHandlers) { h.archive = archive }
}

// WithTrackingRateLimit bounds public tracking lookups per caller.
func WithTrackingRateLimit(limiter RateLimiter) ShippingOption {
	return func(h *ShippingHandlers) { h.limiter = limiter }
}

// WithShippingLogger sets the event logger.
func WithShippingLogger(logger EventLogger) ShippingOption {
	return func(h *ShippingHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewShippingHandlers constructs the shipping endpoints.
func NewShippingHandlers(authn *auth.Authenticator, shipments services.ShipmentService, opts ...ShippingOption) *ShippingHandlers {
	h := &ShippingHandlers{
		authn:     authn,
		shipments: shipments,
		logger:    func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /shipping endpoints.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
		}
		admin.Post("/create-shipment", h.createShipment)
	})
	r.With(rateLimit(h.limiter, callerKey)).Get("/track/{identifier}", h.track)

	verifier := h.verifier
	if verifier == nil {
		verifier = auth.NewWebhookVerifier(shipping.ProviderShiprocket, "", shiprocketSigHeader)
	}
	r.With(verifier.Middleware()).Post("/webhook", h.webhook)
}

type createShipmentRequest struct {
	OrderID string `json:"order_id"`
}

func (h *ShippingHandlers) createShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		unavailable(w, r, "shipment")
		return
	}
	var req createShipmentRequest
	if !decodeJSONBody(w, r, maxOrderCancelBodySize, &req) {
		return
	}
	order, err := h.shipments.CreateShipment(ctx, services.CreateShipmentCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		ActorID: viewerFromRequest(r).UserID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"order":    buildOrderSummary(order),
		"shipment": buildShipmentPayload(order.Shipment),
	})
}

func (h *ShippingHandlers) track(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		unavailable(w, r, "shipment")
		return
	}
	identifier := strings.TrimSpace(chi.URLParam(r, "identifier"))
	if identifier == "" {
		httpx.WriteError(ctx, w, httpx.NewError(codeValidation, "tracking code, order number or order id is required", http.StatusBadRequest))
		return
	}
	result, err := h.shipments.Track(ctx, identifier)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order_id":     result.OrderID,
		"order_number": result.OrderNumber,
		"shipment":     buildShipmentPayload(result.Shipment),
		"activities":   buildActivities(result.Activities),
		"live":         result.Live,
	})
}

// webhook runs behind the signature verifier and always acknowledges once the signature passed.
func (h *ShippingHandlers) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meta, ok := auth.WebhookMetadataFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError(codeInvalidSignature, "webhook signature missing", http.StatusBadRequest))
		return
	}
	if h.archive != nil {
		if _, err := h.archive.ArchiveWebhook(ctx, shipping.ProviderShiprocket, meta.EventID, meta.ReceivedAt, meta.Body); err != nil {
			h.logger(ctx, "webhook.archive_failed", map[string]any{"provider": shipping.ProviderShiprocket, "error": err.Error()})
		}
	}

	event, err := shipping.ParseWebhook(meta.Body)
	if err != nil {
		h.logger(ctx, "shipment.webhook.unparseable", map[string]any{"error": err.Error()})
		acknowledge(w)
		return
	}
	if h.shipments != nil {
		if err := h.shipments.HandleWebhook(ctx, event); err != nil {
			h.logger(ctx, "shipment.webhook.failed", map[string]any{
				"trackingCode": event.TrackingCode,
				"status":       event.ExternalStatus,
				"error":        err.Error(),
			})
		}
	}
	acknowledge(w)
}
