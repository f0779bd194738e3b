package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

const (
	defaultReconcileLimit   = 50
	maxReconcileLimit       = 500
	defaultCleanupBatchSize = 200
)

// ExpiredRecordCleaner purges expired idempotency reservations. idempotency.Store implements it.
type ExpiredRecordCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// InternalHandlers serves Cloud Scheduler and Cloud Tasks callbacks. The router mounts them behind
// OIDC verification.
type InternalHandlers struct {
	payments       services.PaymentService
	cleaner        ExpiredRecordCleaner
	reconcileAfter time.Duration
	cleanupBatch   int
	clock          func() time.Time
	logger         EventLogger
}

// InternalOption customises InternalHandlers.
type InternalOption func(*InternalHandlers)

// WithReconcileAfter sets the default minimum age of pending payments picked up by a sweep.
func WithReconcileAfter(d time.Duration) InternalOption {
	return func(h *InternalHandlers) {
		if d > 0 {
			h.reconcileAfter = d
		}
	}
}

// WithIdempotencyCleanup enables POST /internal/maintenance/idempotency-cleanup.
func WithIdempotencyCleanup(cleaner ExpiredRecordCleaner, batch int) InternalOption {
	return func(h *InternalHandlers) {
		h.cleaner = cleaner
		if batch > 0 {
			h.cleanupBatch = batch
		}
	}
}

// WithInternalClock overrides the clock.
func WithInternalClock(clock func() time.Time) InternalOption {
	return func(h *InternalHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithInternalLogger records which service triggered each job.
func WithInternalLogger(logger EventLogger) InternalOption {
	return func(h *InternalHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewInternalHandlers constructs the internal job endpoints.
func NewInternalHandlers(payments services.PaymentService, opts ...InternalOption) *InternalHandlers {
	h := &InternalHandlers{
		payments:       payments,
		reconcileAfter: 30 * time.Minute,
		cleanupBatch:   defaultCleanupBatchSize,
		clock:          time.Now,
		logger:         func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/reconcile", h.reconcilePayments)
	if h.cleaner != nil {
		r.Post("/maintenance/idempotency-cleanup", h.cleanupIdempotency)
	}
}

type reconcileRequest struct {
	OlderThanMinutes int `json:"older_than_minutes"`
	Limit            int `json:"limit"`
}

func (h *InternalHandlers) reconcilePayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		unavailable(w, r, "payment")
		return
	}
	var req reconcileRequest
	if r.ContentLength != 0 && !decodeJSONBody(w, r, defaultBodyLimit, &req) {
		return
	}
	cmd := services.ReconcileCommand{OlderThan: h.reconcileAfter, Limit: defaultReconcileLimit}
	if req.OlderThanMinutes > 0 {
		cmd.OlderThan = time.Duration(req.OlderThanMinutes) * time.Minute
	}
	if req.Limit > 0 {
		cmd.Limit = min(req.Limit, maxReconcileLimit)
	}

	report, err := h.payments.ReconcilePending(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.logger(ctx, "internal.payments.reconciled", withCaller(ctx, map[string]any{
		"checked":   report.Checked,
		"completed": report.Completed,
		"failed":    report.Failed,
	}))
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"checked":   report.Checked,
		"completed": report.Completed,
		"failed":    report.Failed,
		"unchanged": report.Unchanged,
		"errors":    report.Errors,
	})
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed, err := h.cleaner.CleanupExpired(ctx, h.clock().UTC(), h.cleanupBatch)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.logger(ctx, "internal.idempotency.cleaned", withCaller(ctx, map[string]any{"removed": removed}))
	writeJSONResponse(w, http.StatusOK, map[string]any{"removed": removed})
}

func withCaller(ctx context.Context, fields map[string]any) map[string]any {
	if caller, ok := auth.ServiceIdentityFromContext(ctx); ok {
		fields["caller"] = caller.Email
		if caller.Email == "" {
			fields["caller"] = caller.Subject
		}
	}
	return fields
}
