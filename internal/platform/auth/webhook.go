package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/httpx"
)

const (
	defaultWebhookEventTTL = 72 * time.Hour
	defaultWebhookMaxBody  = 1 << 20
)

// EventStore remembers vendor event ids so redelivered webhooks are acknowledged without
// being processed twice.
type EventStore interface {
	// UseEvent records id within scope. It returns false when the id was already recorded.
	UseEvent(ctx context.Context, scope, id string, expiry time.Time) (bool, error)
	// ReleaseEvent forgets id so the vendor's retry is processed.
	ReleaseEvent(ctx context.Context, scope, id string) error
}

// InMemoryEventStore is an EventStore for tests and single-instance deployments.
type InMemoryEventStore struct {
	mu     sync.Mutex
	events map[string]time.Time
	now    func() time.Time
}

// NewInMemoryEventStore returns an empty store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[string]time.Time), now: time.Now}
}

// UseEvent implements EventStore.
func (s *InMemoryEventStore) UseEvent(_ context.Context, scope, id string, expiry time.Time) (bool, error) {
	if scope == "" || id == "" {
		return false, errors.New("auth: scope and event id are required")
	}
	key := scope + "::" + id

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.events {
		if !exp.After(now) {
			delete(s.events, k)
		}
	}
	if _, seen := s.events[key]; seen {
		return false, nil
	}
	s.events[key] = expiry
	return true, nil
}

// ReleaseEvent implements EventStore.
func (s *InMemoryEventStore) ReleaseEvent(_ context.Context, scope, id string) error {
	s.mu.Lock()
	delete(s.events, scope+"::"+id)
	s.mu.Unlock()
	return nil
}

// WebhookMetadata describes a verified vendor callback.
type WebhookMetadata struct {
	Provider   string
	EventID    string
	Signature  string
	Body       []byte
	ReceivedAt time.Time
}

type webhookKey struct{}

// WebhookMetadataFromContext returns the metadata attached by WebhookVerifier.
func WebhookMetadataFromContext(ctx context.Context) (*WebhookMetadata, bool) {
	meta, ok := ctx.Value(webhookKey{}).(*WebhookMetadata)
	return meta, ok && meta != nil
}

// WebhookVerifier checks the vendor's HMAC-SHA256 signature over the raw request body.
type WebhookVerifier struct {
	provider        string
	secret          []byte
	signatureHeader string
	eventHeader     string
	events          EventStore
	eventTTL        time.Duration
	maxBody         int64
	logger          func(ctx context.Context, event string, fields map[string]any)
	metrics         MetricsRecorder
	now             func() time.Time
}

// WebhookOption customises WebhookVerifier.
type WebhookOption func(*WebhookVerifier)

// WithEventDeduplication drops redeliveries carrying an event id already seen in header.
func WithEventDeduplication(header string, store EventStore) WebhookOption {
	return func(v *WebhookVerifier) {
		v.eventHeader = strings.TrimSpace(header)
		v.events = store
	}
}

// WithWebhookLogger sets the security event logger.
func WithWebhookLogger(logger func(ctx context.Context, event string, fields map[string]any)) WebhookOption {
	return func(v *WebhookVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithWebhookMetrics records verification outcomes.
func WithWebhookMetrics(metrics MetricsRecorder) WebhookOption {
	return func(v *WebhookVerifier) { v.metrics = metrics }
}

// WithWebhookClock overrides the clock.
func WithWebhookClock(now func() time.Time) WebhookOption {
	return func(v *WebhookVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewWebhookVerifier builds a verifier for provider ("razorpay", "shiprocket") that reads the
// hex signature from signatureHeader.
func NewWebhookVerifier(provider, secret, signatureHeader string, opts ...WebhookOption) *WebhookVerifier {
	v := &WebhookVerifier{
		provider:        provider,
		secret:          []byte(strings.TrimSpace(secret)),
		signatureHeader: signatureHeader,
		eventTTL:        defaultWebhookEventTTL,
		maxBody:         defaultWebhookMaxBody,
		logger:          func(context.Context, string, map[string]any) {},
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Middleware rejects unsigned or mis-signed callbacks with 400 INVALID_SIGNATURE before any
// state is touched.
func (v *WebhookVerifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()

			if len(v.secret) == 0 {
				v.reject(ctx, w, r, start, "secret_not_configured", http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "webhook verification unavailable")
				return
			}
			signature := strings.TrimSpace(r.Header.Get(v.signatureHeader))
			if signature == "" {
				v.reject(ctx, w, r, start, "signature_missing", http.StatusBadRequest, "INVALID_SIGNATURE", "webhook signature missing")
				return
			}
			body, err := readAndRestoreBody(r, v.maxBody)
			if err != nil {
				v.reject(ctx, w, r, start, "body_unreadable", http.StatusBadRequest, "VALIDATION_ERROR", "unable to read webhook body")
				return
			}
			if !VerifySignature(v.secret, body, signature) {
				v.reject(ctx, w, r, start, "signature_mismatch", http.StatusBadRequest, "INVALID_SIGNATURE", "webhook signature invalid")
				return
			}

			meta := &WebhookMetadata{
				Provider:   v.provider,
				Signature:  signature,
				Body:       body,
				ReceivedAt: start.UTC(),
			}
			if v.eventHeader != "" {
				meta.EventID = strings.TrimSpace(r.Header.Get(v.eventHeader))
			}

			if meta.EventID != "" && v.events != nil {
				fresh, err := v.events.UseEvent(ctx, v.provider, meta.EventID, start.Add(v.eventTTL))
				if err != nil {
					v.logger(ctx, "security.webhook_event_store_error", map[string]any{"provider": v.provider, "error": err})
				} else if !fresh {
					v.record(ctx, true, "duplicate", start)
					v.logger(ctx, "webhook.duplicate_ignored", map[string]any{"provider": v.provider, "eventId": meta.EventID})
					httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"duplicate": true}})
					return
				}
			}

			v.record(ctx, true, "ok", start)
			rec := &statusCapture{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(context.WithValue(ctx, webhookKey{}, meta)))

			if rec.status >= http.StatusInternalServerError && meta.EventID != "" && v.events != nil {
				if err := v.events.ReleaseEvent(context.WithoutCancel(ctx), v.provider, meta.EventID); err != nil {
					v.logger(ctx, "security.webhook_event_release_failed", map[string]any{"provider": v.provider, "error": err})
				}
			}
		})
	}
}

func (v *WebhookVerifier) reject(ctx context.Context, w http.ResponseWriter, r *http.Request, start time.Time, reason string, status int, code, message string) {
	v.record(ctx, false, reason, start)
	v.logger(ctx, "security.webhook_rejected", map[string]any{
		"provider": v.provider,
		"reason":   reason,
		"path":     r.URL.Path,
	})
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func (v *WebhookVerifier) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, "webhook_"+v.provider, success, reason, v.now().Sub(start))
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of payload.
func ComputeSignature(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature against the expected HMAC in constant time.
func VerifySignature(secret, payload []byte, signature string) bool {
	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(ComputeSignature(secret, payload))
	return hmac.Equal(got, want)
}

func readAndRestoreBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	buf, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) > limit {
		return nil, errors.New("auth: webhook body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (s *statusCapture) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
