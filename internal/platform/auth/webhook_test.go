package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testWebhookSecret = "whsec_test"

func signedWebhookRequest(body, eventID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("X-Razorpay-Signature", ComputeSignature([]byte(testWebhookSecret), []byte(body)))
	if eventID != "" {
		req.Header.Set("X-Razorpay-Event-Id", eventID)
	}
	return req
}

func TestWebhookVerifierAcceptsValidSignature(t *testing.T) {
	metrics := &recordingMetrics{}
	verifier := NewWebhookVerifier("razorpay", testWebhookSecret, "X-Razorpay-Signature", WithWebhookMetrics(metrics))

	body := `{"event":"payment.captured"}`
	handler := verifier.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, ok := WebhookMetadataFromContext(r.Context())
		if !ok || meta.Provider != "razorpay" || string(meta.Body) != body {
			t.Fatalf("unexpected metadata %+v", meta)
		}
		got, _ := io.ReadAll(r.Body)
		if string(got) != body {
			t.Fatalf("body not restored: %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedWebhookRequest(body, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := metrics.last(); !got.success || got.kind != "webhook_razorpay" {
		t.Fatalf("unexpected metric %+v", got)
	}
}

func TestWebhookVerifierRejectsBadSignature(t *testing.T) {
	var events []string
	verifier := NewWebhookVerifier("razorpay", testWebhookSecret, "X-Razorpay-Signature",
		WithWebhookLogger(func(_ context.Context, event string, _ map[string]any) { events = append(events, event) }),
	)
	handler := verifier.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run")
	}))

	req := signedWebhookRequest(`{"event":"payment.captured"}`, "")
	req.Header.Set("X-Razorpay-Signature", ComputeSignature([]byte("other"), []byte("x")))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "INVALID_SIGNATURE" {
		t.Fatalf("expected INVALID_SIGNATURE, got %s", code)
	}
	if len(events) != 1 || events[0] != "security.webhook_rejected" {
		t.Fatalf("expected security event, got %v", events)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader("{}"))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing signature: expected 400, got %d", rr.Code)
	}
}

func TestWebhookVerifierWithoutSecret(t *testing.T) {
	verifier := NewWebhookVerifier("shiprocket", "", "X-Shiprocket-Signature")
	rr := httptest.NewRecorder()
	verifier.Middleware()(http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestWebhookVerifierDeduplicatesEvents(t *testing.T) {
	store := NewInMemoryEventStore()
	verifier := NewWebhookVerifier("razorpay", testWebhookSecret, "X-Razorpay-Signature",
		WithEventDeduplication("X-Razorpay-Event-Id", store),
	)

	calls := 0
	status := http.StatusOK
	handler := verifier.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	body := `{"event":"payment.captured"}`
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, signedWebhookRequest(body, "evt_1"))
		if rr.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rr.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("expected duplicate to be skipped, handler ran %d times", calls)
	}

	status = http.StatusInternalServerError
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedWebhookRequest(body, "evt_2"))
	status = http.StatusOK
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, signedWebhookRequest(body, "evt_2"))
	if calls != 3 {
		t.Fatalf("failed delivery should be retried, handler ran %d times", calls)
	}
}

func TestInMemoryEventStoreExpiry(t *testing.T) {
	store := NewInMemoryEventStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ok, err := store.UseEvent(context.Background(), "razorpay", "evt", now.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("first use: ok=%v err=%v", ok, err)
	}
	if ok, _ := store.UseEvent(context.Background(), "razorpay", "evt", now.Add(time.Minute)); ok {
		t.Fatalf("expected duplicate")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := store.UseEvent(context.Background(), "razorpay", "evt", now.Add(time.Minute)); !ok {
		t.Fatalf("expected expired event to be reusable")
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte("order_1|pay_1")
	sig := ComputeSignature([]byte("k"), payload)
	if !VerifySignature([]byte("k"), payload, strings.ToUpper(sig)) {
		t.Fatalf("expected case-insensitive hex match")
	}
	if VerifySignature([]byte("k"), payload, "zz") {
		t.Fatalf("non-hex signature must fail")
	}
}
