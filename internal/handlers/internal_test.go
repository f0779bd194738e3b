package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

type stubCleaner struct {
	limit int
	now   time.Time
	err   error
}

func (s *stubCleaner) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.now, s.limit = now, limit
	return 7, s.err
}

func newInternalRouter(handler *InternalHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)
	return router
}

func TestInternalHandlersReconcileDefaults(t *testing.T) {
	var captured services.ReconcileCommand
	svc := &stubPaymentService{
		reconcileFn: func(_ context.Context, cmd services.ReconcileCommand) (services.ReconcileReport, error) {
			captured = cmd
			return services.ReconcileReport{Checked: 4, Completed: 2, Failed: 1, Unchanged: 1}, nil
		},
	}
	router := newInternalRouter(NewInternalHandlers(svc, WithReconcileAfter(45*time.Minute)))

	req := httptest.NewRequest(http.MethodPost, "/internal/payments/reconcile", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OlderThan != 45*time.Minute || captured.Limit != defaultReconcileLimit {
		t.Fatalf("unexpected command %+v", captured)
	}
	body := decodeResponse(t, rr)
	if body["checked"] != 4.0 || body["completed"] != 2.0 || body["failed"] != 1.0 {
		t.Fatalf("unexpected report %v", body)
	}
}

func TestInternalHandlersReconcileOverrides(t *testing.T) {
	var captured services.ReconcileCommand
	svc := &stubPaymentService{
		reconcileFn: func(_ context.Context, cmd services.ReconcileCommand) (services.ReconcileReport, error) {
			captured = cmd
			return services.ReconcileReport{}, nil
		},
	}
	router := newInternalRouter(NewInternalHandlers(svc))

	req := httptest.NewRequest(http.MethodPost, "/internal/payments/reconcile", strings.NewReader(`{"older_than_minutes":10,"limit":10000}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.OlderThan != 10*time.Minute || captured.Limit != maxReconcileLimit {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestInternalHandlersReconcileRepositoryDown(t *testing.T) {
	svc := &stubPaymentService{
		reconcileFn: func(context.Context, services.ReconcileCommand) (services.ReconcileReport, error) {
			return services.ReconcileReport{}, services.ErrRepositoryUnavailable
		},
	}
	router := newInternalRouter(NewInternalHandlers(svc))

	req := httptest.NewRequest(http.MethodPost, "/internal/payments/reconcile", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestInternalHandlersIdempotencyCleanup(t *testing.T) {
	now := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	cleaner := &stubCleaner{}
	router := newInternalRouter(NewInternalHandlers(nil,
		WithIdempotencyCleanup(cleaner, 50),
		WithInternalClock(func() time.Time { return now }),
	))

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/idempotency-cleanup", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if cleaner.limit != 50 || !cleaner.now.Equal(now) {
		t.Fatalf("unexpected cleanup call %+v", cleaner)
	}
	if decodeResponse(t, rr)["removed"] != 7.0 {
		t.Fatalf("expected removed count in response")
	}

	cleaner.err = errors.New("firestore down")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/maintenance/idempotency-cleanup", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestInternalHandlersLogCaller(t *testing.T) {
	var fields map[string]any
	logger := func(_ context.Context, event string, f map[string]any) {
		if event == "internal.idempotency.cleaned" {
			fields = f
		}
	}
	router := newInternalRouter(NewInternalHandlers(nil,
		WithIdempotencyCleanup(&stubCleaner{}, 10),
		WithInternalLogger(logger),
	))

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/idempotency-cleanup", nil)
	req = req.WithContext(auth.WithServiceIdentity(req.Context(), &auth.ServiceIdentity{Subject: "sub-1", Email: "scheduler@example.iam.gserviceaccount.com"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if fields["caller"] != "scheduler@example.iam.gserviceaccount.com" || fields["removed"] != 7 {
		t.Fatalf("unexpected log fields %v", fields)
	}
}
