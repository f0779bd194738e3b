package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
)

func newCartRouter(handler *CartHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)
	return router
}

func sampleCart(owner string) services.Cart {
	return services.Cart{
		ID:      owner,
		OwnerID: owner,
		Items: []services.CartItem{{
			ID:          "item-1",
			ProductID:   "prod-1",
			ProductName: "Gold Cup",
			Size:        "12 inch",
			Price:       domain.MoneyFromFloat(899),
			Quantity:    2,
			Subtotal:    domain.MoneyFromFloat(1798),
		}},
		TotalItems:  2,
		TotalAmount: domain.MoneyFromFloat(1798),
	}
}

func TestCartHandlersGetCartIssuesGuestSession(t *testing.T) {
	var owner services.Viewer
	svc := &stubCartService{
		getFn: func(_ context.Context, viewer services.Viewer) (services.Cart, error) {
			owner = viewer
			return services.Cart{}, nil
		},
	}
	guests := NewGuestSessions(WithGuestTokenGenerator(func() string { return testGuestToken }))
	router := newCartRouter(NewCartHandlers(nil, guests, svc))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if owner.GuestSession != testGuestToken {
		t.Fatalf("expected issued guest token on viewer, got %+v", owner)
	}
	if got := rr.Header().Get(guestSessionHeader); got != testGuestToken {
		t.Fatalf("expected guest header, got %q", got)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store cache header")
	}
	var cookieSet bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == guestSessionCookie && c.Value == testGuestToken && c.HttpOnly {
			cookieSet = true
		}
	}
	if !cookieSet {
		t.Fatalf("expected guest cookie to be set")
	}
}

func TestCartHandlersGetCartSignedInIgnoresGuest(t *testing.T) {
	var owner services.Viewer
	svc := &stubCartService{
		getFn: func(_ context.Context, viewer services.Viewer) (services.Cart, error) {
			owner = viewer
			return sampleCart(viewer.UserID), nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, nil, svc))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(guestSessionHeader, testGuestToken)
	req = withIdentity(req, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if owner.UserID != "user-1" || owner.GuestSession != "" {
		t.Fatalf("expected user-only owner, got %+v", owner)
	}
	cart, _ := decodeResponse(t, rr)["cart"].(map[string]any)
	if cart["total_amount"] != 1798.0 {
		t.Fatalf("expected total 1798, got %v", cart["total_amount"])
	}
	items, _ := cart["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one item, got %v", cart["items"])
	}
}

func TestCartHandlersAddItemDefaultsQuantity(t *testing.T) {
	var captured services.AddCartItemCommand
	svc := &stubCartService{
		addFn: func(_ context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			captured = cmd
			return sampleCart("user-1"), nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, nil, svc))

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":" prod-1 ","size":"12 inch"}`))
	req = withIdentity(req, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ProductID != "prod-1" || captured.Size != "12 inch" || captured.Quantity != 1 {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestCartHandlersAddItemInvalidJSON(t *testing.T) {
	router := newCartRouter(NewCartHandlers(nil, nil, &stubCartService{}))

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{`))
	req = withIdentity(req, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemCartFull(t *testing.T) {
	svc := &stubCartService{
		addFn: func(context.Context, services.AddCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartFull
		},
	}
	router := newCartRouter(NewCartHandlers(nil, nil, svc))

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":"prod-1","size":"S","quantity":3}`))
	req = withIdentity(req, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != codeCartFull {
		t.Fatalf("expected %s, got %s", codeCartFull, code)
	}
}

func TestCartHandlersUpdateItem(t *testing.T) {
	var captured services.UpdateCartItemCommand
	svc := &stubCartService{
		updateFn: func(_ context.Context, cmd services.UpdateCartItemCommand) (services.Cart, error) {
			captured = cmd
			return sampleCart("user-1"), nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, nil, svc))

	req := httptest.NewRequest(http.MethodPatch, "/cart/items/item-1", strings.NewReader(`{"quantity":0}`))
	req = withIdentity(req, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ItemID != "item-1" || captured.Quantity != 0 {
		t.Fatalf("unexpected command %+v", captured)
	}

	missing := httptest.NewRequest(http.MethodPatch, "/cart/items/item-1", strings.NewReader(`{}`))
	missing = withIdentity(missing, "user-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, missing)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without quantity, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveItemNotFound(t *testing.T) {
	svc := &stubCartService{
		removeFn: func(context.Context, services.Viewer, string) (services.Cart, error) {
			return services.Cart{}, services.ErrCartItemNotFound
		},
	}
	router := newCartRouter(NewCartHandlers(nil, nil, svc))

	req := httptest.NewRequest(http.MethodDelete, "/cart/items/missing", nil)
	req = withIdentity(req, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != codeCartItemNotFound {
		t.Fatalf("expected %s, got %s", codeCartItemNotFound, code)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	var cleared bool
	svc := &stubCartService{
		clearFn: func(_ context.Context, viewer services.Viewer) error {
			cleared = viewer.UserID == "user-1"
			return nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, nil, svc))

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	req = withIdentity(req, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || !cleared {
		t.Fatalf("expected cart cleared, got %d (cleared=%v)", rr.Code, cleared)
	}
}

func TestCartHandlersMergeGuestCart(t *testing.T) {
	var gotUser, gotGuest string
	svc := &stubCartService{
		mergeFn: func(_ context.Context, userID, guest string) (services.Cart, error) {
			gotUser, gotGuest = userID, guest
			return sampleCart(userID), nil
		},
	}
	router := newCartRouter(NewCartHandlers(nil, nil, svc))

	req := httptest.NewRequest(http.MethodPost, "/cart/merge", nil)
	req.Header.Set(guestSessionHeader, testGuestToken)
	req = withIdentity(req, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotUser != "user-1" || gotGuest != testGuestToken {
		t.Fatalf("unexpected merge arguments %q %q", gotUser, gotGuest)
	}
	var expired bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == guestSessionCookie && c.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Fatalf("expected guest cookie to be cleared")
	}
}

func TestCartHandlersMergeRequiresUser(t *testing.T) {
	router := newCartRouter(NewCartHandlers(nil, nil, &stubCartService{}))

	req := httptest.NewRequest(http.MethodPost, "/cart/merge", nil)
	req.Header.Set(guestSessionHeader, testGuestToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCartHandlersServiceUnavailable(t *testing.T) {
	router := newCartRouter(NewCartHandlers(nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = withIdentity(req, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
