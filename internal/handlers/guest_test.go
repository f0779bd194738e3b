package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/requestctx"
)

func captureGuest(mw func(http.Handler) http.Handler, req *http.Request) (string, *httptest.ResponseRecorder) {
	var seen string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.GuestSession(r.Context())
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return seen, rr
}

func TestGuestSessionsResolve(t *testing.T) {
	guests := NewGuestSessions()

	cases := map[string]struct {
		header string
		cookie string
		want   string
	}{
		"header":        {header: testGuestToken, want: testGuestToken},
		"cookie":        {cookie: testGuestToken, want: testGuestToken},
		"uppercase":     {header: "6F1C9A8E-2B4D-4C3A-9E7F-0A1B2C3D4E5F", want: testGuestToken},
		"not a uuid":    {header: "guest-123", want: ""},
		"missing token": {want: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(guestSessionHeader, tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: guestSessionCookie, Value: tc.cookie})
			}
			got, rr := captureGuest(guests.Resolve(), req)
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
			if rr.Header().Get(guestSessionHeader) != "" {
				t.Fatalf("resolve must never issue tokens")
			}
		})
	}
}

func TestGuestSessionsIssue(t *testing.T) {
	guests := NewGuestSessions(
		WithGuestTokenGenerator(func() string { return testGuestToken }),
		WithSecureGuestCookie(true),
	)

	got, rr := captureGuest(guests.Issue(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != testGuestToken {
		t.Fatalf("expected issued token in context, got %q", got)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || !cookies[0].Secure || cookies[0].SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookies %+v", cookies)
	}

	signedIn := withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), "user-1")
	got, rr = captureGuest(guests.Issue(), signedIn)
	if got != "" || len(rr.Result().Cookies()) != 0 {
		t.Fatalf("signed-in callers must not receive a guest token")
	}

	existing := httptest.NewRequest(http.MethodGet, "/", nil)
	existing.Header.Set(guestSessionHeader, "0d9e8f7a-6b5c-4d3e-8f1a-2b3c4d5e6f70")
	got, rr = captureGuest(guests.Issue(), existing)
	if got != "0d9e8f7a-6b5c-4d3e-8f1a-2b3c4d5e6f70" || rr.Header().Get(guestSessionHeader) != "" {
		t.Fatalf("existing token must be reused, got %q", got)
	}
}
