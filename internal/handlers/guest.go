package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/requestctx"
)

const (
	guestSessionHeader = "X-Guest-Session"
	guestSessionCookie = "guest_session"
	guestSessionMaxAge = 30 * 24 * time.Hour
)

// GuestSessions resolves the anonymous cart owner token. The token is server issued and opaque;
// anything that is not a UUID is ignored.
type GuestSessions struct {
	secureCookie bool
	newToken     func() string
}

// GuestSessionOption customises GuestSessions.
type GuestSessionOption func(*GuestSessions)

// WithSecureGuestCookie marks the issued cookie Secure.
func WithSecureGuestCookie(secure bool) GuestSessionOption {
	return func(g *GuestSessions) { g.secureCookie = secure }
}

// WithGuestTokenGenerator overrides token generation.
func WithGuestTokenGenerator(fn func() string) GuestSessionOption {
	return func(g *GuestSessions) {
		if fn != nil {
			g.newToken = fn
		}
	}
}

// NewGuestSessions constructs the resolver.
func NewGuestSessions(opts ...GuestSessionOption) *GuestSessions {
	g := &GuestSessions{newToken: uuid.NewString}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Resolve attaches the caller's guest token to the request context when one is presented.
func (g *GuestSessions) Resolve() func(http.Handler) http.Handler {
	return g.middleware(false)
}

// Issue behaves like Resolve but mints a token for anonymous callers without one and returns it
// in both the X-Guest-Session header and a cookie.
func (g *GuestSessions) Issue() func(http.Handler) http.Handler {
	return g.middleware(true)
}

func (g *GuestSessions) middleware(issue bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := presentedGuestToken(r)
			if token == "" && issue && !signedIn(r) {
				token = g.newToken()
				w.Header().Set(guestSessionHeader, token)
				http.SetCookie(w, &http.Cookie{
					Name:     guestSessionCookie,
					Value:    token,
					Path:     "/",
					MaxAge:   int(guestSessionMaxAge / time.Second),
					HttpOnly: true,
					Secure:   g.secureCookie,
					SameSite: http.SameSiteLaxMode,
				})
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithGuestSession(r.Context(), token)))
		})
	}
}

func signedIn(r *http.Request) bool {
	identity, ok := auth.IdentityFromContext(r.Context())
	return ok && strings.TrimSpace(identity.UID) != ""
}

func presentedGuestToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get(guestSessionHeader))
	if raw == "" {
		if cookie, err := r.Cookie(guestSessionCookie); err == nil {
			raw = strings.TrimSpace(cookie.Value)
		}
	}
	if raw == "" {
		return ""
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.String()
}
