package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type recordingMetrics struct {
	mu      sync.Mutex
	records []verificationRecord
}

type verificationRecord struct {
	kind    string
	success bool
	reason  string
}

func (m *recordingMetrics) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, verificationRecord{kind: kind, success: success, reason: reason})
}

func (m *recordingMetrics) last() verificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return verificationRecord{}
	}
	return m.records[len(m.records)-1]
}

func jwksServer(t *testing.T, key *rsa.PrivateKey, requests *int) *httptest.Server {
	t.Helper()
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "key1", Algorithm: "RS256", Use: "sig"}
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if requests != nil {
			*requests++
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)
	return server
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "key1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWKSCacheFetchesOnce(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var requests int
	server := jwksServer(t, key, &requests)
	cache := NewJWKSCache(server.URL)

	for i := 0; i < 3; i++ {
		got, err := cache.Key(context.Background(), "key1")
		if err != nil {
			t.Fatalf("key: %v", err)
		}
		if _, ok := got.(*rsa.PublicKey); !ok {
			t.Fatalf("expected *rsa.PublicKey, got %T", got)
		}
	}
	if requests != 1 {
		t.Fatalf("expected one fetch, got %d", requests)
	}

	if _, err := cache.Key(context.Background(), "unknown"); err == nil {
		t.Fatalf("expected unknown kid to fail")
	}
}

func TestRequireOIDC(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	server := jwksServer(t, key, nil)
	issuer := "https://accounts.google.com"
	audience := "https://api.example.com/internal"

	cases := []struct {
		name   string
		claims jwt.MapClaims
		header string
		status int
		reason string
	}{
		{
			name:   "valid",
			claims: jwt.MapClaims{"iss": issuer, "aud": audience, "sub": "scheduler", "exp": time.Now().Add(time.Hour).Unix()},
			status: http.StatusNoContent,
			reason: "ok",
		},
		{
			name:   "wrong audience",
			claims: jwt.MapClaims{"iss": issuer, "aud": "other", "exp": time.Now().Add(time.Hour).Unix()},
			status: http.StatusUnauthorized,
			reason: "audience_mismatch",
		},
		{
			name:   "wrong issuer",
			claims: jwt.MapClaims{"iss": "https://evil.example", "aud": audience, "exp": time.Now().Add(time.Hour).Unix()},
			status: http.StatusUnauthorized,
			reason: "issuer_mismatch",
		},
		{
			name:   "expired",
			claims: jwt.MapClaims{"iss": issuer, "aud": audience, "exp": time.Now().Add(-time.Hour).Unix()},
			status: http.StatusUnauthorized,
			reason: "token_invalid",
		},
		{
			name:   "missing token",
			header: "-",
			status: http.StatusUnauthorized,
			reason: "token_missing",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &recordingMetrics{}
			validator := NewOIDCValidator(NewJWKSCache(server.URL), WithOIDCMetrics(metrics))
			handler := validator.RequireOIDC(audience, []string{issuer})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, ok := ServiceIdentityFromContext(r.Context())
				if !ok || identity.Subject != "scheduler" {
					t.Fatalf("expected service identity, got %+v", identity)
				}
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodPost, "/internal/payments/reconcile", nil)
			if tc.header != "-" {
				req.Header.Set("Authorization", "Bearer "+signToken(t, key, tc.claims))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, rr.Code, rr.Body.String())
			}
			if got := metrics.last(); got.reason != tc.reason || got.kind != "oidc" {
				t.Fatalf("unexpected metric %+v", got)
			}
		})
	}
}

func TestRequireOIDCWithoutAudience(t *testing.T) {
	validator := NewOIDCValidator(NewJWKSCache("http://127.0.0.1:0"))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/payments/reconcile", nil)
	validator.RequireOIDC("", nil)(http.NotFoundHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
