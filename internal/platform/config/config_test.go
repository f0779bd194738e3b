package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID": "trophy-store",
		"API_RAZORPAY_KEY_ID":     "rzp_test_123",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != defaultPort {
		t.Fatalf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "trophy-store" {
		t.Fatalf("expected firestore project to fall back to firebase, got %q", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "trophy-store" {
		t.Fatalf("expected pubsub project fallback, got %q", cfg.PubSub.ProjectID)
	}
	if cfg.Payments.Provider != "razorpay" || cfg.Payments.Currency != "INR" {
		t.Fatalf("unexpected payment defaults: %+v", cfg.Payments)
	}
	if !cfg.Orders.DecrementStockOnOrder {
		t.Fatalf("expected stock decrement enabled by default")
	}
	if cfg.Orders.NumberPrefix != "TA" {
		t.Fatalf("expected order prefix TA, got %q", cfg.Orders.NumberPrefix)
	}
	if cfg.Redis.GuestCartTTL != defaultGuestCartTTL {
		t.Fatalf("unexpected guest cart ttl %s", cfg.Redis.GuestCartTTL)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultSecurityIssuer {
		t.Fatalf("unexpected issuers %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Fatalf("unexpected idempotency header %q", cfg.Idempotency.Header)
	}
	if cfg.Server.BasePath != defaultBasePath {
		t.Fatalf("unexpected base path %q", cfg.Server.BasePath)
	}
	if cfg.Firestore.TxAttempts != 0 || cfg.Firestore.TxTimeout != 0 {
		t.Fatalf("expected zero transaction overrides, got %+v", cfg.Firestore)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_SERVER_READ_TIMEOUT"] = "5s"
	env["API_SERVER_BASE_PATH"] = "/store/v2"
	env["API_FIRESTORE_TX_ATTEMPTS"] = "3"
	env["API_FIRESTORE_TX_TIMEOUT"] = "8s"
	env["API_RAZORPAY_KEY_SECRET"] = "secret://payments/razorpay-key"
	env["API_SHIPROCKET_PASSWORD"] = "sm://shipping/password"
	env["API_ORDER_DECREMENT_STOCK"] = "false"
	env["API_SECURITY_OIDC_ISSUERS"] = "https://a.example, https://b.example"
	env["API_SHIPROCKET_DEFAULT_WEIGHT_KG"] = "1.25"

	secrets := map[string]string{
		"secret://payments/razorpay-key": "rzp-secret",
		"secret://shipping/password":     "ship-pass",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		v, ok := secrets[ref]
		if !ok {
			return "", errors.New("not found")
		}
		return v, nil
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("Payments.RazorpayKeySecret"),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Server.BasePath != "/store/v2" {
		t.Fatalf("unexpected base path %q", cfg.Server.BasePath)
	}
	if cfg.Firestore.TxAttempts != 3 || cfg.Firestore.TxTimeout != 8*time.Second {
		t.Fatalf("unexpected transaction overrides %+v", cfg.Firestore)
	}
	if cfg.Payments.RazorpayKeySecret != "rzp-secret" {
		t.Fatalf("secret not resolved: %q", cfg.Payments.RazorpayKeySecret)
	}
	if cfg.Shipping.Password != "ship-pass" {
		t.Fatalf("sm:// secret not resolved: %q", cfg.Shipping.Password)
	}
	if cfg.Orders.DecrementStockOnOrder {
		t.Fatalf("expected stock decrement disabled")
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Fatalf("expected two issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Shipping.DefaultWeightKg != 1.25 {
		t.Fatalf("unexpected weight %v", cfg.Shipping.DefaultWeightKg)
	}
}

func TestLoadValidationError(t *testing.T) {
	env := map[string]string{"API_PAYMENT_PROVIDER": "paypal"}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields() {
		fields[f] = true
	}
	for _, want := range []string{"Firebase.ProjectID", "Firestore.ProjectID", "Payments.Provider"} {
		if !fields[want] {
			t.Fatalf("expected %s in %v", want, verr.Fields())
		}
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := baseEnv()
	env["API_RAZORPAY_KEY_SECRET"] = "secret://payments/razorpay-key"
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var serr *SecretError
	if !errors.As(err, &serr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured, got %v", err)
	}
}

func TestLoadMissingRequiredSecret(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("Payments.RazorpayKeySecret", " Payments.RazorpayKeySecret "),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing secrets error, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Payments.RazorpayKeySecret" {
		t.Fatalf("unexpected names %v", names)
	}
	if redacted := missing.RedactedNames(); len(redacted) != 1 || redacted[0] == "Payments.RazorpayKeySecret" {
		t.Fatalf("expected redacted names, got %v", redacted)
	}
}

func TestEnvironmentValuesReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "API_SERVER_PORT=7070\n# comment\nAPI_PAYMENT_CURRENCY=\"usd\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}))
	if err != nil {
		t.Fatalf("environment values: %v", err)
	}
	if values["API_SERVER_PORT"] != "6060" {
		t.Fatalf("explicit map should win, got %q", values["API_SERVER_PORT"])
	}
	if values["API_PAYMENT_CURRENCY"] != "usd" {
		t.Fatalf("expected dotenv value, got %q", values["API_PAYMENT_CURRENCY"])
	}
}

func TestEnvironmentValuesMissingDotEnv(t *testing.T) {
	values, err := EnvironmentValues(WithEnvFile(filepath.Join(t.TempDir(), "missing.env")), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("expected empty values, got %v", values)
	}
}
