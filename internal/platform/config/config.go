package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultBasePath             = "/api/v1"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultPaymentProvider      = "razorpay"
	defaultCurrency             = "INR"
	defaultRazorpayBaseURL      = "https://api.razorpay.com/v1"
	defaultRazorpaySigHeader    = "X-Razorpay-Signature"
	defaultRazorpayEventHeader  = "X-Razorpay-Event-Id"
	defaultShiprocketBaseURL    = "https://apiv2.shiprocket.in/v1/external"
	defaultShiprocketSigHeader  = "X-Shiprocket-Signature"
	defaultPickupLocation       = "Primary"
	defaultPackageWeightKg      = 0.5
	defaultOrderNumberPrefix    = "TA"
	defaultGuestCartTTL         = 7 * 24 * time.Hour
	defaultTaskTimeout          = 30 * time.Second
	defaultVerifyWait           = 8 * time.Second
	defaultOrderEventsTopic     = "order-events"
	defaultNotificationsTopic   = "notifications"
	defaultVendorTimeout        = 15 * time.Second
	defaultReconcileAge         = 30 * time.Minute
)

// Config is the full runtime configuration, grouped by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Redis       RedisConfig
	Storage     StorageConfig
	PubSub      PubSubConfig
	Payments    PaymentsConfig
	Shipping    ShippingConfig
	Orders      OrdersConfig
	Tasks       TaskConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         string
	BasePath     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig identifies the Firebase project used for ID token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig identifies the database. Zero transaction values keep the client defaults.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	TxAttempts   int
	TxTimeout    time.Duration
}

// RedisConfig points at the guest cart cache. An empty URL keeps guest carts in process.
type RedisConfig struct {
	URL          string
	GuestCartTTL time.Duration
}

// StorageConfig lists Cloud Storage buckets.
type StorageConfig struct {
	WebhookArchiveBucket string
}

// PubSubConfig names the topics the service publishes to.
type PubSubConfig struct {
	ProjectID          string
	OrderEventsTopic   string
	NotificationsTopic string
}

// PaymentsConfig selects and configures the payment gateway.
type PaymentsConfig struct {
	Provider            string
	Currency            string
	Timeout             time.Duration
	RazorpayBaseURL     string
	RazorpayKeyID       string
	RazorpayKeySecret   string
	RazorpayWebhookKey  string
	SignatureHeader     string
	EventIDHeader       string
	StripeAPIKey        string
	StripeWebhookSecret string
	MerchantName        string
}

// ShippingConfig configures the Shiprocket aggregator.
type ShippingConfig struct {
	BaseURL         string
	Email           string
	Password        string
	WebhookSecret   string
	SignatureHeader string
	PickupLocation  string
	DefaultWeightKg float64
	DefaultLengthCm float64
	DefaultWidthCm  float64
	DefaultHeightCm float64
	Timeout         time.Duration
}

// OrdersConfig tunes order creation.
type OrdersConfig struct {
	NumberPrefix          string
	DecrementStockOnOrder bool
	ReconcileAfter        time.Duration
}

// TaskConfig bounds fire-and-forget side effects.
type TaskConfig struct {
	Timeout    time.Duration
	VerifyWait time.Duration
}

// SecurityConfig groups server to server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls verification of Google-signed tokens on internal routes.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// IdempotencyConfig controls the Idempotency-Key middleware.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret calls f.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists missing or invalid configuration fields.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns the offending field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError reports a failed secret lookup.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError reports required secrets that resolved to empty values.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the config field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed names safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the dotenv path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks config fields (e.g. "Payments.RazorpayKeySecret") that must resolve.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// EnvironmentValues returns the merged environment (dotenv < process env < explicit map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotenv, err := readDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(dotenv))
	for k, v := range dotenv {
		values[k] = v
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Load builds Config from defaults, dotenv, the environment and secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	env := lookupFunc(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})

	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			BasePath:     env.str("API_SERVER_BASE_PATH", defaultBasePath),
			ReadTimeout:  env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
			TxAttempts:   env.integer("API_FIRESTORE_TX_ATTEMPTS", 0),
			TxTimeout:    env.duration("API_FIRESTORE_TX_TIMEOUT", 0),
		},
		Redis: RedisConfig{
			URL:          env.str("API_REDIS_URL", ""),
			GuestCartTTL: env.duration("API_REDIS_GUEST_CART_TTL", defaultGuestCartTTL),
		},
		Storage: StorageConfig{
			WebhookArchiveBucket: env.str("API_STORAGE_WEBHOOK_ARCHIVE_BUCKET", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:          env.str("API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic:   env.str("API_PUBSUB_ORDER_EVENTS_TOPIC", defaultOrderEventsTopic),
			NotificationsTopic: env.str("API_PUBSUB_NOTIFICATIONS_TOPIC", defaultNotificationsTopic),
		},
		Payments: PaymentsConfig{
			Provider:            strings.ToLower(env.str("API_PAYMENT_PROVIDER", defaultPaymentProvider)),
			Currency:            strings.ToUpper(env.str("API_PAYMENT_CURRENCY", defaultCurrency)),
			Timeout:             env.duration("API_PAYMENT_TIMEOUT", defaultVendorTimeout),
			RazorpayBaseURL:     env.str("API_RAZORPAY_BASE_URL", defaultRazorpayBaseURL),
			RazorpayKeyID:       env.str("API_RAZORPAY_KEY_ID", ""),
			RazorpayKeySecret:   env.str("API_RAZORPAY_KEY_SECRET", ""),
			RazorpayWebhookKey:  env.str("API_RAZORPAY_WEBHOOK_SECRET", ""),
			SignatureHeader:     env.str("API_RAZORPAY_SIGNATURE_HEADER", defaultRazorpaySigHeader),
			EventIDHeader:       env.str("API_RAZORPAY_EVENT_ID_HEADER", defaultRazorpayEventHeader),
			StripeAPIKey:        env.str("API_STRIPE_API_KEY", ""),
			StripeWebhookSecret: env.str("API_STRIPE_WEBHOOK_SECRET", ""),
			MerchantName:        env.str("API_PAYMENT_MERCHANT_NAME", "Trophy Store"),
		},
		Shipping: ShippingConfig{
			BaseURL:         env.str("API_SHIPROCKET_BASE_URL", defaultShiprocketBaseURL),
			Email:           env.str("API_SHIPROCKET_EMAIL", ""),
			Password:        env.str("API_SHIPROCKET_PASSWORD", ""),
			WebhookSecret:   env.str("API_SHIPROCKET_WEBHOOK_SECRET", ""),
			SignatureHeader: env.str("API_SHIPROCKET_SIGNATURE_HEADER", defaultShiprocketSigHeader),
			PickupLocation:  env.str("API_SHIPROCKET_PICKUP_LOCATION", defaultPickupLocation),
			DefaultWeightKg: env.float("API_SHIPROCKET_DEFAULT_WEIGHT_KG", defaultPackageWeightKg),
			DefaultLengthCm: env.float("API_SHIPROCKET_DEFAULT_LENGTH_CM", 20),
			DefaultWidthCm:  env.float("API_SHIPROCKET_DEFAULT_WIDTH_CM", 15),
			DefaultHeightCm: env.float("API_SHIPROCKET_DEFAULT_HEIGHT_CM", 10),
			Timeout:         env.duration("API_SHIPROCKET_TIMEOUT", defaultVendorTimeout),
		},
		Orders: OrdersConfig{
			NumberPrefix:          env.str("API_ORDER_NUMBER_PREFIX", defaultOrderNumberPrefix),
			DecrementStockOnOrder: env.boolean("API_ORDER_DECREMENT_STOCK", true),
			ReconcileAfter:        env.duration("API_ORDER_RECONCILE_AFTER", defaultReconcileAge),
		},
		Tasks: TaskConfig{
			Timeout:    env.duration("API_TASK_TIMEOUT", defaultTaskTimeout),
			VerifyWait: env.duration("API_TASK_VERIFY_WAIT", defaultVerifyWait),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  env.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: env.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  env.csv("API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: env.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Payments.RazorpayKeySecret", &cfg.Payments.RazorpayKeySecret},
		{"Payments.RazorpayWebhookKey", &cfg.Payments.RazorpayWebhookKey},
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Payments.StripeWebhookSecret", &cfg.Payments.StripeWebhookSecret},
		{"Shipping.Password", &cfg.Shipping.Password},
		{"Shipping.WebhookSecret", &cfg.Shipping.WebhookSecret},
		{"Redis.URL", &cfg.Redis.URL},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range uniqueTrimmed(options.requiredSecrets) {
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}
	return cfg, nil
}

func validate(cfg Config) error {
	var fields []string
	if cfg.Server.Port == "" {
		fields = append(fields, "Server.Port")
	}
	if !strings.HasPrefix(cfg.Server.BasePath, "/") {
		fields = append(fields, "Server.BasePath")
	}
	if cfg.Firebase.ProjectID == "" {
		fields = append(fields, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		fields = append(fields, "Firestore.ProjectID")
	}
	if cfg.Firestore.TxAttempts < 0 {
		fields = append(fields, "Firestore.TxAttempts")
	}
	switch cfg.Payments.Provider {
	case "razorpay":
		if cfg.Payments.RazorpayKeyID == "" {
			fields = append(fields, "Payments.RazorpayKeyID")
		}
	case "stripe":
	default:
		fields = append(fields, "Payments.Provider")
	}
	if len(cfg.Payments.Currency) != 3 {
		fields = append(fields, "Payments.Currency")
	}
	if cfg.Shipping.DefaultWeightKg <= 0 {
		fields = append(fields, "Shipping.DefaultWeightKg")
	}
	if strings.TrimSpace(cfg.Orders.NumberPrefix) == "" {
		fields = append(fields, "Orders.NumberPrefix")
	}
	if cfg.Tasks.Timeout <= 0 {
		fields = append(fields, "Tasks.Timeout")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		fields = append(fields, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		fields = append(fields, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		fields = append(fields, "Idempotency.CleanupBatchSize")
	}
	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := "secret://" + strings.TrimPrefix(strings.TrimPrefix(trimmed, "sm://"), "secret://")
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

type lookupFunc func(key string) (string, bool)

func (l lookupFunc) str(key, fallback string) string {
	if v, ok := l(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (l lookupFunc) duration(key string, fallback time.Duration) time.Duration {
	if v, ok := l(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}

func (l lookupFunc) integer(key string, fallback int) int {
	if v, ok := l(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func (l lookupFunc) float(key string, fallback float64) float64 {
	if v, ok := l(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func (l lookupFunc) boolean(key string, fallback bool) bool {
	if v, ok := l(key); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func (l lookupFunc) csv(key string) []string {
	raw, ok := l(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
