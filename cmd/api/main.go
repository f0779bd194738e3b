package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/handlers"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/payments"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/config"
	pfirestore "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/firestore"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/idempotency"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/jobs"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/observability"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/secrets"
	platformstorage "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/storage"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
	firestoreRepo "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories/firestore"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories/memory"
	redisRepo "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories/redis"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/shipping"
)

// Per caller budgets for the public endpoints that reach paid vendor APIs or leak coupon codes.
const (
	orderCreateLimit  = 10
	paymentLimit      = 20
	couponLimit       = 30
	trackingLimit     = 60
	rateLimitWindow   = time.Minute
	shiprocketEventID = "X-Shiprocket-Event-Id"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore,
		pfirestore.WithTransactionDefaults(
			pfirestore.WithTxAttempts(cfg.Firestore.TxAttempts),
			pfirestore.WithTxTimeout(cfg.Firestore.TxTimeout),
		),
	)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	// Guest carts live in Redis when configured so every instance sees the same cart.
	var redisClient *goredis.Client
	var guestCarts repositories.CartRepository
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		redisClient, err = redisRepo.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal("failed to initialise redis client", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		guestCarts, err = redisRepo.NewGuestCartRepository(redisClient, cfg.Redis.GuestCartTTL)
		if err != nil {
			logger.Fatal("failed to initialise guest cart repository", zap.Error(err))
		}
	} else {
		logger.Warn("redis not configured; guest carts are kept in process memory")
		guestCarts = memory.NewCartRepository(cfg.Redis.GuestCartTTL)
	}

	var webhookArchive handlers.WebhookArchiver
	var snapshots services.OrderSnapshotArchiver
	if bucket := strings.TrimSpace(cfg.Storage.WebhookArchiveBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		writer, err := platformstorage.NewGCSWriter(storageClient)
		if err != nil {
			logger.Fatal("failed to initialise storage writer", zap.Error(err))
		}
		archive, err := platformstorage.NewArchive(writer, bucket)
		if err != nil {
			logger.Fatal("failed to initialise archive", zap.Error(err))
		}
		webhookArchive = archive
		snapshots = archive
	}

	var orderEvents services.OrderEventPublisher
	var notifications services.NotificationPublisher
	publisher, pubsubClient, err := newPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise pubsub publisher", zap.Error(err))
	}
	if publisher != nil {
		orderEvents = publisher
		notifications = publisher
		defer func() {
			publisher.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("pubsub not configured; order events and notifications are dropped")
	}

	dispatcher := services.NewTaskDispatcher(services.TaskDispatcherDeps{
		Timeout: cfg.Tasks.Timeout,
		Clock:   time.Now,
		Logger:  observability.EventLogger(logger.Named("tasks")),
	})

	gateway, err := newPaymentGateway(cfg, observability.EventLogger(logger.Named("payments")))
	if err != nil {
		logger.Fatal("failed to initialise payment gateway", zap.Error(err))
	}

	shiprocket, err := shipping.NewShiprocketClient(shipping.ShiprocketConfig{
		BaseURL:         cfg.Shipping.BaseURL,
		Email:           cfg.Shipping.Email,
		Password:        cfg.Shipping.Password,
		PickupLocation:  cfg.Shipping.PickupLocation,
		DefaultWeightKg: cfg.Shipping.DefaultWeightKg,
		DefaultLengthCm: cfg.Shipping.DefaultLengthCm,
		DefaultWidthCm:  cfg.Shipping.DefaultWidthCm,
		DefaultHeightCm: cfg.Shipping.DefaultHeightCm,
		Timeout:         cfg.Shipping.Timeout,
		Logger:          observability.EventLogger(logger.Named("shiprocket")),
		Clock:           time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise shiprocket client", zap.Error(err))
	}

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	catalogRepo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise counter repository", zap.Error(err))
	}
	couponRepo, err := firestoreRepo.NewCouponRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise coupon repository", zap.Error(err))
	}
	usageRepo, err := firestoreRepo.NewCouponUsageRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise coupon usage repository", zap.Error(err))
	}
	cartRepo, err := firestoreRepo.NewCartRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise cart repository", zap.Error(err))
	}

	counterService, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: counterRepo,
		Clock:      time.Now,
		Prefix:     cfg.Orders.NumberPrefix,
	})
	if err != nil {
		logger.Fatal("failed to initialise counter service", zap.Error(err))
	}

	shipmentService, err := services.NewShipmentService(services.ShipmentServiceDeps{
		Orders:        orderRepo,
		Aggregator:    shiprocket,
		Events:        orderEvents,
		Notifications: notifications,
		Dispatcher:    dispatcher,
		Clock:         time.Now,
		Logger:        observability.EventLogger(logger.Named("shipments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipment service", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:           orderRepo,
		Gateway:          gateway,
		Shipments:        shipmentService,
		Events:           orderEvents,
		Notifications:    notifications,
		Dispatcher:       dispatcher,
		KeyID:            cfg.Payments.RazorpayKeyID,
		KeySecret:        cfg.Payments.RazorpayKeySecret,
		Currency:         cfg.Payments.Currency,
		ContinuationWait: cfg.Tasks.VerifyWait,
		Clock:            time.Now,
		Logger:           observability.EventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:             orderRepo,
		Catalog:            catalogRepo,
		Counters:           counterService,
		Refunds:            paymentService,
		Events:             orderEvents,
		Notifications:      notifications,
		Snapshots:          snapshots,
		Dispatcher:         dispatcher,
		Clock:              time.Now,
		Logger:             observability.EventLogger(logger.Named("orders")),
		Currency:           cfg.Payments.Currency,
		SkipStockDecrement: !cfg.Orders.DecrementStockOnOrder,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	couponService, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons: couponRepo,
		Usages:  usageRepo,
		Orders:  orderRepo,
		Clock:   time.Now,
		Logger:  observability.EventLogger(logger.Named("coupons")),
	})
	if err != nil {
		logger.Fatal("failed to initialise coupon service", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Users:   cartRepo,
		Guests:  guestCarts,
		Catalog: catalogRepo,
		Clock:   time.Now,
		Logger:  observability.EventLogger(logger.Named("cart")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreClient, redisClient, fetcher, buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	orderIdempotency := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.EventLogger(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			runIdempotencyCleanup(cleanupCtx, logger.Named("idempotency"), idempotencyStore, cfg.Idempotency)
		}()
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	var verificationMetrics auth.MetricsRecorder
	if metrics, err := observability.NewVerificationMetrics(); err != nil {
		logger.Warn("auth: verification metrics unavailable", zap.Error(err))
	} else {
		verificationMetrics = metrics
	}
	eventStore, err := auth.NewFirestoreEventStore(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise webhook event store", zap.Error(err))
	}
	securityLog := observability.EventLogger(logger.Named("security"))
	razorpayVerifier := auth.NewWebhookVerifier(payments.ProviderRazorpay, cfg.Payments.RazorpayWebhookKey, cfg.Payments.SignatureHeader,
		auth.WithEventDeduplication(cfg.Payments.EventIDHeader, eventStore),
		auth.WithWebhookLogger(securityLog),
		auth.WithWebhookMetrics(verificationMetrics),
	)
	shiprocketVerifier := auth.NewWebhookVerifier(shipping.ProviderShiprocket, cfg.Shipping.WebhookSecret, cfg.Shipping.SignatureHeader,
		auth.WithEventDeduplication(shiprocketEventID, eventStore),
		auth.WithWebhookLogger(securityLog),
		auth.WithWebhookMetrics(verificationMetrics),
	)

	guests := handlers.NewGuestSessions(handlers.WithSecureGuestCookie(cfg.Security.Environment != "local"))
	handlerLog := observability.EventLogger(logger.Named("handlers"))

	cartHandlers := handlers.NewCartHandlers(authenticator, guests, cartService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, guests, orderService,
		handlers.WithOrderIdempotency(orderIdempotency),
		handlers.WithOrderRateLimit(handlers.NewRateLimiter(orderCreateLimit, rateLimitWindow)),
	)
	paymentOpts := []handlers.PaymentOption{
		handlers.WithRazorpayWebhookVerifier(razorpayVerifier),
		handlers.WithStripeWebhookSecret(cfg.Payments.StripeWebhookSecret),
		handlers.WithPaymentRateLimit(handlers.NewRateLimiter(paymentLimit, rateLimitWindow)),
		handlers.WithPaymentLogger(handlerLog),
	}
	shippingOpts := []handlers.ShippingOption{
		handlers.WithShiprocketWebhookVerifier(shiprocketVerifier),
		handlers.WithTrackingRateLimit(handlers.NewRateLimiter(trackingLimit, rateLimitWindow)),
		handlers.WithShippingLogger(handlerLog),
	}
	if webhookArchive != nil {
		paymentOpts = append(paymentOpts, handlers.WithPaymentWebhookArchive(webhookArchive))
		shippingOpts = append(shippingOpts, handlers.WithShippingWebhookArchive(webhookArchive))
	}
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, guests, paymentService, paymentOpts...)
	shippingHandlers := handlers.NewShippingHandlers(authenticator, shipmentService, shippingOpts...)
	couponHandlers := handlers.NewCouponHandlers(authenticator, couponService, handlers.NewRateLimiter(couponLimit, rateLimitWindow))
	adminHandlers := handlers.NewAdminHandlers(handlers.AdminDeps{
		Authenticator: authenticator,
		Orders:        orderService,
		Coupons:       couponService,
		Payments:      paymentService,
		Shipments:     shipmentService,
	})
	internalHandlers := handlers.NewInternalHandlers(paymentService,
		handlers.WithReconcileAfter(cfg.Orders.ReconcileAfter),
		handlers.WithIdempotencyCleanup(idempotencyStore, cfg.Idempotency.CleanupBatchSize),
		handlers.WithInternalLogger(handlerLog),
	)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	opts := []handlers.Option{
		handlers.WithBasePath(cfg.Server.BasePath),
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithCouponRoutes(couponHandlers.Routes),
		handlers.WithShippingRoutes(shippingHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidc := buildOIDCMiddleware(logger.Named("auth"), cfg, verificationMetrics); oidc != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidc))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("trophy store api listening",
			zap.String("paymentProvider", gateway.Name()),
			zap.String("environment", buildInfo.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background tasks did not finish before shutdown", zap.Error(err))
	}
}

func newPaymentGateway(cfg config.Config, log payments.Logger) (*payments.Manager, error) {
	gateways := make(map[string]payments.Gateway, 2)
	if strings.TrimSpace(cfg.Payments.RazorpayKeyID) != "" {
		razorpay, err := payments.NewRazorpayGateway(payments.RazorpayConfig{
			BaseURL:   cfg.Payments.RazorpayBaseURL,
			KeyID:     cfg.Payments.RazorpayKeyID,
			KeySecret: cfg.Payments.RazorpayKeySecret,
			Timeout:   cfg.Payments.Timeout,
			Logger:    log,
		})
		if err != nil {
			return nil, fmt.Errorf("razorpay: %w", err)
		}
		gateways[payments.ProviderRazorpay] = razorpay
	}
	if strings.TrimSpace(cfg.Payments.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeGateway(payments.StripeConfig{
			APIKey: cfg.Payments.StripeAPIKey,
			Logger: log,
		})
		if err != nil {
			return nil, fmt.Errorf("stripe: %w", err)
		}
		gateways[payments.ProviderStripe] = stripe
	}
	return payments.NewManager(gateways, payments.WithDefaultProvider(cfg.Payments.Provider))
}

func newPublisher(ctx context.Context, cfg config.Config) (*jobs.PubSubPublisher, *pubsub.Client, error) {
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	if projectID == "" {
		return nil, nil, nil
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := jobs.NewPubSubPublisher(client.Topic(cfg.PubSub.OrderEventsTopic), client.Topic(cfg.PubSub.NotificationsTopic))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return publisher, client, nil
}

func runIdempotencyCleanup(ctx context.Context, logger *zap.Logger, store idempotency.Store, cfg config.IdempotencyConfig) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSystemService(client *firestore.Client, redisClient *goredis.Client, fetcher *secrets.Fetcher, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if redisClient != nil {
		r := redisClient
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  500 * time.Millisecond,
			Optional: true,
			Check: func(ctx context.Context) error {
				return r.Ping(ctx).Err()
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:     "secretManager",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	repo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithVersion(build.Version))
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: repo,
		Clock:            time.Now,
		Build:            build,
	})
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, metrics auth.MetricsRecorder) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL)
	validator := auth.NewOIDCValidator(cache,
		auth.WithOIDCLogger(observability.EventLogger(logger)),
		auth.WithOIDCMetrics(metrics),
	)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}
	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithDefaultProject(defaultProject),
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets the selected payment provider cannot run without.
func requiredSecretNames(env map[string]string) []string {
	provider := strings.ToLower(strings.TrimSpace(env["API_PAYMENT_PROVIDER"]))
	switch provider {
	case payments.ProviderStripe:
		return []string{"Payments.StripeAPIKey", "Payments.StripeWebhookSecret"}
	default:
		return []string{"Payments.RazorpayKeySecret", "Payments.RazorpayWebhookKey"}
	}
}
