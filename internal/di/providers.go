package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"qalam-backend/internal/auth"
	"qalam-backend/internal/cascade"
	"qalam-backend/internal/config"
	"qalam-backend/internal/events"
	"qalam-backend/internal/handlers"
	"qalam-backend/internal/observability"
	"qalam-backend/internal/repository"
	"qalam-backend/internal/repository/ddb"
	"qalam-backend/internal/repository/memory"
	"qalam-backend/internal/service/posts"
	"qalam-backend/internal/service/users"
	"qalam-backend/internal/storage"
)

const metricsNamespace = "qalam"

// ProvideLogLevel parses the configured level into an AtomicLevel that the
// config watcher can change at runtime.
func ProvideLogLevel(cfg *config.Config) (zap.AtomicLevel, error) {
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	return level, nil
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, func(), error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = logger.Sync()
	}
	return logger, cleanup, nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWS.Region),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client, pointed at a local
// endpoint when one is configured.
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.AWS.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.DynamoDBEndpoint)
		}
	})
}

// ProvideS3Client creates an S3 client. Local endpoints need path-style
// addressing.
func ProvideS3Client(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWS.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.S3Endpoint)
			o.UsePathStyle = true
		}
	})
}

// ProvidePresignClient creates the S3 presigner.
func ProvidePresignClient(client *s3.Client) *s3.PresignClient {
	return s3.NewPresignClient(client)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCollector creates the Prometheus collector. It always exists so
// store and cascade metrics are recorded; the /metrics route is gated by
// the feature flag.
func ProvideCollector() *observability.Collector {
	return observability.NewCollector(metricsNamespace)
}

// ProvideTracer starts the OTLP exporter when tracing is enabled and
// returns a no-op tracer otherwise.
func ProvideTracer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (trace.Tracer, func(), error) {
	if !cfg.Features.EnableTracing {
		return noop.NewTracerProvider().Tracer(cfg.Tracing.ServiceName), func() {}, nil
	}
	tp, err := observability.InitTracing(ctx, cfg.Tracing.ServiceName, string(cfg.Environment), cfg.Tracing.Endpoint)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
	return tp.Tracer(), cleanup, nil
}

// ProvideDynamoAPI wraps the client with tracing, metrics and a circuit
// breaker.
func ProvideDynamoAPI(client *awsdynamodb.Client, cfg *config.Config, collector *observability.Collector, tracer trace.Tracer, logger *zap.Logger) ddb.API {
	opts := []ddb.InstrumentOption{
		ddb.WithObserver(collector),
		ddb.WithTracer(tracer),
	}
	if cfg.Features.EnableCircuitBreaker {
		opts = append(opts, ddb.WithBreaker(ddb.NewBreaker(ddb.DefaultBreakerConfig(), logger)))
	}
	return ddb.Instrument(client, cfg.Database.TableName, opts...)
}

// ProvideIndexMonitor tracks GSI readiness. It is nil for the memory store.
func ProvideIndexMonitor(api ddb.API, cfg *config.Config, logger *zap.Logger) *ddb.IndexMonitor {
	if cfg.Database.Driver == "memory" {
		return nil
	}
	return ddb.NewIndexMonitor(api, cfg.Database.TableName, logger, cfg.Database.GSI1Name, cfg.Database.GSI2Name)
}

// ProvideStore selects the store driver.
func ProvideStore(api ddb.API, monitor *ddb.IndexMonitor, cfg *config.Config, logger *zap.Logger) repository.Store {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using the in-memory store; data is lost on restart")
		return memory.New(memory.WithLogger(logger))
	}
	return ddb.New(api, ddb.Config{
		TableName: cfg.Database.TableName,
		GSI1Name:  cfg.Database.GSI1Name,
		GSI2Name:  cfg.Database.GSI2Name,
	}, ddb.WithIndexMonitor(monitor), ddb.WithLogger(logger))
}

// ProvidePublisher returns the EventBridge publisher, or a no-op one when
// events are disabled. Either way publishes are counted.
func ProvidePublisher(client *awseventbridge.Client, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) events.Publisher {
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		publisher = events.NewEventBridgePublisher(client, cfg.Events.BusName, cfg.Events.Source, logger)
	}
	return collector.CountingPublisher(publisher)
}

// ProvideTokenService creates the JWT issuer. Outside production a missing
// secret is replaced by a random one, which invalidates tokens on restart.
func ProvideTokenService(cfg *config.Config, logger *zap.Logger) (*auth.TokenService, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" && !cfg.IsProduction() {
		logger.Warn("JWT_SECRET not set; using an ephemeral secret")
		secret = uuid.NewString() + uuid.NewString()
	}
	return auth.NewTokenService(secret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
}

// ProvidePasswordHasher creates the bcrypt hasher.
func ProvidePasswordHasher() *auth.PasswordHasher {
	return auth.NewPasswordHasher(bcrypt.DefaultCost)
}

// ProvideOAuthProviders returns the providers that have credentials.
func ProvideOAuthProviders(cfg *config.Config) []auth.OAuthProvider {
	var providers []auth.OAuthProvider
	if gh := cfg.Auth.GitHub; gh.Configured() {
		providers = append(providers, auth.NewGitHubProvider(gh.ClientID, gh.ClientSecret, gh.RedirectURL))
	}
	if g := cfg.Auth.Google; g.Configured() {
		providers = append(providers, auth.NewGoogleProvider(g.ClientID, g.ClientSecret, g.RedirectURL))
	}
	return providers
}

// ProvideStorage creates the presigned URL service.
func ProvideStorage(presigner *s3.PresignClient, cfg *config.Config) *storage.Service {
	return storage.NewService(presigner, storage.Config{
		Bucket:       cfg.Storage.Bucket,
		UploadURLTTL: cfg.Storage.UploadURLTTL,
		AvatarURLTTL: cfg.Storage.AvatarURLTTL,
	})
}

// ProvideCascadeRunner creates the cascade runner.
func ProvideCascadeRunner(store repository.Store, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *cascade.Runner {
	return cascade.NewRunner(store, cascade.Config{
		StepRetries:    cfg.Cascade.StepRetries,
		StepRetryDelay: cfg.Cascade.StepRetryDelay,
		MaxJobAttempts: cfg.Cascade.MaxJobAttempts,
	}, logger, cascade.WithObserver(collector))
}

// ProvideCascadeProcessor creates the background processor for pending jobs.
func ProvideCascadeProcessor(store repository.Store, runner *cascade.Runner, cfg *config.Config, logger *zap.Logger) *cascade.Processor {
	return cascade.NewProcessor(store, runner, cfg.Cascade.Interval, logger)
}

// ProvideUserService creates the user service.
func ProvideUserService(
	store repository.Store,
	hasher *auth.PasswordHasher,
	files *storage.Service,
	runner *cascade.Runner,
	publisher events.Publisher,
	logger *zap.Logger,
) *users.Service {
	return users.NewService(store, hasher, files, runner, publisher, logger)
}

// ProvidePostService creates the post service.
func ProvidePostService(store repository.Store, publisher events.Publisher, logger *zap.Logger) *posts.Service {
	return posts.NewService(store, store, publisher, logger)
}

// ProvideAuthHandler creates the auth handler.
func ProvideAuthHandler(
	userService *users.Service,
	tokens *auth.TokenService,
	providers []auth.OAuthProvider,
	cfg *config.Config,
	logger *zap.Logger,
) *handlers.AuthHandler {
	return handlers.NewAuthHandler(userService, tokens, providers, cfg.Auth.FrontendURL, !cfg.IsDevelopment(), logger)
}

// ProvideHealthHandler creates the health handler.
func ProvideHealthHandler(monitor *ddb.IndexMonitor, cfg *config.Config) *handlers.HealthHandler {
	if monitor == nil {
		return handlers.NewHealthHandler(cfg.Tracing.ServiceName, nil)
	}
	return handlers.NewHealthHandler(cfg.Tracing.ServiceName, monitor)
}

// ProvideRouter assembles the HTTP router.
func ProvideRouter(
	cfg *config.Config,
	tokens *auth.TokenService,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	postHandler *handlers.PostHandler,
	uploadHandler *handlers.UploadHandler,
	healthHandler *handlers.HealthHandler,
	collector *observability.Collector,
	tracer trace.Tracer,
	logger *zap.Logger,
) *handlers.Router {
	var opts []handlers.RouterOption
	if cfg.Features.EnableMetrics {
		opts = append(opts, handlers.WithMetrics(collector))
	}
	if cfg.Features.EnableTracing {
		opts = append(opts, handlers.WithTracing(tracer))
	}
	return handlers.NewRouter(
		handlers.RouterConfig{
			AllowedOrigins:       cfg.CORS.AllowedOrigins,
			EnableCircuitBreaker: cfg.Features.EnableCircuitBreaker,
		},
		tokens,
		authHandler,
		userHandler,
		postHandler,
		uploadHandler,
		healthHandler,
		logger,
		opts...,
	)
}
