//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"qalam-backend/internal/config"
	"qalam-backend/internal/handlers"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogLevel,
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideS3Client,
	ProvidePresignClient,
	ProvideEventBridgeClient,
	ProvideCollector,
	ProvideTracer,
	ProvideDynamoAPI,
	ProvideIndexMonitor,
	ProvideStore,
	ProvidePublisher,
	ProvideTokenService,
	ProvidePasswordHasher,
	ProvideOAuthProviders,
	ProvideStorage,
	ProvideCascadeRunner,
	ProvideCascadeProcessor,
	ProvideUserService,
	ProvidePostService,
	ProvideAuthHandler,
	handlers.NewUserHandler,
	handlers.NewPostHandler,
	handlers.NewUploadHandler,
	ProvideHealthHandler,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
