// Package di wires the application's dependencies.
package di

import (
	"go.uber.org/zap"

	"qalam-backend/internal/cascade"
	"qalam-backend/internal/config"
	"qalam-backend/internal/handlers"
	"qalam-backend/internal/observability"
	"qalam-backend/internal/repository"
	"qalam-backend/internal/repository/ddb"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	LogLevel     zap.AtomicLevel
	Store        repository.Store
	IndexMonitor *ddb.IndexMonitor
	Metrics      *observability.Collector
	Runner       *cascade.Runner
	Processor    *cascade.Processor
	Router       *handlers.Router
}
