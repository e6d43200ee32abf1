package ddb

import (
	"time"

	"go.uber.org/zap"

	"qalam-backend/internal/repository"
)

// Config names the table and its secondary indexes.
type Config struct {
	TableName string
	GSI1Name  string // USERNAME# and AUTHOR# lookups
	GSI2Name  string // EMAIL#, ALL_POSTS and PENDING_CASCADES lookups
}

// Option is a functional option for configuring a Repository.
type Option func(*Repository)

// WithClock sets the time source used for timestamps and IDs.
func WithClock(clock func() time.Time) Option {
	return func(r *Repository) {
		r.clock = clock
	}
}

// WithRetryConfig overrides the retry policy for version-guarded updates.
func WithRetryConfig(cfg repository.RetryConfig) Option {
	return func(r *Repository) {
		r.retry = cfg
	}
}

// WithIndexMonitor makes index queries consult m before touching a GSI.
// Without a monitor every index is assumed queryable.
func WithIndexMonitor(m *IndexMonitor) Option {
	return func(r *Repository) {
		r.indexes = m
	}
}

// WithLogger sets the logger used for degraded-mode and no-op warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}
