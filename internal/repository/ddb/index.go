package ddb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// IndexState is the readiness of one global secondary index.
type IndexState string

const (
	// IndexUnknown means the table has not been described yet. Queries are
	// attempted and a missing-index error demotes the index to IndexMissing.
	IndexUnknown  IndexState = "UNKNOWN"
	IndexCreating IndexState = "CREATING"
	IndexActive   IndexState = "ACTIVE"
	IndexMissing  IndexState = "MISSING"
)

// IndexMonitor tracks which GSIs can be queried. It is refreshed with
// DescribeTable at startup and then polled until every index is ACTIVE.
type IndexMonitor struct {
	api     API
	table   string
	indexes []string
	logger  *zap.Logger

	mu     sync.RWMutex
	states map[string]IndexState
}

// NewIndexMonitor creates a monitor for the named indexes of table.
func NewIndexMonitor(api API, table string, logger *zap.Logger, indexes ...string) *IndexMonitor {
	states := make(map[string]IndexState, len(indexes))
	for _, name := range indexes {
		states[name] = IndexUnknown
	}
	return &IndexMonitor{
		api:     api,
		table:   table,
		indexes: indexes,
		logger:  logger,
		states:  states,
	}
}

// Refresh describes the table and updates every index state.
func (m *IndexMonitor) Refresh(ctx context.Context) error {
	out, err := m.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(m.table),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return fmt.Errorf("table %s does not exist", m.table)
		}
		return fmt.Errorf("failed to describe table %s: %w", m.table, err)
	}

	found := make(map[string]IndexState, len(m.indexes))
	if out.Table != nil {
		for _, gsi := range out.Table.GlobalSecondaryIndexes {
			found[aws.ToString(gsi.IndexName)] = stateOf(gsi)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.indexes {
		next, ok := found[name]
		if !ok {
			next = IndexMissing
		}
		if prev := m.states[name]; prev != next {
			m.logger.Info("index state changed",
				zap.String("table", m.table),
				zap.String("index", name),
				zap.String("from", string(prev)),
				zap.String("to", string(next)))
		}
		m.states[name] = next
	}
	return nil
}

func stateOf(gsi types.GlobalSecondaryIndexDescription) IndexState {
	switch gsi.IndexStatus {
	case types.IndexStatusActive, types.IndexStatusUpdating:
		if aws.ToBool(gsi.Backfilling) {
			return IndexCreating
		}
		return IndexActive
	case types.IndexStatusCreating:
		return IndexCreating
	default:
		return IndexMissing
	}
}

// Ready reports whether queries against index should be attempted. A nil
// monitor treats every index as ready.
func (m *IndexMonitor) Ready(index string) bool {
	if m == nil {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[index]
	return !ok || state == IndexActive || state == IndexUnknown
}

// MarkUnavailable demotes index after DynamoDB rejected a query against it.
// The next poll decides when it comes back.
func (m *IndexMonitor) MarkUnavailable(index string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states[index] != IndexMissing {
		m.logger.Warn("index marked unavailable", zap.String("index", index))
	}
	m.states[index] = IndexMissing
}

// AllActive reports whether every tracked index is ACTIVE.
func (m *IndexMonitor) AllActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, state := range m.states {
		if state != IndexActive {
			return false
		}
	}
	return true
}

// States returns a snapshot of the index states.
func (m *IndexMonitor) States() map[string]IndexState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]IndexState, len(m.states))
	for k, v := range m.states {
		snapshot[k] = v
	}
	return snapshot
}

// Run polls DescribeTable every interval while some index is not ACTIVE.
// It returns when ctx is cancelled.
func (m *IndexMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.AllActive() {
				continue
			}
			if err := m.Refresh(ctx); err != nil {
				m.logger.Warn("index refresh failed", zap.Error(err))
			}
		}
	}
}
