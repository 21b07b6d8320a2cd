package persistence

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/flowgraph/flowgraph/workflow"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	// Host is the Redis server host
	Host string `json:"host" yaml:"host"`

	// Port is the Redis server port
	Port int `json:"port" yaml:"port"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`

	// Retention is how long to keep finished histories before Cleanup
	// removes them (default: 24h)
	Retention time.Duration `json:"retention" yaml:"retention"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type: StoreTypeMemory,
		Redis: RedisStoreConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "flowgraph:",
		},
		Retention: 24 * time.Hour,
	}
}

// HistoryFilter defines criteria for listing execution histories
type HistoryFilter struct {
	// WorkflowID filters by the workflow the execution ran
	WorkflowID string

	// Status filters by execution status (empty means all)
	Status []workflow.ExecutionStatus

	// StartedAfter filters executions started after this time
	StartedAfter *time.Time

	// StartedBefore filters executions started before this time
	StartedBefore *time.Time

	// Limit is the maximum number of results (0 means no limit)
	Limit int

	// Offset is the number of results to skip
	Offset int

	// OrderDesc returns newest first when true
	OrderDesc bool
}

// HistoryStoreStats holds statistics about a history store
type HistoryStoreStats struct {
	TotalHistories int64                              `json:"total_histories"`
	StatusCounts   map[workflow.ExecutionStatus]int64 `json:"status_counts"`
	WorkflowCounts map[string]int64                   `json:"workflow_counts"`
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// HistoryStore persists workflow execution histories
type HistoryStore interface {
	Store

	// SaveHistory persists an execution history, overwriting any
	// existing record with the same execution ID
	SaveHistory(ctx context.Context, h *workflow.ExecutionHistory) error

	// GetHistory retrieves a history by execution ID
	GetHistory(ctx context.Context, executionID string) (*workflow.ExecutionHistory, error)

	// ListHistories retrieves histories matching the filter criteria
	ListHistories(ctx context.Context, filter HistoryFilter) ([]*workflow.ExecutionHistory, error)

	// DeleteHistory removes a history by execution ID
	DeleteHistory(ctx context.Context, executionID string) error

	// Cleanup removes finished histories older than the given duration
	// and returns how many were removed
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Stats returns statistics about the store
	Stats(ctx context.Context) (*HistoryStoreStats, error)
}

// NewHistoryStore creates a history store for the configured backend.
func NewHistoryStore(cfg StoreConfig) (HistoryStore, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryHistoryStore(), nil
	case StoreTypeRedis:
		return NewRedisHistoryStore(cfg)
	default:
		return nil, errors.New("unknown store type: " + string(cfg.Type))
	}
}

// matchesFilter checks if a history matches the filter criteria
func matchesFilter(h *workflow.ExecutionHistory, filter HistoryFilter) bool {
	if filter.WorkflowID != "" && h.WorkflowID != filter.WorkflowID {
		return false
	}

	if len(filter.Status) > 0 {
		found := false
		for _, status := range filter.Status {
			if h.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.StartedAfter != nil && h.StartTime.Before(*filter.StartedAfter) {
		return false
	}

	if filter.StartedBefore != nil && h.StartTime.After(*filter.StartedBefore) {
		return false
	}

	return true
}

// sortHistories sorts histories by start time
func sortHistories(histories []*workflow.ExecutionHistory, desc bool) {
	sort.Slice(histories, func(i, j int) bool {
		less := histories[i].StartTime.Before(histories[j].StartTime)
		if desc {
			return !less
		}
		return less
	})
}

// sortAndPage orders histories by start time and applies offset/limit.
func sortAndPage(histories []*workflow.ExecutionHistory, filter HistoryFilter) []*workflow.ExecutionHistory {
	sortHistories(histories, filter.OrderDesc)

	if filter.Offset > 0 {
		if filter.Offset >= len(histories) {
			return []*workflow.ExecutionHistory{}
		}
		histories = histories[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(histories) {
		histories = histories[:filter.Limit]
	}
	return histories
}
