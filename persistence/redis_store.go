package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/flowgraph/flowgraph/workflow"
	"github.com/redis/go-redis/v9"
)

// RedisHistoryStore is a Redis-based implementation of HistoryStore.
// Suitable for distributed production deployments.
// History records are stored as JSON strings with sorted sets for
// indexing by status, workflow, and start time.
type RedisHistoryStore struct {
	client    *redis.Client
	keyPrefix string
	config    StoreConfig
}

// NewRedisHistoryStore creates a new Redis-based history store
func NewRedisHistoryStore(config StoreConfig) (*RedisHistoryStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "flowgraph:"
	}

	return &RedisHistoryStore{
		client:    client,
		keyPrefix: keyPrefix + "history:",
		config:    config,
	}, nil
}

// Close closes the store
func (s *RedisHistoryStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisHistoryStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// historyKey returns the Redis key for a history record
func (s *RedisHistoryStore) historyKey(executionID string) string {
	return s.keyPrefix + "data:" + executionID
}

// statusKey returns the Redis key for a status index
func (s *RedisHistoryStore) statusKey(status workflow.ExecutionStatus) string {
	return s.keyPrefix + "status:" + string(status)
}

// workflowKey returns the Redis key for a workflow's history index
func (s *RedisHistoryStore) workflowKey(workflowID string) string {
	return s.keyPrefix + "workflow:" + workflowID
}

// allKey returns the Redis key for the all-histories index
func (s *RedisHistoryStore) allKey() string {
	return s.keyPrefix + "all"
}

// SaveHistory persists an execution history
func (s *RedisHistoryStore) SaveHistory(ctx context.Context, h *workflow.ExecutionHistory) error {
	if h == nil || h.ExecutionID == "" {
		return ErrInvalidInput
	}

	// Get old record for index cleanup
	old, _ := s.GetHistory(ctx, h.ExecutionID)

	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	pipe := s.client.Pipeline()

	pipe.Set(ctx, s.historyKey(h.ExecutionID), data, 0)

	score := float64(h.StartTime.UnixNano())

	// Remove from old status index if status changed
	if old != nil && old.Status != h.Status {
		pipe.ZRem(ctx, s.statusKey(old.Status), h.ExecutionID)
	}

	pipe.ZAdd(ctx, s.statusKey(h.Status), redis.Z{Score: score, Member: h.ExecutionID})
	pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: h.ExecutionID})

	if h.WorkflowID != "" {
		pipe.ZAdd(ctx, s.workflowKey(h.WorkflowID), redis.Z{Score: score, Member: h.ExecutionID})
	}

	_, err = pipe.Exec(ctx)
	return err
}

// GetHistory retrieves a history by execution ID
func (s *RedisHistoryStore) GetHistory(ctx context.Context, executionID string) (*workflow.ExecutionHistory, error) {
	data, err := s.client.Get(ctx, s.historyKey(executionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var h workflow.ExecutionHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHistories retrieves histories matching the filter criteria
func (s *RedisHistoryStore) ListHistories(ctx context.Context, filter HistoryFilter) ([]*workflow.ExecutionHistory, error) {
	var ids []string
	var err error

	// Determine which index to use
	if len(filter.Status) == 1 {
		ids, err = s.client.ZRange(ctx, s.statusKey(filter.Status[0]), 0, -1).Result()
	} else if filter.WorkflowID != "" {
		ids, err = s.client.ZRange(ctx, s.workflowKey(filter.WorkflowID), 0, -1).Result()
	} else {
		ids, err = s.client.ZRange(ctx, s.allKey(), 0, -1).Result()
	}
	if err != nil {
		return nil, err
	}

	result := make([]*workflow.ExecutionHistory, 0, len(ids))
	for _, id := range ids {
		h, err := s.GetHistory(ctx, id)
		if err != nil {
			continue
		}
		if matchesFilter(h, filter) {
			result = append(result, h)
		}
	}

	return sortAndPage(result, filter), nil
}

// DeleteHistory removes a history by execution ID
func (s *RedisHistoryStore) DeleteHistory(ctx context.Context, executionID string) error {
	h, err := s.GetHistory(ctx, executionID)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.historyKey(executionID))
	pipe.ZRem(ctx, s.statusKey(h.Status), executionID)
	pipe.ZRem(ctx, s.allKey(), executionID)

	if h.WorkflowID != "" {
		pipe.ZRem(ctx, s.workflowKey(h.WorkflowID), executionID)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Cleanup removes finished histories older than the specified duration
func (s *RedisHistoryStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	count := 0

	finished := []workflow.ExecutionStatus{
		workflow.ExecutionStatusCompleted,
		workflow.ExecutionStatusFailed,
	}
	for _, status := range finished {
		ids, err := s.client.ZRangeByScore(ctx, s.statusKey(status), &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(cutoff, 10),
		}).Result()
		if err != nil {
			continue
		}
		for _, id := range ids {
			if err := s.DeleteHistory(ctx, id); err == nil {
				count++
			}
		}
	}

	return count, nil
}

// Stats returns statistics about the store
func (s *RedisHistoryStore) Stats(ctx context.Context) (*HistoryStoreStats, error) {
	stats := &HistoryStoreStats{
		StatusCounts:   make(map[workflow.ExecutionStatus]int64),
		WorkflowCounts: make(map[string]int64),
	}

	total, err := s.client.ZCard(ctx, s.allKey()).Result()
	if err == nil {
		stats.TotalHistories = total
	}

	statuses := []workflow.ExecutionStatus{
		workflow.ExecutionStatusRunning,
		workflow.ExecutionStatusCompleted,
		workflow.ExecutionStatusFailed,
	}
	for _, status := range statuses {
		count, err := s.client.ZCard(ctx, s.statusKey(status)).Result()
		if err == nil {
			stats.StatusCounts[status] = count
		}
	}

	keys, err := s.client.Keys(ctx, s.keyPrefix+"workflow:*").Result()
	if err == nil {
		for _, key := range keys {
			workflowID := key[len(s.keyPrefix+"workflow:"):]
			count, err := s.client.ZCard(ctx, key).Result()
			if err == nil {
				stats.WorkflowCounts[workflowID] = count
			}
		}
	}

	return stats, nil
}

// Ensure RedisHistoryStore implements HistoryStore
var _ HistoryStore = (*RedisHistoryStore)(nil)
