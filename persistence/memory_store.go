package persistence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/flowgraph/flowgraph/workflow"
)

// MemoryHistoryStore is an in-memory implementation of HistoryStore.
// Suitable for development and testing; contents are lost on restart.
// Histories are stored serialized so callers never share mutable state
// with the store.
type MemoryHistoryStore struct {
	mu        sync.RWMutex
	histories map[string][]byte
	closed    bool
}

// NewMemoryHistoryStore creates a new in-memory history store
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{
		histories: make(map[string][]byte),
	}
}

// Close closes the store
func (s *MemoryHistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.histories = nil
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryHistoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveHistory persists an execution history
func (s *MemoryHistoryStore) SaveHistory(ctx context.Context, h *workflow.ExecutionHistory) error {
	if h == nil || h.ExecutionID == "" {
		return ErrInvalidInput
	}

	data, err := json.Marshal(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.histories[h.ExecutionID] = data
	return nil
}

// GetHistory retrieves a history by execution ID
func (s *MemoryHistoryStore) GetHistory(ctx context.Context, executionID string) (*workflow.ExecutionHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	data, ok := s.histories[executionID]
	if !ok {
		return nil, ErrNotFound
	}

	var h workflow.ExecutionHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHistories retrieves histories matching the filter criteria
func (s *MemoryHistoryStore) ListHistories(ctx context.Context, filter HistoryFilter) ([]*workflow.ExecutionHistory, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	raw := make([][]byte, 0, len(s.histories))
	for _, data := range s.histories {
		raw = append(raw, data)
	}
	s.mu.RUnlock()

	result := make([]*workflow.ExecutionHistory, 0, len(raw))
	for _, data := range raw {
		var h workflow.ExecutionHistory
		if err := json.Unmarshal(data, &h); err != nil {
			continue
		}
		if matchesFilter(&h, filter) {
			result = append(result, &h)
		}
	}

	return sortAndPage(result, filter), nil
}

// DeleteHistory removes a history by execution ID
func (s *MemoryHistoryStore) DeleteHistory(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.histories[executionID]; !ok {
		return ErrNotFound
	}
	delete(s.histories, executionID)
	return nil
}

// Cleanup removes finished histories older than the specified duration
func (s *MemoryHistoryStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	histories, err := s.ListHistories(ctx, HistoryFilter{
		Status: []workflow.ExecutionStatus{
			workflow.ExecutionStatusCompleted,
			workflow.ExecutionStatusFailed,
		},
		StartedBefore: &cutoff,
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, h := range histories {
		if err := s.DeleteHistory(ctx, h.ExecutionID); err == nil {
			count++
		}
	}
	return count, nil
}

// Stats returns statistics about the store
func (s *MemoryHistoryStore) Stats(ctx context.Context) (*HistoryStoreStats, error) {
	histories, err := s.ListHistories(ctx, HistoryFilter{})
	if err != nil {
		return nil, err
	}

	stats := &HistoryStoreStats{
		TotalHistories: int64(len(histories)),
		StatusCounts:   make(map[workflow.ExecutionStatus]int64),
		WorkflowCounts: make(map[string]int64),
	}
	for _, h := range histories {
		stats.StatusCounts[h.Status]++
		stats.WorkflowCounts[h.WorkflowID]++
	}
	return stats, nil
}

// Ensure MemoryHistoryStore implements HistoryStore
var _ HistoryStore = (*MemoryHistoryStore)(nil)
