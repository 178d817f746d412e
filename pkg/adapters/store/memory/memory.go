package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// ExecutionStore implements ports.ExecutionStore with an in-memory
// map. Used for tests and for running without Redis.
type ExecutionStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ExecutionRecord
	history map[string][]domain.StatusEvent
}

// NewExecutionStore creates an empty in-memory store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		records: make(map[string]*domain.ExecutionRecord),
		history: make(map[string][]domain.StatusEvent),
	}
}

// Create persists a new record.
func (s *ExecutionStore) Create(_ context.Context, record *domain.ExecutionRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	s.records[record.ExecutionID] = &copied
	s.appendHistoryLocked(record.ExecutionID, record.Status, map[string]interface{}{
		"event": "execution_created",
	})
	return record.ExecutionID, nil
}

// Update transitions a record. Terminal statuses are absorbing: a
// repeated update with the same terminal status is a no-op returning
// false, so retries produce no duplicate history entries and never
// overwrite CompletedAt.
func (s *ExecutionStore) Update(_ context.Context, executionID string, status domain.ExecutionStatus,
	output map[string]domain.NodeResult, errorMessage string, elapsed float64) (bool, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[executionID]
	if !ok {
		return false, domain.NewError(domain.ErrCodeNotFound, "execution not found: %s", executionID)
	}
	if record.Status.Terminal() {
		return false, nil
	}

	record.Status = status
	if output != nil {
		record.OutputData = output
	}
	if errorMessage != "" {
		record.ErrorMessage = errorMessage
	}
	if elapsed > 0 {
		record.ExecutionTimeSeconds = elapsed
	}

	meta := map[string]interface{}{"event": "status_changed"}
	if status.Terminal() {
		now := time.Now()
		record.CompletedAt = &now
		meta["event"] = "execution_finished"
		if errorMessage != "" {
			meta["error_message"] = errorMessage
		}
		if elapsed > 0 {
			meta["execution_time_seconds"] = elapsed
		}
	}
	s.appendHistoryLocked(executionID, status, meta)
	return true, nil
}

// Get returns the owner-scoped record; foreign records are NotFound.
func (s *ExecutionStore) Get(_ context.Context, executionID, ownerID string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[executionID]
	if !ok || record.UserID != ownerID {
		return nil, domain.NewError(domain.ErrCodeNotFound, "execution not found: %s", executionID)
	}
	copied := *record
	return &copied, nil
}

// List returns the owner's executions, newest first.
func (s *ExecutionStore) List(_ context.Context, ownerID string, offset, limit int) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*domain.ExecutionRecord
	for _, record := range s.records {
		if record.UserID == ownerID {
			copied := *record
			records = append(records, &copied)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	if offset >= len(records) {
		return nil, nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// History returns the owner-scoped append-only status history.
func (s *ExecutionStore) History(_ context.Context, executionID, ownerID string) ([]domain.StatusEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[executionID]
	if !ok || record.UserID != ownerID {
		return nil, domain.NewError(domain.ErrCodeNotFound, "execution not found: %s", executionID)
	}
	events := make([]domain.StatusEvent, len(s.history[executionID]))
	copy(events, s.history[executionID])
	return events, nil
}

// Stats aggregates the owner's executions by status.
func (s *ExecutionStore) Stats(_ context.Context, ownerID string) (*domain.ExecutionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.ExecutionStats{}
	for _, record := range s.records {
		if record.UserID != ownerID {
			continue
		}
		stats.Total++
		switch record.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusRunning:
			stats.Running++
		case domain.StatusCompleted:
			stats.Completed++
		case domain.StatusFailed, domain.StatusCancelled:
			stats.Failed++
		}
	}
	if finished := stats.Completed + stats.Failed; finished > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(finished)
	}
	return stats, nil
}

func (s *ExecutionStore) appendHistoryLocked(executionID string, status domain.ExecutionStatus, metadata map[string]interface{}) {
	s.history[executionID] = append(s.history[executionID], domain.StatusEvent{
		ExecutionID: executionID,
		Status:      status,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	})
}
