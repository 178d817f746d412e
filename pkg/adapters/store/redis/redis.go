package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// ExecutionStore implements ports.ExecutionStore on Redis. Records are
// stored as JSON values with a TTL, indexed per owner in a sorted set
// keyed by start time; history is an append-only list per execution.
type ExecutionStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewExecutionStore creates a Redis-backed execution store.
func NewExecutionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ExecutionStore {
	return &ExecutionStore{client: client, logger: logger, ttl: ttl}
}

// Create persists a new record and indexes it for its owner.
func (s *ExecutionStore) Create(ctx context.Context, record *domain.ExecutionRecord) (string, error) {
	if err := s.save(ctx, record); err != nil {
		return "", err
	}

	if err := s.client.ZAdd(ctx, ownerKey(record.UserID), redis.Z{
		Score:  float64(record.StartedAt.UnixNano()),
		Member: record.ExecutionID,
	}).Err(); err != nil {
		return "", fmt.Errorf("failed to index execution: %w", err)
	}
	s.client.Expire(ctx, ownerKey(record.UserID), s.ttl)

	if err := s.appendHistory(ctx, record.ExecutionID, record.Status, map[string]interface{}{
		"event": "execution_created",
	}); err != nil {
		return "", err
	}

	s.logger.Debug("execution record created",
		zap.String("execution_id", record.ExecutionID),
		zap.String("user_id", record.UserID))
	return record.ExecutionID, nil
}

// Update transitions a record. Terminal statuses are absorbing: a
// repeated terminal update is a no-op returning false.
func (s *ExecutionStore) Update(ctx context.Context, executionID string, status domain.ExecutionStatus,
	output map[string]domain.NodeResult, errorMessage string, elapsed float64) (bool, error) {

	record, err := s.load(ctx, executionID)
	if err != nil {
		return false, err
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

	if err := s.save(ctx, record); err != nil {
		return false, err
	}
	if err := s.appendHistory(ctx, executionID, status, meta); err != nil {
		return false, err
	}

	s.logger.Debug("execution record updated",
		zap.String("execution_id", executionID),
		zap.String("status", string(status)))
	return true, nil
}

// Get returns the owner-scoped record; foreign records are NotFound.
func (s *ExecutionStore) Get(ctx context.Context, executionID, ownerID string) (*domain.ExecutionRecord, error) {
	record, err := s.load(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if record.UserID != ownerID {
		return nil, domain.NewError(domain.ErrCodeNotFound, "execution not found: %s", executionID)
	}
	return record, nil
}

// List returns the owner's executions, newest first.
func (s *ExecutionStore) List(ctx context.Context, ownerID string, offset, limit int) ([]*domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.ZRevRange(ctx, ownerKey(ownerID), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	records := make([]*domain.ExecutionRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.load(ctx, id)
		if err != nil {
			// Index entries can outlive expired records.
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// History returns the owner-scoped status history.
func (s *ExecutionStore) History(ctx context.Context, executionID, ownerID string) ([]domain.StatusEvent, error) {
	if _, err := s.Get(ctx, executionID, ownerID); err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, historyKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	events := make([]domain.StatusEvent, 0, len(raw))
	for _, item := range raw {
		var event domain.StatusEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// Stats aggregates the owner's executions by status.
func (s *ExecutionStore) Stats(ctx context.Context, ownerID string) (*domain.ExecutionStats, error) {
	ids, err := s.client.ZRange(ctx, ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	stats := &domain.ExecutionStats{}
	for _, id := range ids {
		record, err := s.load(ctx, id)
		if err != nil {
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

func (s *ExecutionStore) save(ctx context.Context, record *domain.ExecutionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution record: %w", err)
	}
	if err := s.client.Set(ctx, recordKey(record.ExecutionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save execution record: %w", err)
	}
	return nil
}

func (s *ExecutionStore) load(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	data, err := s.client.Get(ctx, recordKey(executionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.NewError(domain.ErrCodeNotFound, "execution not found: %s", executionID)
		}
		return nil, fmt.Errorf("failed to get execution record: %w", err)
	}

	var record domain.ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution record: %w", err)
	}
	return &record, nil
}

func (s *ExecutionStore) appendHistory(ctx context.Context, executionID string, status domain.ExecutionStatus, metadata map[string]interface{}) error {
	event := domain.StatusEvent{
		ExecutionID: executionID,
		Status:      status,
		Timestamp:   time.Now(),
		Metadata:    metadata,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal history event: %w", err)
	}
	if err := s.client.RPush(ctx, historyKey(executionID), data).Err(); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	s.client.Expire(ctx, historyKey(executionID), s.ttl)
	return nil
}

func recordKey(executionID string) string {
	return "pentaflow:execution:" + executionID
}

func ownerKey(ownerID string) string {
	return "pentaflow:executions:" + ownerID
}

func historyKey(executionID string) string {
	return "pentaflow:history:" + executionID
}
