package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"comic-server/internal/models"
)

// SubmissionTracker хранит агрегированный статус отправки: счетчики задач и
// пер-строчные статусы. Статус живет ограниченное время, это не источник
// истины (панели лежат в Postgres), а окно наблюдения за ходом генерации.
type SubmissionTracker interface {
	// InitSubmission создает запись о новой отправке с total задачами в статусе pending.
	InitSubmission(ctx context.Context, submissionID string, userID uuid.UUID, total int) error
	// MarkLineSucceeded помечает строку выполненной. Возвращает число еще не
	// терминальных задач отправки.
	MarkLineSucceeded(ctx context.Context, submissionID string, lineIndex int) (remaining int64, err error)
	// MarkLineFailed помечает строку проваленной с причиной. Возвращает число
	// еще не терминальных задач отправки.
	MarkLineFailed(ctx context.Context, submissionID string, lineIndex int, reason string) (remaining int64, err error)
	// GetSubmission возвращает статус отправки или ErrSubmissionNotFound.
	GetSubmission(ctx context.Context, submissionID string) (*models.SubmissionStatus, error)
}

// Compile-time check to ensure redisSubmissionTracker implements SubmissionTracker
var _ SubmissionTracker = (*redisSubmissionTracker)(nil)

type redisSubmissionTracker struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisSubmissionTracker creates a new Redis-backed SubmissionTracker.
func NewRedisSubmissionTracker(client *redis.Client, ttl time.Duration, logger *zap.Logger) SubmissionTracker {
	return &redisSubmissionTracker{
		client: client,
		logger: logger.Named("RedisSubmissionTracker"),
		ttl:    ttl,
	}
}

func submissionKey(submissionID string) string {
	return fmt.Sprintf("submission:%s", submissionID)
}

func lineField(lineIndex int) string {
	return fmt.Sprintf("line:%d", lineIndex)
}

func (t *redisSubmissionTracker) InitSubmission(ctx context.Context, submissionID string, userID uuid.UUID, total int) error {
	key := submissionKey(submissionID)

	fields := map[string]interface{}{
		"user_id":   userID.String(),
		"total":     total,
		"pending":   total,
		"succeeded": 0,
		"failed":    0,
	}
	for i := 0; i < total; i++ {
		fields[lineField(i)] = models.LineStatusQueued
	}

	pipe := t.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Error("Failed to init submission in Redis", zap.Error(err), zap.String("submissionID", submissionID))
		return fmt.Errorf("failed to init submission %s: %w", submissionID, err)
	}

	t.logger.Debug("Submission initialized", zap.String("submissionID", submissionID), zap.Int("total", total))
	return nil
}

func (t *redisSubmissionTracker) MarkLineSucceeded(ctx context.Context, submissionID string, lineIndex int) (int64, error) {
	return t.markLine(ctx, submissionID, lineIndex, "succeeded", models.LineStatusSucceeded)
}

func (t *redisSubmissionTracker) MarkLineFailed(ctx context.Context, submissionID string, lineIndex int, reason string) (int64, error) {
	status := models.LineStatusFailed
	if reason != "" {
		status = status + ":" + reason
	}
	return t.markLine(ctx, submissionID, lineIndex, "failed", status)
}

// markLine переводит строку в терминальный статус и возвращает количество
// оставшихся pending-задач. Pipeline делает декремент и запись статуса
// атомарными относительно других воркеров.
func (t *redisSubmissionTracker) markLine(ctx context.Context, submissionID string, lineIndex int, counterField, lineStatus string) (int64, error) {
	key := submissionKey(submissionID)

	pipe := t.client.Pipeline()
	pendingCmd := pipe.HIncrBy(ctx, key, "pending", -1)
	pipe.HIncrBy(ctx, key, counterField, 1)
	pipe.HSet(ctx, key, lineField(lineIndex), lineStatus)
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.Error("Failed to mark submission line", zap.Error(err),
			zap.String("submissionID", submissionID), zap.Int("lineIndex", lineIndex), zap.String("status", lineStatus))
		return 0, fmt.Errorf("failed to mark line %d of submission %s: %w", lineIndex, submissionID, err)
	}

	remaining := pendingCmd.Val()
	if remaining < 0 {
		// Повторная доставка сообщения после падения воркера, счетчик уже был декрементирован
		t.logger.Warn("Submission pending counter went negative",
			zap.String("submissionID", submissionID), zap.Int64("pending", remaining))
		remaining = 0
	}
	return remaining, nil
}

func (t *redisSubmissionTracker) GetSubmission(ctx context.Context, submissionID string) (*models.SubmissionStatus, error) {
	key := submissionKey(submissionID)

	data, err := t.client.HGetAll(ctx, key).Result()
	if err != nil {
		t.logger.Error("Failed to get submission from Redis", zap.Error(err), zap.String("submissionID", submissionID))
		return nil, fmt.Errorf("failed to get submission %s: %w", submissionID, err)
	}
	if len(data) == 0 {
		return nil, models.ErrSubmissionNotFound
	}

	status := &models.SubmissionStatus{
		SubmissionID: submissionID,
		Lines:        make(map[string]string),
	}
	status.UserID = data["user_id"]
	status.Total = parseCounter(data, "total")
	status.Pending = parseCounter(data, "pending")
	status.Succeeded = parseCounter(data, "succeeded")
	status.Failed = parseCounter(data, "failed")

	for field, value := range data {
		if len(field) > 5 && field[:5] == "line:" {
			status.Lines[field[5:]] = value
		}
	}
	return status, nil
}

func parseCounter(data map[string]string, field string) int64 {
	v, ok := data[field]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
