package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Queue is a PostgreSQL-backed job queue. Dequeue uses row locking with
// SKIP LOCKED so multiple workers can poll the same queue safely.
type Queue struct {
	db *gorm.DB
}

func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue schedules a job for immediate processing.
func (q *Queue) Enqueue(ctx context.Context, queue, jobType string, orderID uuid.UUID, payload datatypes.JSON, maxRetries int) (*Job, error) {
	now := time.Now()
	job := &Job{
		OrderID:     orderID,
		Queue:       queue,
		Type:        jobType,
		Payload:     payload,
		Status:      StatusPending,
		MaxRetries:  maxRetries,
		ScheduledAt: &now,
	}
	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// Dequeue claims the oldest due job from the queue, or returns nil when
// the queue is empty.
func (q *Queue) Dequeue(ctx context.Context, queue string) (*Job, error) {
	var job Job
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("queue = ? AND status IN ? AND (scheduled_at IS NULL OR scheduled_at <= ?)",
				queue, []JobStatus{StatusPending, StatusRetrying}, time.Now()).
			Order("scheduled_at ASC").
			First(&job).Error
		if err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(&job).Updates(map[string]interface{}{
			"status":     StatusProcessing,
			"started_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return &job, nil
}

// MarkCompleted finalizes a successfully processed job.
func (q *Queue) MarkCompleted(ctx context.Context, jobID uuid.UUID) error {
	now := time.Now()
	return q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       StatusCompleted,
			"completed_at": now,
		}).Error
}

// MarkFailed records a failed attempt. Jobs with retries left are put
// back on the queue with exponential backoff, others fail permanently.
func (q *Queue) MarkFailed(ctx context.Context, job *Job, jobErr error) error {
	now := time.Now()
	if job.Attempts < job.MaxRetries {
		retryAt := now.Add(backoff(job.Attempts))
		return q.db.WithContext(ctx).Model(&Job{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       StatusRetrying,
				"scheduled_at": retryAt,
				"error":        jobErr.Error(),
			}).Error
	}
	return q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":    StatusFailed,
			"failed_at": now,
			"error":     jobErr.Error(),
		}).Error
}

// HasPending reports whether the order already has an unfinished job of
// the given type, so the same failure is not enqueued twice.
func (q *Queue) HasPending(ctx context.Context, orderID uuid.UUID, jobType string) (bool, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&Job{}).
		Where("order_id = ? AND type = ? AND status IN ?",
			orderID, jobType, []JobStatus{StatusPending, StatusProcessing, StatusRetrying}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count pending jobs: %w", err)
	}
	return count > 0, nil
}

// DeleteOld removes finished jobs older than the retention window.
func (q *Queue) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := q.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []JobStatus{StatusCompleted, StatusFailed}, cutoff).
		Delete(&Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// backoff returns 30s, 60s, 120s, ... capped at 30 minutes.
func backoff(attempts int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempts-1))) * 30 * time.Second
	if d > 30*time.Minute {
		d = 30 * time.Minute
	}
	return d
}
