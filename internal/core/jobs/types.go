package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobStatus represents the status of a background job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusRetrying   JobStatus = "retrying"
)

// Job types handled by the order engine.
const (
	TypeFulfillmentRetry = "fulfillment.retry"
)

// Job is a queued unit of work tied to an order, persisted so retries
// survive restarts.
type Job struct {
	ID      uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID uuid.UUID      `gorm:"type:uuid;not null;index"`
	Queue   string         `gorm:"type:varchar(100);not null;index"`
	Type    string         `gorm:"type:varchar(100);not null"`
	Payload datatypes.JSON `gorm:"type:jsonb"`

	Status     JobStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	Attempts   int       `gorm:"not null;default:0"`
	MaxRetries int       `gorm:"not null;default:3"`

	ScheduledAt *time.Time `gorm:"index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
	Error       string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string {
	return "jobs"
}

// Handler processes one job type.
type Handler interface {
	Type() string
	Handle(ctx context.Context, job *Job) error
}
