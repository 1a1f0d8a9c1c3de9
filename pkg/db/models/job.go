package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/enums"
)

// Job is a durable queue entry. Payload is rewritten while the job runs so it
// doubles as the resume cursor.
type Job struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Queue       enums.QueueName `gorm:"column:queue;not null"`
	DedupeKey   string          `gorm:"column:dedupe_key;not null"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Status      enums.JobStatus `gorm:"column:status;type:job_status;not null"`
	Attempts    int             `gorm:"column:attempts;not null;default:0"`
	RunAt       time.Time       `gorm:"column:run_at;not null"`
	LockedBy    *string         `gorm:"column:locked_by"`
	LockedUntil *time.Time      `gorm:"column:locked_until"`
	LastError   *string         `gorm:"column:last_error"`
	CompletedAt *time.Time      `gorm:"column:completed_at"`
	FailedAt    *time.Time      `gorm:"column:failed_at"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Job) TableName() string { return "jobs" }
