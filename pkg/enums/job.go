package enums

import "fmt"

// JobStatus maps to the job_status enum in Postgres.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var validJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusActive,
	JobStatusCompleted,
	JobStatusFailed,
}

// IsValid reports whether the value matches the canonical job_status enum.
func (s JobStatus) IsValid() bool {
	for _, candidate := range validJobStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseJobStatus converts raw input into JobStatus.
func ParseJobStatus(value string) (JobStatus, error) {
	for _, candidate := range validJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job status %q", value)
}

// QueueName identifies a logical queue inside the jobs table.
type QueueName string

const (
	QueueClaimPack QueueName = "claim-pack"
)

func (q QueueName) IsValid() bool {
	return q == QueueClaimPack
}
