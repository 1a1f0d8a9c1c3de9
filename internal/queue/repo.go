package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/packclaim/pkg/db"
	"github.com/angelmondragon/packclaim/pkg/db/models"
	"github.com/angelmondragon/packclaim/pkg/enums"
)

const dedupeConstraint = "ux_jobs_queue_dedupe_key"

const maxLastErrorLen = 2048

// Repository persists jobs. Every write made on behalf of a running job is
// guarded by the lease owner so a worker that lost its lease cannot clobber
// the new holder.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Enqueue(ctx context.Context, job *models.Job) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	FindByDedupeKey(ctx context.Context, queue enums.QueueName, dedupeKey string) (*models.Job, error)
	ListReady(ctx context.Context, queue enums.QueueName, now time.Time, limit int) ([]models.Job, error)
	Lease(ctx context.Context, job models.Job, owner string, until, now time.Time) (bool, error)
	SavePayload(ctx context.Context, id uuid.UUID, owner string, payload json.RawMessage) (int64, error)
	ExtendLease(ctx context.Context, id uuid.UUID, owner string, until time.Time) (int64, error)
	Complete(ctx context.Context, id uuid.UUID, owner string, now time.Time) (int64, error)
	Reschedule(ctx context.Context, id uuid.UUID, owner string, runAt time.Time, lastError string) (int64, error)
	Fail(ctx context.Context, id uuid.UUID, owner string, now time.Time, lastError string) (int64, error)
	Requeue(ctx context.Context, id uuid.UUID, now time.Time) (int64, error)
	DeleteCompletedBefore(ctx context.Context, queue enums.QueueName, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a jobs repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// Enqueue inserts job unless (queue, dedupe_key) already exists, in which
// case job is overwritten with the stored row and false is returned.
func (r *repositoryImpl) Enqueue(ctx context.Context, job *models.Job) (bool, error) {
	existing, err := r.FindByDedupeKey(ctx, job.Queue, job.DedupeKey)
	if err != nil {
		return false, err
	}
	if existing != nil {
		*job = *existing
		return false, nil
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		if !dbpkg.IsUniqueViolation(err, dedupeConstraint) {
			return false, err
		}
		existing, findErr := r.FindByDedupeKey(ctx, job.Queue, job.DedupeKey)
		if findErr != nil {
			return false, findErr
		}
		if existing == nil {
			return false, err
		}
		*job = *existing
		return false, nil
	}
	return true, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repositoryImpl) FindByDedupeKey(ctx context.Context, queue enums.QueueName, dedupeKey string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("queue = ? AND dedupe_key = ?", queue, dedupeKey).
		Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListReady returns queued jobs that are due plus active jobs whose lease
// expired.
func (r *repositoryImpl) ListReady(ctx context.Context, queue enums.QueueName, now time.Time, limit int) ([]models.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("queue = ?", queue).
		Where(
			r.db.Where("status = ? AND run_at <= ?", enums.JobStatusQueued, now).
				Or("status = ? AND locked_until < ?", enums.JobStatusActive, now),
		).
		Order("run_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// Lease claims job with a compare-and-set on the status and attempt count
// that were read. Only one contender can win a given snapshot.
func (r *repositoryImpl) Lease(ctx context.Context, job models.Job, owner string, until, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ? AND attempts = ?", job.ID, job.Status, job.Attempts).
		Updates(map[string]any{
			"status":       enums.JobStatusActive,
			"attempts":     job.Attempts + 1,
			"locked_by":    owner,
			"locked_until": until,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repositoryImpl) SavePayload(ctx context.Context, id uuid.UUID, owner string, payload json.RawMessage) (int64, error) {
	return r.updateOwned(ctx, id, owner, map[string]any{
		"payload": payload,
	})
}

func (r *repositoryImpl) ExtendLease(ctx context.Context, id uuid.UUID, owner string, until time.Time) (int64, error) {
	return r.updateOwned(ctx, id, owner, map[string]any{
		"locked_until": until,
	})
}

func (r *repositoryImpl) Complete(ctx context.Context, id uuid.UUID, owner string, now time.Time) (int64, error) {
	return r.updateOwned(ctx, id, owner, map[string]any{
		"status":       enums.JobStatusCompleted,
		"completed_at": now,
		"locked_by":    nil,
		"locked_until": nil,
		"last_error":   nil,
	})
}

func (r *repositoryImpl) Reschedule(ctx context.Context, id uuid.UUID, owner string, runAt time.Time, lastError string) (int64, error) {
	return r.updateOwned(ctx, id, owner, map[string]any{
		"status":       enums.JobStatusQueued,
		"run_at":       runAt,
		"locked_by":    nil,
		"locked_until": nil,
		"last_error":   truncate(lastError),
	})
}

func (r *repositoryImpl) Fail(ctx context.Context, id uuid.UUID, owner string, now time.Time, lastError string) (int64, error) {
	return r.updateOwned(ctx, id, owner, map[string]any{
		"status":       enums.JobStatusFailed,
		"failed_at":    now,
		"locked_by":    nil,
		"locked_until": nil,
		"last_error":   truncate(lastError),
	})
}

// Requeue puts a failed job back in line with a fresh retry budget. The step
// cursor in the payload is kept.
func (r *repositoryImpl) Requeue(ctx context.Context, id uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", id, enums.JobStatusFailed).
		Updates(map[string]any{
			"status":    enums.JobStatusQueued,
			"attempts":  0,
			"run_at":    now,
			"failed_at": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) DeleteCompletedBefore(ctx context.Context, queue enums.QueueName, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("queue = ? AND status = ? AND completed_at < ?", queue, enums.JobStatusCompleted, cutoff).
		Delete(&models.Job{})
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) updateOwned(ctx context.Context, id uuid.UUID, owner string, values map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ? AND locked_by = ?", id, enums.JobStatusActive, owner).
		Updates(values)
	return res.RowsAffected, res.Error
}

func truncate(message string) string {
	if len(message) <= maxLastErrorLen {
		return message
	}
	return message[:maxLastErrorLen]
}
