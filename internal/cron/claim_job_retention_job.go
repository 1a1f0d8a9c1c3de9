package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/packclaim/pkg/enums"
	"github.com/angelmondragon/packclaim/pkg/logger"
)

const claimJobRetentionDays = 30

type ClaimJobRetentionJobParams struct {
	Logger     *logger.Logger
	Repository claimJobRetentionRepo
	Retention  int
}

type claimJobRetentionRepo interface {
	DeleteCompletedBefore(ctx context.Context, queue enums.QueueName, cutoff time.Time) (int64, error)
}

// NewClaimJobRetentionJob prunes completed claim-pack jobs. Failed and
// queued jobs are never touched.
func NewClaimJobRetentionJob(params ClaimJobRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("queue repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = claimJobRetentionDays
	}
	return &claimJobRetentionJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type claimJobRetentionJob struct {
	logg      *logger.Logger
	repo      claimJobRetentionRepo
	retention int
	now       func() time.Time
}

func (j *claimJobRetentionJob) Name() string { return "claim-job-retention" }

func (j *claimJobRetentionJob) Run(ctx context.Context) error {
	cutoff := retentionCutoff(j.now(), j.retention)
	deleted, err := j.repo.DeleteCompletedBefore(ctx, enums.QueueClaimPack, cutoff)
	if err != nil {
		return fmt.Errorf("claim job retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"queue":          enums.QueueClaimPack,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "claim job retention cleanup complete")
	return nil
}
