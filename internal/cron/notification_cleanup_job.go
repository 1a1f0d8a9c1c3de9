package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/packclaim/pkg/logger"
)

const notificationRetentionDays = 90

type NotificationCleanupJobParams struct {
	Logger        *logger.Logger
	Notifications notificationPurger
	Retention     int
}

type notificationPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = notificationRetentionDays
	}
	return &notificationCleanupJob{
		logg:          params.Logger,
		notifications: params.Notifications,
		retention:     retention,
		now:           time.Now,
	}, nil
}

type notificationCleanupJob struct {
	logg          *logger.Logger
	notifications notificationPurger
	retention     int
	now           func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	cutoff := retentionCutoff(j.now(), j.retention)
	deleted, err := j.notifications.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("notification cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "notification cleanup complete")
	return nil
}
