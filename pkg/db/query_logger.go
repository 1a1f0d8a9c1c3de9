package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/packclaim/pkg/logger"
)

const defaultSlowQueryThreshold = 500 * time.Millisecond

// queryLogger routes gorm's trace output into the service logger. Slow
// statements are warnings; failed statements are debug lines because the
// repository that issued them returns and logs the error itself.
type queryLogger struct {
	logg      *logger.Logger
	threshold time.Duration
	level     gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, threshold time.Duration) *queryLogger {
	if logg == nil {
		logg = logger.Nop()
	}
	if threshold <= 0 {
		threshold = defaultSlowQueryThreshold
	}
	return &queryLogger{logg: logg, threshold: threshold, level: gormlogger.Warn}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logg.Error(ctx, "gorm error", fmt.Errorf(msg, args...))
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := elapsed >= l.threshold
	if !failed && !slow {
		return
	}

	sql, rows := fc()
	fields := map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	}
	if failed {
		fields["error"] = err.Error()
		l.logg.Debug(l.logg.WithFields(ctx, fields), "query failed")
		return
	}
	if l.level >= gormlogger.Warn {
		l.logg.Warn(l.logg.WithFields(ctx, fields), "slow query")
	}
}
