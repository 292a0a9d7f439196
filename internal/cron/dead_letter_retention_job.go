package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openmarketlabs/relay-backend/pkg/logger"
)

const deadLetterRetentionDays = 90

type DeadLetterRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository deadLetterRetentionRepo
	Retention  int
}

type deadLetterRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewDeadLetterRetentionJob prunes dead letters past the retention window.
// The window is deliberately longer than the outbox one so operators have
// time to inspect and replay.
func NewDeadLetterRetentionJob(params DeadLetterRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("dead letter repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = deadLetterRetentionDays
	}
	return &deadLetterRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type deadLetterRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      deadLetterRetentionRepo
	retention int
	now       func() time.Time
}

func (j *deadLetterRetentionJob) Name() string { return "dead-letter-retention" }

func (j *deadLetterRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteFailedBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead letter retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "dead letter retention cleanup complete")
	return nil
}
