package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/openmarketlabs/relay-backend/pkg/logger"
)

func TestDeadLetterRetentionJobDeletesAgedRows(t *testing.T) {
	now := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeDeadLetterRetentionRepo{}
	jobIface, err := NewDeadLetterRetentionJob(DeadLetterRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         retentionTxRunner{},
		Repository: repo,
		Retention:  30,
	})
	if err != nil {
		t.Fatalf("NewDeadLetterRetentionJob: %v", err)
	}
	job := jobIface.(*deadLetterRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.UTC().Add(-30 * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
}

func TestDeadLetterRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeDeadLetterRetentionRepo{err: errors.New("boom")}
	jobIface, err := NewDeadLetterRetentionJob(DeadLetterRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         retentionTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewDeadLetterRetentionJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeadLetterRetentionJobValidation(t *testing.T) {
	_, err := NewDeadLetterRetentionJob(DeadLetterRetentionJobParams{
		DB:         retentionTxRunner{},
		Repository: &fakeDeadLetterRetentionRepo{},
	})
	if err == nil {
		t.Fatal("missing logger must be rejected")
	}
}

type fakeDeadLetterRetentionRepo struct {
	lastCutoff time.Time
	err        error
}

func (f *fakeDeadLetterRetentionRepo) DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}
