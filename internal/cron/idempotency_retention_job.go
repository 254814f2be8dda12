package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/newsletter-backend/pkg/logger"
)

const (
	idempotencyRetentionJobName = "idempotency-retention"
	defaultIdempotencyRetention = 30 * 24 * time.Hour
	minimumIdempotencyRetention = time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type idempotencyRetentionRepo interface {
	DeleteCompletedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type IdempotencyRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository idempotencyRetentionRepo
	Retention  time.Duration
}

// NewIdempotencyRetentionJob prunes completed idempotency records older than
// the retention window. In-progress rows are never touched.
func NewIdempotencyRetentionJob(params IdempotencyRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("idempotency repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultIdempotencyRetention
	}
	if retention < minimumIdempotencyRetention {
		return nil, fmt.Errorf("idempotency retention must be at least %s", minimumIdempotencyRetention)
	}
	return &idempotencyRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type idempotencyRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      idempotencyRetentionRepo
	retention time.Duration
	now       func() time.Time
}

func (j *idempotencyRetentionJob) Name() string { return idempotencyRetentionJobName }

func (j *idempotencyRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteCompletedBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("idempotency retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"retention_hours": int64(j.retention / time.Hour),
		"rows_deleted":    deleted,
	})
	j.logg.Info(logCtx, "idempotency retention cleanup complete")
	return nil
}
