package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/medlinkhq/medsupply-backend/pkg/logger"
)

const defaultCartRetentionDays = 30

type cartAbandoner interface {
	MarkAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type CartCleanupJobParams struct {
	Logger    *logger.Logger
	Carts     cartAbandoner
	Retention int
}

// NewCartCleanupJob builds the job that retires active carts nobody touched
// within the retention window.
func NewCartCleanupJob(params CartCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("carts repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultCartRetentionDays
	}
	return &cartCleanupJob{
		logg:      params.Logger,
		carts:     params.Carts,
		retention: retention,
		now:       time.Now,
	}, nil
}

type cartCleanupJob struct {
	logg      *logger.Logger
	carts     cartAbandoner
	retention int
	now       func() time.Time
}

func (j *cartCleanupJob) Name() string { return "cart-cleanup" }

func (j *cartCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	abandoned, err := j.carts.MarkAbandonedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("abandon stale carts: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"carts_retired":  abandoned,
	})
	j.logg.Info(logCtx, "cart cleanup complete")
	return nil
}
