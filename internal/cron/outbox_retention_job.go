package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

const (
	OutboxRetentionJobName = "outbox-retention"
	defaultOutboxRetention = 30 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	Retention  time.Duration
}

// NewOutboxRetentionJob prunes relayed and dead-lettered outbox rows.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	sweep := func(ctx context.Context, cutoff time.Time) (int64, error) {
		var deleted int64
		err := params.DB.WithTx(ctx, func(tx *gorm.DB) error {
			rows, err := params.Repository.DeletePublishedBefore(ctx, tx, cutoff)
			deleted = rows
			return err
		})
		return deleted, err
	}
	return newSweepJob(OutboxRetentionJobName, params.Logger, retention, sweep)
}
