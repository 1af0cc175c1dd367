package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

const (
	NotificationCleanupJobName   = "notification-cleanup"
	defaultNotificationRetention = 30 * 24 * time.Hour
)

type notificationsCleanupRepo interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository notificationsCleanupRepo
	Retention  time.Duration
}

// NewNotificationCleanupJob deletes read notifications older than the retention
// window. Unread rows stay in the customer's feed.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultNotificationRetention
	}
	return newSweepJob(NotificationCleanupJobName, params.Logger, retention, params.Repository.DeleteReadBefore)
}
