package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/repo"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
)

// Repository persists the in-app notification feed.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

type feedFilter struct {
	UserID     uuid.UUID
	UnreadOnly bool
}

type readOutcome int

const (
	readMissing readOutcome = iota
	readMarked
	readAlready
)

func (r *Repository) Create(ctx context.Context, notification *models.Notification) error {
	if notification == nil {
		return errors.New("notification is required")
	}
	return r.DB(ctx).Create(notification).Error
}

func (r *Repository) feed(ctx context.Context, filter feedFilter) *gorm.DB {
	q := r.DB(ctx).Model(&models.Notification{}).Where("user_id = ?", filter.UserID)
	if filter.UnreadOnly {
		q = q.Where("read_at IS NULL")
	}
	return q
}

// Page returns one page of the feed, newest first.
func (r *Repository) Page(ctx context.Context, filter feedFilter, limit int, cursor *pagination.Cursor) ([]models.Notification, *pagination.Cursor, error) {
	return pagination.Find[models.Notification](r.feed(ctx, filter), limit, cursor)
}

func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.feed(ctx, feedFilter{UserID: userID, UnreadOnly: true}).Count(&n).Error
	return n, err
}

// MarkRead stamps a single notification owned by userID. Rows belonging to
// someone else are reported as missing.
func (r *Repository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (readOutcome, error) {
	var row models.Notification
	err := r.DB(ctx).
		Select("id", "read_at").
		Where("id = ? AND user_id = ?", notificationID, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return readMissing, nil
	}
	if err != nil {
		return readMissing, err
	}
	if row.ReadAt != nil {
		return readAlready, nil
	}

	res := r.DB(ctx).Model(&models.Notification{}).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", now)
	if res.Error != nil {
		return readMissing, res.Error
	}
	if res.RowsAffected == 0 {
		return readAlready, nil
	}
	return readMarked, nil
}

func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.feed(ctx, feedFilter{UserID: userID, UnreadOnly: true}).UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore drops notifications read before cutoff; unread ones stay.
func (r *Repository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
