package coupons

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/repo"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// Repository persists coupons and their usage history.
type Repository struct {
	repo.Base
}

// NewRepository binds a coupon repository to the provided connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) FindByCode(ctx context.Context, tx *gorm.DB, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.Conn(ctx, tx).Where("code = ?", code).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.Conn(ctx, tx).Where("id = ?", id).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *Repository) Create(ctx context.Context, coupon *models.Coupon) error {
	if coupon == nil {
		return errors.New("coupon is required")
	}
	return r.DB(ctx).Create(coupon).Error
}

// ExpireIfActive flips a single coupon to EXPIRED. It reports whether this call
// performed the flip.
func (r *Repository) ExpireIfActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	res := r.Conn(ctx, tx).
		Model(&models.Coupon{}).
		Where("id = ? AND status = ?", id, enums.CouponStatusActive).
		Updates(map[string]any{
			"status":     enums.CouponStatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireStale flips every active coupon whose window closed before now.
func (r *Repository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Coupon{}).
		Where("status = ? AND valid_until IS NOT NULL AND valid_until < ?", enums.CouponStatusActive, now).
		Updates(map[string]any{
			"status":     enums.CouponStatusExpired,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// IncrementUsage bumps usage_count only while the coupon is active and below its
// limit, deactivating it in the same statement once the limit is reached.
func (r *Repository) IncrementUsage(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	res := r.Conn(ctx, tx).Exec(`
		UPDATE coupons
		SET usage_count = usage_count + 1,
			status = CASE
				WHEN usage_limit IS NOT NULL AND usage_count + 1 >= usage_limit THEN ?
				ELSE status
			END,
			updated_at = ?
		WHERE id = ?
			AND status = ?
			AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		enums.CouponStatusInactive, now, id, enums.CouponStatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) CountUserUsages(ctx context.Context, tx *gorm.DB, couponID, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.Conn(ctx, tx).
		Model(&models.CouponUsage{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	return count, err
}

func (r *Repository) InsertUsage(ctx context.Context, tx *gorm.DB, usage *models.CouponUsage) error {
	return r.Conn(ctx, tx).Create(usage).Error
}
