package loyalty

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dishdash-backend/internal/repo"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
)

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) FindByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.LoyaltyAccount, error) {
	var account models.LoyaltyAccount
	if err := r.Conn(ctx, tx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// EnsureAccount creates a BRONZE account for userID unless one exists.
func (r *Repository) EnsureAccount(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	account := models.LoyaltyAccount{
		ID:     uuid.New(),
		UserID: userID,
		Tier:   enums.LoyaltyTierBronze,
	}
	return r.Conn(ctx, tx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&account).Error
}

// Credit adds points; lifetimeDelta is added to lifetime_points separately.
func (r *Repository) Credit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, points, lifetimeDelta int64, now time.Time) (bool, error) {
	res := r.Conn(ctx, tx).Exec(`
		UPDATE loyalty_accounts
		SET points = points + ?,
			lifetime_points = lifetime_points + ?,
			updated_at = ?
		WHERE user_id = ?`,
		points, lifetimeDelta, now, userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Debit subtracts points only when the balance covers them.
func (r *Repository) Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, points int64, now time.Time) (bool, error) {
	res := r.Conn(ctx, tx).Exec(`
		UPDATE loyalty_accounts
		SET points = points - ?,
			updated_at = ?
		WHERE user_id = ? AND points >= ?`,
		points, now, userID, points,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SumOrderPoints totals the kind transactions recorded against orderID.
func (r *Repository) SumOrderPoints(ctx context.Context, tx *gorm.DB, accountID, orderID uuid.UUID, kind enums.LoyaltyTransactionType) (int64, error) {
	var total int64
	err := r.Conn(ctx, tx).
		Model(&models.LoyaltyTransaction{}).
		Where("account_id = ? AND order_id = ? AND type = ?", accountID, orderID, kind).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	return total, err
}

func (r *Repository) SetTier(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, tier enums.LoyaltyTier) error {
	return r.Conn(ctx, tx).
		Model(&models.LoyaltyAccount{}).
		Where("id = ?", accountID).
		UpdateColumn("tier", tier).Error
}

func (r *Repository) InsertTransaction(ctx context.Context, tx *gorm.DB, txn *models.LoyaltyTransaction) error {
	return r.Conn(ctx, tx).Create(txn).Error
}

func (r *Repository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LoyaltyTransaction, *pagination.Cursor, error) {
	query := r.DB(ctx).Model(&models.LoyaltyTransaction{}).Where("account_id = ?", accountID)
	return pagination.Find[models.LoyaltyTransaction](query, limit, cursor)
}
