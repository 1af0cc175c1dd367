package giftcards

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/repo"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// Repository persists gift cards and their balance history.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) FindByCode(ctx context.Context, tx *gorm.DB, code string) (*models.GiftCard, error) {
	var card models.GiftCard
	if err := r.Conn(ctx, tx).Where("code = ?", code).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.GiftCard, error) {
	var card models.GiftCard
	if err := r.Conn(ctx, tx).Where("id = ?", id).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *Repository) Create(ctx context.Context, card *models.GiftCard) error {
	return r.DB(ctx).Create(card).Error
}

// Debit subtracts amount only while the card is active and covers it. The
// status flips to USED in the same statement when the balance reaches zero.
func (r *Repository) Debit(ctx context.Context, tx *gorm.DB, id uuid.UUID, amount decimal.Decimal, now time.Time) (bool, error) {
	res := r.Conn(ctx, tx).Exec(`
		UPDATE gift_cards
		SET current_balance = current_balance - ?,
			status = CASE WHEN current_balance - ? <= 0 THEN ? ELSE status END,
			updated_at = ?
		WHERE id = ?
			AND status = ?
			AND current_balance >= ?`,
		amount, amount, enums.GiftCardStatusUsed, now, id, enums.GiftCardStatusActive, amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompareAndSetBalance writes balance and status only if the stored balance
// still equals expected.
func (r *Repository) CompareAndSetBalance(ctx context.Context, tx *gorm.DB, id uuid.UUID, expected, balance decimal.Decimal, status enums.GiftCardStatus, now time.Time) (bool, error) {
	res := r.Conn(ctx, tx).
		Model(&models.GiftCard{}).
		Where("id = ? AND current_balance = ?", id, expected).
		Updates(map[string]any{
			"current_balance": balance,
			"status":          status,
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) ExpireIfActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	res := r.Conn(ctx, tx).
		Model(&models.GiftCard{}).
		Where("id = ? AND status = ?", id, enums.GiftCardStatusActive).
		Updates(map[string]any{
			"status":     enums.GiftCardStatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.GiftCard{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", enums.GiftCardStatusActive, now).
		Updates(map[string]any{
			"status":     enums.GiftCardStatusExpired,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

func (r *Repository) InsertTransaction(ctx context.Context, tx *gorm.DB, txn *models.GiftCardTransaction) error {
	return r.Conn(ctx, tx).Create(txn).Error
}

func (r *Repository) ListTransactions(ctx context.Context, giftCardID uuid.UUID) ([]models.GiftCardTransaction, error) {
	var txns []models.GiftCardTransaction
	err := r.DB(ctx).
		Where("gift_card_id = ?", giftCardID).
		Order("created_at ASC, id ASC").
		Find(&txns).Error
	return txns, err
}
