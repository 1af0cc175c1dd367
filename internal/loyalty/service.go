package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/settings"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
)

const reasonInsufficientPoints = "Insufficient loyalty points"

type Service interface {
	Earn(ctx context.Context, tx *gorm.DB, input EarnInput) (*EarnResult, error)
	ValidateRedemption(ctx context.Context, userID uuid.UUID, points int64) (*RedemptionQuote, error)
	Redeem(ctx context.Context, tx *gorm.DB, input RedeemInput) (*RedeemResult, error)
	Adjust(ctx context.Context, tx *gorm.DB, input AdjustInput) (*models.LoyaltyAccount, error)
	Expire(ctx context.Context, userID uuid.UUID, points int64, description string) (*models.LoyaltyAccount, error)
	ReverseEarn(ctx context.Context, tx *gorm.DB, userID, orderID uuid.UUID) (int64, error)
	GetAccount(ctx context.Context, userID uuid.UUID) (*AccountDTO, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error)
}

type ServiceParams struct {
	Repo     *Repository
	Settings settings.Provider
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     *Repository
	settings settings.Provider
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loyalty repository is required")
	}
	if params.Settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settings provider is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: params.Repo, settings: params.Settings, logg: params.Logger, now: now}, nil
}

func (s *service) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.repo.Transact(ctx, fn)
}

func (s *service) Earn(ctx context.Context, tx *gorm.DB, input EarnInput) (*EarnResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.LoyaltyEnabled {
		return &EarnResult{Earned: false}, nil
	}
	points := CalculateEarn(input.OrderTotal, *cfg)
	if points <= 0 {
		return &EarnResult{Earned: false}, nil
	}

	var out *EarnResult
	err = s.inTx(ctx, tx, func(tx *gorm.DB) error {
		account, err := s.credit(ctx, tx, input.UserID, points, points)
		if err != nil {
			return err
		}
		orderID := input.OrderID
		if err := s.appendTxn(ctx, tx, account.ID, &orderID, enums.LoyaltyTxnEarned, points,
			fmt.Sprintf("Earned %d points on order", points)); err != nil {
			return err
		}
		out = &EarnResult{Points: points, Earned: true, Tier: string(account.Tier)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// credit creates the account on first use, adds points and refreshes the tier.
func (s *service) credit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, points, lifetimeDelta int64) (*models.LoyaltyAccount, error) {
	if err := s.repo.EnsureAccount(ctx, tx, userID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure loyalty account")
	}
	if _, err := s.repo.Credit(ctx, tx, userID, points, lifetimeDelta, s.now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit loyalty points")
	}
	return s.refreshTier(ctx, tx, userID)
}

func (s *service) refreshTier(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.LoyaltyAccount, error) {
	account, err := s.repo.FindByUser(ctx, tx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload loyalty account")
	}
	if tier := TierFor(account.LifetimePoints); tier != account.Tier {
		if err := s.repo.SetTier(ctx, tx, account.ID, tier); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update loyalty tier")
		}
		account.Tier = tier
	}
	return account, nil
}

func (s *service) appendTxn(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, orderID *uuid.UUID, kind enums.LoyaltyTransactionType, points int64, description string) error {
	txn := &models.LoyaltyTransaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		OrderID:     orderID,
		Type:        kind,
		Points:      points,
		Description: description,
		CreatedAt:   s.now(),
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record loyalty transaction")
	}
	return nil
}

func (s *service) ValidateRedemption(ctx context.Context, userID uuid.UUID, points int64) (*RedemptionQuote, error) {
	if points <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be positive")
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.LoyaltyEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Loyalty program is disabled")
	}
	account, err := s.repo.FindByUser(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, reasonInsufficientPoints)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty account")
	}
	if points > account.Points {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, reasonInsufficientPoints).
			WithDetails(map[string]any{"available": account.Points})
	}
	return &RedemptionQuote{Points: points, Value: RedemptionValue(points, *cfg), Available: account.Points}, nil
}

func (s *service) Redeem(ctx context.Context, tx *gorm.DB, input RedeemInput) (*RedeemResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Points <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be positive")
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.LoyaltyEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Loyalty program is disabled")
	}

	var out *RedeemResult
	err = s.inTx(ctx, tx, func(tx *gorm.DB) error {
		ok, err := s.repo.Debit(ctx, tx, input.UserID, input.Points, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redeem loyalty points")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, reasonInsufficientPoints)
		}
		account, err := s.repo.FindByUser(ctx, tx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload loyalty account")
		}
		if err := s.appendTxn(ctx, tx, account.ID, input.OrderID, enums.LoyaltyTxnRedeemed, -input.Points,
			fmt.Sprintf("Redeemed %d points", input.Points)); err != nil {
			return err
		}
		out = &RedeemResult{
			Points:          input.Points,
			Value:           RedemptionValue(input.Points, *cfg),
			RemainingPoints: account.Points,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Adjust(ctx context.Context, tx *gorm.DB, input AdjustInput) (*models.LoyaltyAccount, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Points == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be non-zero")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = "Manual adjustment"
	}
	var out *models.LoyaltyAccount
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		account, err := s.applyChange(ctx, tx, input.UserID, input.Points, input.AffectsLifetime)
		if err != nil {
			return err
		}
		if err := s.appendTxn(ctx, tx, account.ID, input.OrderID, enums.LoyaltyTxnAdjusted, input.Points, description); err != nil {
			return err
		}
		out = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Expire(ctx context.Context, userID uuid.UUID, points int64, description string) (*models.LoyaltyAccount, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if points <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be positive")
	}
	if strings.TrimSpace(description) == "" {
		description = "Points expired"
	}
	var out *models.LoyaltyAccount
	err := s.inTx(ctx, nil, func(tx *gorm.DB) error {
		account, err := s.applyChange(ctx, tx, userID, -points, false)
		if err != nil {
			return err
		}
		if err := s.appendTxn(ctx, tx, account.ID, nil, enums.LoyaltyTxnExpired, -points, description); err != nil {
			return err
		}
		out = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReverseEarn takes back the points earned on orderID, capped at the current
// balance. Lifetime points and the tier are left alone.
func (s *service) ReverseEarn(ctx context.Context, tx *gorm.DB, userID, orderID uuid.UUID) (int64, error) {
	if userID == uuid.Nil || orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id and order id are required")
	}
	var reversed int64
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		account, err := s.repo.FindByUser(ctx, tx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty account")
		}
		earned, err := s.repo.SumOrderPoints(ctx, tx, account.ID, orderID, enums.LoyaltyTxnEarned)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum earned points")
		}
		points := min(earned, account.Points)
		if points <= 0 {
			return nil
		}
		ok, err := s.repo.Debit(ctx, tx, userID, points, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse earned points")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "loyalty balance changed while reversing points")
		}
		if err := s.appendTxn(ctx, tx, account.ID, &orderID, enums.LoyaltyTxnAdjusted, -points,
			fmt.Sprintf("Reversed %d points earned on cancelled order", points)); err != nil {
			return err
		}
		reversed = points
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reversed, nil
}

// applyChange credits positive deltas and guards negative ones against overdraw.
func (s *service) applyChange(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta int64, affectsLifetime bool) (*models.LoyaltyAccount, error) {
	if delta > 0 {
		lifetime := int64(0)
		if affectsLifetime {
			lifetime = delta
		}
		return s.credit(ctx, tx, userID, delta, lifetime)
	}
	ok, err := s.repo.Debit(ctx, tx, userID, -delta, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit loyalty points")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, reasonInsufficientPoints)
	}
	account, err := s.repo.FindByUser(ctx, tx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload loyalty account")
	}
	return account, nil
}

func (s *service) GetAccount(ctx context.Context, userID uuid.UUID) (*AccountDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindByUser(ctx, nil, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty account")
		}
		account = &models.LoyaltyAccount{UserID: userID, Tier: enums.LoyaltyTierBronze}
	}
	return &AccountDTO{
		UserID:          account.UserID,
		Points:          account.Points,
		LifetimePoints:  account.LifetimePoints,
		Tier:            string(account.Tier),
		PointsForFree:   cfg.PointsForFree,
		RedeemableValue: RedemptionValue(account.Points, *cfg),
	}, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error) {
	account, err := s.repo.FindByUser(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &TransactionPage{Items: []TransactionDTO{}}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty account")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListTransactions(ctx, account.ID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loyalty transactions")
	}
	page := &TransactionPage{Items: make([]TransactionDTO, 0, len(rows))}
	for _, row := range rows {
		page.Items = append(page.Items, newTransactionDTO(row))
	}
	if next != nil {
		page.Cursor = next.Encode()
	}
	return page, nil
}
