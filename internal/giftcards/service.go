package giftcards

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	dbpkg "github.com/angelmondragon/dishdash-backend/pkg/db"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/security"
)

const (
	codeLength        = 16
	issueAttempts     = 3
	refundCASAttempts = 3

	reasonInactive     = "Gift card is not active"
	reasonExpired      = "Gift card has expired"
	reasonEmpty        = "Gift card has no remaining balance"
	reasonInsufficient = "Insufficient balance"
)

// RateLimiter is satisfied by the redis client's fixed window counter.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type Service interface {
	Validate(ctx context.Context, code string, pin *string) (*ValidationResult, error)
	CheckBalance(ctx context.Context, code string, pin *string) (*BalanceDTO, error)
	Use(ctx context.Context, tx *gorm.DB, input UseInput) (*UseResult, error)
	Refund(ctx context.Context, tx *gorm.DB, input RefundInput) (*RefundResult, error)
	Issue(ctx context.Context, input IssueInput) (*models.GiftCard, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	ListTransactions(ctx context.Context, giftCardID uuid.UUID) ([]models.GiftCardTransaction, error)
}

type ServiceParams struct {
	Repo      *Repository
	Limiter   RateLimiter
	Password  config.PasswordConfig
	RateLimit config.GiftCardRateLimitConfig
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      *Repository
	limiter   RateLimiter
	password  config.PasswordConfig
	rateLimit config.GiftCardRateLimitConfig
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gift card repository is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      params.Repo,
		limiter:   params.Limiter,
		password:  params.Password,
		rateLimit: params.RateLimit,
		logg:      params.Logger,
		now:       now,
	}, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *service) Validate(ctx context.Context, code string, pin *string) (*ValidationResult, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gift card code is required")
	}
	card, err := s.repo.FindByCode(ctx, nil, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "Gift card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
	}

	switch card.Status {
	case enums.GiftCardStatusActive:
	case enums.GiftCardStatusExpired:
		return invalid(card, reasonExpired), nil
	default:
		return invalid(card, reasonInactive), nil
	}

	now := s.now()
	if card.ExpiresAt != nil && now.After(*card.ExpiresAt) {
		if err := s.expire(ctx, card.ID, now); err != nil {
			return nil, err
		}
		card.Status = enums.GiftCardStatusExpired
		return invalid(card, reasonExpired), nil
	}

	if !card.CurrentBalance.IsPositive() {
		return invalid(card, reasonEmpty), nil
	}

	if err := s.checkPIN(ctx, card, pin); err != nil {
		return nil, err
	}

	return &ValidationResult{Valid: true, GiftCard: card, Balance: card.CurrentBalance}, nil
}

func (s *service) CheckBalance(ctx context.Context, code string, pin *string) (*BalanceDTO, error) {
	result, err := s.Validate(ctx, code, pin)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, result.Reason)
	}
	dto := NewBalanceDTO(*result.GiftCard)
	return &dto, nil
}

func (s *service) checkPIN(ctx context.Context, card *models.GiftCard, pin *string) error {
	if card.PINHash == nil || *card.PINHash == "" {
		return nil
	}
	if pin == nil || strings.TrimSpace(*pin) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "Gift card PIN required")
	}
	if s.limiter != nil && s.rateLimit.CodeLimit > 0 {
		allowed, _, err := s.limiter.FixedWindowAllow(ctx, "gift_card_pin:"+card.Code, int64(s.rateLimit.CodeLimit), s.rateLimit.Window)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gift card rate limit")
		}
		if !allowed {
			return pkgerrors.New(pkgerrors.CodeRateLimit, "too many gift card PIN attempts")
		}
	}
	ok, err := security.VerifySecret(strings.TrimSpace(*pin), *card.PINHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify gift card pin")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, "Invalid gift card PIN")
	}
	return nil
}

func (s *service) expire(ctx context.Context, id uuid.UUID, now time.Time) error {
	err := s.repo.Transact(ctx, func(tx *gorm.DB) error {
		flipped, err := s.repo.ExpireIfActive(ctx, tx, id, now)
		if err != nil {
			return err
		}
		if flipped && s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "gift_card_id", id.String()), "gift card expired on validation")
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire gift card")
	}
	return nil
}

func (s *service) Use(ctx context.Context, tx *gorm.DB, input UseInput) (*UseResult, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var cardID uuid.UUID
	switch {
	case input.GiftCardID != nil && *input.GiftCardID != uuid.Nil:
		cardID = *input.GiftCardID
	case strings.TrimSpace(input.Code) != "":
		result, err := s.Validate(ctx, input.Code, input.PIN)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, result.Reason)
		}
		cardID = result.GiftCard.ID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gift card id or code is required")
	}

	if tx == nil {
		var out *UseResult
		err := s.repo.Transact(ctx, func(inner *gorm.DB) error {
			res, err := s.use(ctx, inner, cardID, input)
			out = res
			return err
		})
		return out, err
	}
	return s.use(ctx, tx, cardID, input)
}

func (s *service) use(ctx context.Context, tx *gorm.DB, cardID uuid.UUID, input UseInput) (*UseResult, error) {
	card, err := s.repo.FindByID(ctx, tx, cardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "Gift card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
	}
	now := s.now()
	if card.Status != enums.GiftCardStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, reasonInactive)
	}
	if card.ExpiresAt != nil && now.After(*card.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, reasonExpired)
	}
	if input.Amount.GreaterThan(card.CurrentBalance) {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, reasonInsufficient)
	}

	ok, err := s.repo.Debit(ctx, tx, card.ID, input.Amount, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit gift card")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, reasonInsufficient)
	}

	updated, err := s.repo.FindByID(ctx, tx, card.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload gift card")
	}

	txn := &models.GiftCardTransaction{
		ID:           uuid.New(),
		GiftCardID:   card.ID,
		OrderID:      input.OrderID,
		Type:         enums.GiftCardTxnUsage,
		Amount:       input.Amount.Neg(),
		BalanceAfter: updated.CurrentBalance,
		CreatedAt:    now,
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gift card usage")
	}

	return &UseResult{
		GiftCardID:   card.ID,
		Amount:       input.Amount,
		BalanceAfter: updated.CurrentBalance,
		Status:       string(updated.Status),
	}, nil
}

func (s *service) Refund(ctx context.Context, tx *gorm.DB, input RefundInput) (*RefundResult, error) {
	if input.GiftCardID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gift card id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if tx == nil {
		var out *RefundResult
		err := s.repo.Transact(ctx, func(inner *gorm.DB) error {
			res, err := s.refund(ctx, inner, input)
			out = res
			return err
		})
		return out, err
	}
	return s.refund(ctx, tx, input)
}

func (s *service) refund(ctx context.Context, tx *gorm.DB, input RefundInput) (*RefundResult, error) {
	for attempt := 0; attempt < refundCASAttempts; attempt++ {
		card, err := s.repo.FindByID(ctx, tx, input.GiftCardID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "Gift card not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
		}

		headroom := card.OriginalBalance.Sub(card.CurrentBalance)
		restored := decimal.Min(input.Amount, headroom)
		if !restored.IsPositive() {
			return &RefundResult{
				GiftCardID:   card.ID,
				Restored:     decimal.Zero,
				BalanceAfter: card.CurrentBalance,
				Status:       string(card.Status),
			}, nil
		}

		balance := card.CurrentBalance.Add(restored)
		status := card.Status
		if status == enums.GiftCardStatusUsed && balance.Equal(card.OriginalBalance) {
			status = enums.GiftCardStatusActive
		}

		now := s.now()
		ok, err := s.repo.CompareAndSetBalance(ctx, tx, card.ID, card.CurrentBalance, balance, status, now)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund gift card")
		}
		if !ok {
			continue
		}

		txn := &models.GiftCardTransaction{
			ID:           uuid.New(),
			GiftCardID:   card.ID,
			OrderID:      input.OrderID,
			Type:         enums.GiftCardTxnRefund,
			Amount:       restored,
			BalanceAfter: balance,
			CreatedAt:    now,
		}
		if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gift card refund")
		}
		return &RefundResult{
			GiftCardID:   card.ID,
			Restored:     restored,
			BalanceAfter: balance,
			Status:       string(status),
		}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "gift card balance changed concurrently")
}

func (s *service) Issue(ctx context.Context, input IssueInput) (*models.GiftCard, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be in the future")
	}

	var pinHash *string
	if input.PIN != nil && strings.TrimSpace(*input.PIN) != "" {
		hash, err := security.HashSecret(strings.TrimSpace(*input.PIN), s.password)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash gift card pin")
		}
		pinHash = &hash
	}

	amount := input.Amount.Round(2)
	var lastErr error
	for attempt := 0; attempt < issueAttempts; attempt++ {
		code, err := security.GenerateCode(codeLength)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate gift card code")
		}
		card := &models.GiftCard{
			ID:              uuid.New(),
			Code:            code,
			PINHash:         pinHash,
			OriginalBalance: amount,
			CurrentBalance:  amount,
			Status:          enums.GiftCardStatusActive,
			ExpiresAt:       input.ExpiresAt,
			PurchaserEmail:  input.PurchaserEmail,
		}
		if err := s.repo.Create(ctx, card); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				lastErr = err
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gift card")
		}
		return card, nil
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate a unique gift card code")
}

func (s *service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.ExpireStale(ctx, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire gift cards")
	}
	return count, nil
}

func (s *service) ListTransactions(ctx context.Context, giftCardID uuid.UUID) ([]models.GiftCardTransaction, error) {
	txns, err := s.repo.ListTransactions(ctx, giftCardID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list gift card transactions")
	}
	return txns, nil
}

func invalid(card *models.GiftCard, reason string) *ValidationResult {
	return &ValidationResult{Valid: false, Reason: reason, GiftCard: card, Balance: card.CurrentBalance}
}
