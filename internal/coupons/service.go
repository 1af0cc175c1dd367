package coupons

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/dishdash-backend/pkg/db"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

const (
	reasonNotFound      = "Invalid coupon code"
	reasonInactive      = "Coupon is not active"
	reasonNotYetValid   = "Coupon is not yet valid"
	reasonExpired       = "Coupon has expired"
	reasonLimitReached  = "Coupon usage limit reached"
	reasonUserLimit     = "Coupon usage limit per user reached"
	reasonBelowMinimum  = "Order subtotal is below the coupon minimum"
	reasonMissingUserID = "Coupon requires a signed-in customer"
)

// Service owns coupon eligibility and usage accounting.
type Service interface {
	Validate(ctx context.Context, input ValidateInput) (*ValidationResult, error)
	CalculateDiscount(coupon models.Coupon, subtotal, deliveryFee decimal.Decimal) DiscountResult
	RecordUsage(ctx context.Context, tx *gorm.DB, input RecordUsageInput) error
	Create(ctx context.Context, input CreateInput) (*models.Coupon, error)
	Get(ctx context.Context, code string) (*models.Coupon, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type ServiceParams struct {
	Repo   *Repository
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon repository is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: params.Repo, logg: params.Logger, now: now}, nil
}

// NormalizeCode trims and upper-cases a coupon code for lookups.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *service) Validate(ctx context.Context, input ValidateInput) (*ValidationResult, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	coupon, err := s.repo.FindByCode(ctx, nil, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid(reasonNotFound), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	if coupon.Status != enums.CouponStatusActive {
		if coupon.Status == enums.CouponStatusExpired {
			return invalid(reasonExpired), nil
		}
		return invalid(reasonInactive), nil
	}

	now := s.now()
	if coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom) {
		return invalid(reasonNotYetValid), nil
	}
	if coupon.ValidUntil != nil && now.After(*coupon.ValidUntil) {
		if err := s.expire(ctx, coupon.ID, now); err != nil {
			return nil, err
		}
		return invalid(reasonExpired), nil
	}

	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return invalid(reasonLimitReached), nil
	}

	if coupon.UsageLimitPerUser != nil {
		if input.UserID == nil || *input.UserID == uuid.Nil {
			return invalid(reasonMissingUserID), nil
		}
		used, err := s.repo.CountUserUsages(ctx, nil, coupon.ID, *input.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usages")
		}
		if used >= int64(*coupon.UsageLimitPerUser) {
			return invalid(reasonUserLimit), nil
		}
	}

	if coupon.MinOrderAmount != nil && input.Subtotal.LessThan(*coupon.MinOrderAmount) {
		return invalid(reasonBelowMinimum), nil
	}

	return &ValidationResult{
		Valid:    true,
		Coupon:   coupon,
		Discount: CalculateDiscount(*coupon, input.Subtotal, input.DeliveryFee),
	}, nil
}

func (s *service) CalculateDiscount(coupon models.Coupon, subtotal, deliveryFee decimal.Decimal) DiscountResult {
	return CalculateDiscount(coupon, subtotal, deliveryFee)
}

// expire persists the lazy ACTIVE -> EXPIRED flip in its own transaction.
func (s *service) expire(ctx context.Context, id uuid.UUID, now time.Time) error {
	err := s.repo.Transact(ctx, func(tx *gorm.DB) error {
		flipped, err := s.repo.ExpireIfActive(ctx, tx, id, now)
		if err != nil {
			return err
		}
		if flipped && s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "coupon_id", id.String()), "coupon expired on validation")
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire coupon")
	}
	return nil
}

func (s *service) RecordUsage(ctx context.Context, tx *gorm.DB, input RecordUsageInput) error {
	if input.CouponID == uuid.Nil || input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon id and order id are required")
	}
	if tx == nil {
		return s.repo.Transact(ctx, func(inner *gorm.DB) error {
			return s.recordUsage(ctx, inner, input)
		})
	}
	return s.recordUsage(ctx, tx, input)
}

func (s *service) recordUsage(ctx context.Context, tx *gorm.DB, input RecordUsageInput) error {
	coupon, err := s.repo.FindByID(ctx, tx, input.CouponID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "coupon not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	now := s.now()
	ok, err := s.repo.IncrementUsage(ctx, tx, coupon.ID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment coupon usage")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, reasonLimitReached)
	}

	usage := &models.CouponUsage{
		ID:             uuid.New(),
		CouponID:       coupon.ID,
		UserID:         input.UserID,
		OrderID:        input.OrderID,
		DiscountAmount: input.Discount,
		CreatedAt:      now,
	}
	if err := s.repo.InsertUsage(ctx, tx, usage); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert coupon usage")
	}
	if coupon.UsageLimitPerUser == nil || input.UserID == nil {
		return nil
	}
	// IncrementUsage holds the coupon row until commit, so this count sees every
	// other redemption of the coupon; over the limit rolls back with the caller.
	used, err := s.repo.CountUserUsages(ctx, tx, coupon.ID, *input.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usages")
	}
	if used > int64(*coupon.UsageLimitPerUser) {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, reasonUserLimit)
	}
	return nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Coupon, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon type")
	}
	if input.DiscountValue.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount value must not be negative")
	}
	if input.Type == enums.CouponTypePercentage && input.DiscountValue.GreaterThan(hundred) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	if (input.Type == enums.CouponTypePercentage || input.Type == enums.CouponTypeFixed) && !input.DiscountValue.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount value must be positive")
	}
	if input.ValidFrom != nil && input.ValidUntil != nil && input.ValidUntil.Before(*input.ValidFrom) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid_until must be after valid_from")
	}
	if input.UsageLimit != nil && *input.UsageLimit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "usage limit must be positive")
	}
	if input.UsageLimitPerUser != nil && *input.UsageLimitPerUser <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "per-user usage limit must be positive")
	}

	coupon := &models.Coupon{
		ID:                uuid.New(),
		Code:              code,
		Type:              input.Type,
		DiscountValue:     input.DiscountValue,
		MaxDiscountAmount: input.MaxDiscountAmount,
		MinOrderAmount:    input.MinOrderAmount,
		ValidFrom:         input.ValidFrom,
		ValidUntil:        input.ValidUntil,
		UsageLimit:        input.UsageLimit,
		UsageLimitPerUser: input.UsageLimitPerUser,
		Status:            enums.CouponStatusActive,
		Description:       input.Description,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	return coupon, nil
}

func (s *service) Get(ctx context.Context, code string) (*models.Coupon, error) {
	coupon, err := s.repo.FindByCode(ctx, nil, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return coupon, nil
}

func (s *service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.ExpireStale(ctx, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire coupons")
	}
	return count, nil
}

func invalid(reason string) *ValidationResult {
	return &ValidationResult{Valid: false, Reason: reason}
}
