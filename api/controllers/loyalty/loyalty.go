package loyalty

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/api/controllers/requestctx"
	"github.com/angelmondragon/dishdash-backend/api/responses"
	"github.com/angelmondragon/dishdash-backend/api/validators"
	internalloyalty "github.com/angelmondragon/dishdash-backend/internal/loyalty"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type adjustRequest struct {
	Points          int64      `json:"points" validate:"required"`
	Description     string     `json:"description" validate:"omitempty,max=280"`
	OrderID         *uuid.UUID `json:"order_id"`
	AffectsLifetime bool       `json:"affects_lifetime"`
}

type accountResponse struct {
	UserID         uuid.UUID `json:"user_id"`
	Points         int64     `json:"points"`
	LifetimePoints int64     `json:"lifetime_points"`
	Tier           string    `json:"tier"`
}

// Me returns the caller's loyalty account. Customers without an account see an
// empty BRONZE account.
func Me(svc internalloyalty.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty service unavailable"))
			return
		}

		userID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.GetAccount(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// MyTransactions pages through the caller's loyalty history, newest first.
func MyTransactions(svc internalloyalty.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty service unavailable"))
			return
		}

		userID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListTransactions(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Adjust applies a signed operator adjustment to a customer's balance.
func Adjust(svc internalloyalty.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loyalty service unavailable"))
			return
		}

		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.Adjust(r.Context(), nil, internalloyalty.AdjustInput{
			UserID:          userID,
			Points:          payload.Points,
			Description:     payload.Description,
			OrderID:         payload.OrderID,
			AffectsLifetime: payload.AffectsLifetime,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithFields(r.Context(), map[string]any{
			"loyalty_user_id": userID.String(),
			"points":          payload.Points,
		})
		logg.Info(ctx, "loyalty.adjusted")
		responses.WriteSuccess(w, accountResponse{
			UserID:         account.UserID,
			Points:         account.Points,
			LifetimePoints: account.LifetimePoints,
			Tier:           string(account.Tier),
		})
	}
}
