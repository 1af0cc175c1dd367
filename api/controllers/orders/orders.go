package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/api/controllers/requestctx"
	"github.com/angelmondragon/dishdash-backend/api/middleware"
	"github.com/angelmondragon/dishdash-backend/api/responses"
	"github.com/angelmondragon/dishdash-backend/api/validators"
	internalorders "github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/types"
)

type orderItemRequest struct {
	MenuItemID  uuid.UUID   `json:"menu_item_id" validate:"required"`
	Quantity    int         `json:"quantity" validate:"required,min=1,max=99"`
	ModifierIDs []uuid.UUID `json:"modifier_ids"`
	Notes       *string     `json:"notes" validate:"omitempty,max=280"`
}

type createOrderRequest struct {
	CustomerName    string             `json:"customer_name" validate:"required,max=120"`
	CustomerEmail   *string            `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone   *string            `json:"customer_phone" validate:"omitempty,max=32"`
	Type            string             `json:"type" validate:"required"`
	DeliveryAddress *types.Address     `json:"delivery_address"`
	Items           []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	Tip             *decimal.Decimal   `json:"tip"`
	Notes           *string            `json:"notes" validate:"omitempty,max=500"`
	CouponCode      *string            `json:"coupon_code" validate:"omitempty,max=64,redeemcode"`
	GiftCardCode    *string            `json:"gift_card_code" validate:"omitempty,max=64,redeemcode"`
	GiftCardPIN     *string            `json:"gift_card_pin"`
	GiftCardAmount  *decimal.Decimal   `json:"gift_card_amount"`
	LoyaltyPoints   int64              `json:"loyalty_points" validate:"min=0"`
}

type updateStatusRequest struct {
	Status string  `json:"status" validate:"required"`
	Reason *string `json:"reason" validate:"omitempty,max=280"`
}

type cancelRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=280"`
}

// Create places an order for the caller. Orders entered by staff at the
// counter are recorded as guest orders.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := requestctx.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderType, err := enums.ParseOrderType(strings.ToUpper(strings.TrimSpace(payload.Type)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order type"))
			return
		}

		input := internalorders.CreateOrderInput{
			CustomerName:    validators.CleanText(payload.CustomerName, 120),
			CustomerEmail:   payload.CustomerEmail,
			CustomerPhone:   validators.CleanOptional(payload.CustomerPhone, 32),
			Type:            orderType,
			DeliveryAddress: payload.DeliveryAddress,
			Notes:           validators.CleanOptional(payload.Notes, 500),
			CouponCode:      payload.CouponCode,
			GiftCardCode:    payload.GiftCardCode,
			GiftCardPIN:     payload.GiftCardPIN,
			GiftCardAmount:  payload.GiftCardAmount,
			LoyaltyPoints:   payload.LoyaltyPoints,
		}
		if !actor.Staff {
			userID := actor.UserID
			input.UserID = &userID
		}
		if payload.Tip != nil {
			input.Tip = *payload.Tip
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, internalorders.ItemInput{
				MenuItemID:  item.MenuItemID,
				Quantity:    item.Quantity,
				ModifierIDs: item.ModifierIDs,
				Notes:       validators.CleanOptional(item.Notes, 280),
			})
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderDTO(*order))
	}
}

// ListMine returns the caller's orders, newest first.
func ListMine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForUser(r.Context(), userID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns an order to its owner or to staff.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := requestctx.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(*order))
	}
}

// UpdateStatus moves an order through the kitchen workflow.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := requestctx.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID: orderID,
			Status:  payload.Status,
			Reason:  payload.Reason,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"order_id":   orderID.String(),
				"status":     string(order.Status),
				"actor_role": string(middleware.RoleFromContext(r.Context())),
			})
			logg.Info(ctx, "order.status_updated")
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(*order))
	}
}

// Cancel cancels an order on behalf of its owner or staff.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := requestctx.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID: orderID,
			Reason:  payload.Reason,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(*order))
	}
}
