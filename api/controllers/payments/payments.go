package payments

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/api/controllers/requestctx"
	"github.com/angelmondragon/dishdash-backend/api/middleware"
	"github.com/angelmondragon/dishdash-backend/api/responses"
	"github.com/angelmondragon/dishdash-backend/api/validators"
	internalpayments "github.com/angelmondragon/dishdash-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type processRequest struct {
	Method   string          `json:"method" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	SourceID *string         `json:"source_id"`
}

type confirmRequest struct {
	PaymentIntentID string  `json:"payment_intent_id" validate:"required"`
	PaymentMethodID *string `json:"payment_method_id"`
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason *string          `json:"reason" validate:"omitempty,max=280"`
}

// Process takes a payment against an order. The Idempotency-Key header, when
// present, is forwarded to the card processor.
func Process(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
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

		var payload processRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalpayments.ProcessInput{
			OrderID:  orderID,
			Amount:   payload.Amount,
			Method:   payload.Method,
			SourceID: payload.SourceID,
			Actor:    actor,
		}
		if key := strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader)); key != "" {
			input.IdempotencyKey = &key
		}

		result, err := svc.ProcessPayment(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalpayments.NewProcessResponse(result))
	}
}

// Confirm completes a payment that required customer action.
func Confirm(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload confirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ConfirmPaymentIntent(r.Context(), internalpayments.ConfirmInput{
			IntentID:        strings.TrimSpace(payload.PaymentIntentID),
			PaymentMethodID: payload.PaymentMethodID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalpayments.NewProcessResponse(result))
	}
}

func Refund(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		payment, err := svc.CreateRefund(r.Context(), internalpayments.RefundInput{
			PaymentID: paymentID,
			Amount:    payload.Amount,
			Reason:    payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"payment_id": paymentID.String(),
				"order_id":   payment.OrderID.String(),
			})
			logg.Info(ctx, "payment.refunded")
		}
		responses.WriteSuccess(w, internalpayments.NewPaymentDTO(*payment))
	}
}

// ListForOrder returns every payment attempt recorded against an order.
func ListForOrder(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
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

		list, err := svc.ListForOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]internalpayments.PaymentDTO, 0, len(list))
		for _, p := range list {
			out = append(out, internalpayments.NewPaymentDTO(p))
		}
		responses.WriteSuccess(w, out)
	}
}
