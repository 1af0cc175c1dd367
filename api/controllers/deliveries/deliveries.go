package deliveries

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/api/controllers/requestctx"
	"github.com/angelmondragon/dishdash-backend/api/responses"
	"github.com/angelmondragon/dishdash-backend/api/validators"
	internaldeliveries "github.com/angelmondragon/dishdash-backend/internal/deliveries"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type createRequest struct {
	OrderID               uuid.UUID  `json:"order_id" validate:"required"`
	EstimatedPickupTime   *time.Time `json:"estimated_pickup_time"`
	EstimatedDeliveryTime *time.Time `json:"estimated_delivery_time"`
}

type assignRequest struct {
	DriverID uuid.UUID `json:"driver_id" validate:"required"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

type failRequest struct {
	Reason string `json:"reason" validate:"required,max=280"`
}

// Create opens a delivery for a delivery-type order.
func Create(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}

		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.Create(r.Context(), internaldeliveries.CreateInput{
			OrderID:               payload.OrderID,
			EstimatedPickupTime:   payload.EstimatedPickupTime,
			EstimatedDeliveryTime: payload.EstimatedDeliveryTime,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internaldeliveries.NewDeliveryDTO(*delivery))
	}
}

func Detail(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}

		deliveryID, err := validators.ParseUUIDParam(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.Get(r.Context(), deliveryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internaldeliveries.NewDeliveryDTO(*delivery))
	}
}

// Assign hands a pending delivery to a driver.
func Assign(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}

		deliveryID, err := validators.ParseUUIDParam(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload assignRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.Assign(r.Context(), deliveryID, payload.DriverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internaldeliveries.NewDeliveryDTO(*delivery))
	}
}

type driverAction func(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error)

// driverHandler resolves the delivery id and the calling driver before running a transition.
func driverHandler(svc internaldeliveries.Service, logg *logger.Logger, action func(internaldeliveries.Service) driverAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}

		driverID, err := requestctx.UserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deliveryID, err := validators.ParseUUIDParam(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := action(svc)(r.Context(), deliveryID, driverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internaldeliveries.NewDeliveryDTO(*delivery))
	}
}

func Accept(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return driverHandler(svc, logg, func(s internaldeliveries.Service) driverAction { return s.Accept })
}

func PickedUp(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return driverHandler(svc, logg, func(s internaldeliveries.Service) driverAction { return s.MarkPickedUp })
}

func Delivered(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return driverHandler(svc, logg, func(s internaldeliveries.Service) driverAction { return s.MarkDelivered })
}

func Failed(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload failRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		driverHandler(svc, logg, func(s internaldeliveries.Service) driverAction {
			return func(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error) {
				return s.MarkFailed(ctx, deliveryID, driverID, payload.Reason)
			}
		})(w, r)
	}
}

// Location records the driver's latest position.
func Location(svc internaldeliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload locationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		driverHandler(svc, logg, func(s internaldeliveries.Service) driverAction {
			return func(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error) {
				return s.UpdateLocation(ctx, internaldeliveries.LocationInput{
					DeliveryID: deliveryID,
					DriverID:   driverID,
					Latitude:   *payload.Latitude,
					Longitude:  *payload.Longitude,
				})
			}
		})(w, r)
	}
}
