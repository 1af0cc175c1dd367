package deliveries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/orders"
	dbpkg "github.com/angelmondragon/dishdash-backend/pkg/db"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
)

// Service coordinates dispatch and driver actions on deliveries.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Delivery, error)
	Assign(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error)
	Accept(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error)
	MarkPickedUp(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error)
	MarkDelivered(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error)
	MarkFailed(ctx context.Context, deliveryID, driverID uuid.UUID, reason string) (*models.Delivery, error)
	UpdateLocation(ctx context.Context, input LocationInput) (*models.Delivery, error)
	Get(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderTracker is the slice of the order orchestrator deliveries depend on.
type orderTracker interface {
	Get(ctx context.Context, orderID uuid.UUID, actor *orders.Actor) (*models.Order, error)
	ApplyDeliveryCascade(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus) error
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Orders    orderTracker
	Locations LocationSink
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	orders    orderTracker
	locations LocationSink
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("deliveries repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order service required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		orders:    params.Orders,
		locations: params.Locations,
		logg:      params.Logger,
		now:       now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Delivery, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.Get(ctx, input.OrderID, nil)
	if err != nil {
		return nil, err
	}
	if order.Type != enums.OrderTypeDelivery {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Deliveries can only be created for delivery orders")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Cannot create a delivery for a cancelled order")
	}
	if _, err := s.repo.FindByOrderID(ctx, order.ID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "Delivery already exists for this order")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
	}

	now := s.now()
	delivery := &models.Delivery{
		ID:                    uuid.New(),
		OrderID:               order.ID,
		Status:                enums.DeliveryStatusPending,
		EstimatedPickupTime:   input.EstimatedPickupTime,
		EstimatedDeliveryTime: input.EstimatedDeliveryTime,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Create(ctx, delivery); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "Delivery already exists for this order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery")
	}
	s.logInfo(ctx, delivery, "delivery created")
	return delivery, nil
}

func (s *service) Assign(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error) {
	if driverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id required")
	}
	delivery, err := s.Get(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	switch delivery.Status {
	case enums.DeliveryStatusPending:
	case enums.DeliveryStatusAssigned:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "Delivery is already assigned").
			WithDetails(map[string]any{"driver_id": uuidString(delivery.DriverID)})
	default:
		return nil, invalidTransition(delivery.Status, enums.DeliveryStatusAssigned)
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Assign(ctx, delivery.ID, map[string]any{
			"status":      enums.DeliveryStatusAssigned,
			"driver_id":   driverID,
			"assigned_at": now,
			"updated_at":  now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign delivery")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "Delivery is already assigned")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryAssigned,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   delivery.ID,
			OccurredAt:    now,
			Data: payloads.DeliveryAssignedEvent{
				DeliveryID: delivery.ID,
				OrderID:    delivery.OrderID,
				DriverID:   driverID,
				AssignedAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	updated, err := s.Get(ctx, delivery.ID)
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, updated, "delivery assigned")
	return updated, nil
}

func (s *service) Accept(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.loadForDriver(ctx, deliveryID, driverID)
	if err != nil {
		return nil, err
	}
	if delivery.Status == enums.DeliveryStatusAccepted {
		return delivery, nil
	}
	return s.driverTransition(ctx, delivery, driverID, enums.DeliveryStatusAccepted, "", "")
}

func (s *service) MarkPickedUp(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.loadForDriver(ctx, deliveryID, driverID)
	if err != nil {
		return nil, err
	}
	return s.driverTransition(ctx, delivery, driverID, enums.DeliveryStatusInTransit, "", enums.OrderStatusOutForDelivery)
}

func (s *service) MarkDelivered(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error) {
	delivery, err := s.loadForDriver(ctx, deliveryID, driverID)
	if err != nil {
		return nil, err
	}
	return s.driverTransition(ctx, delivery, driverID, enums.DeliveryStatusDelivered, "", enums.OrderStatusDelivered)
}

func (s *service) MarkFailed(ctx context.Context, deliveryID, driverID uuid.UUID, reason string) (*models.Delivery, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "failure reason is required")
	}
	delivery, err := s.loadForDriver(ctx, deliveryID, driverID)
	if err != nil {
		return nil, err
	}
	return s.driverTransition(ctx, delivery, driverID, enums.DeliveryStatusFailed, reason, "")
}

// driverTransition applies one guarded driver edge, the optional order cascade and
// the status event in a single transaction.
func (s *service) driverTransition(ctx context.Context, delivery *models.Delivery, driverID uuid.UUID, to enums.DeliveryStatus, reason string, cascade enums.OrderStatus) (*models.Delivery, error) {
	now := s.now()
	updates, err := planDriverTransition(delivery.Status, to, now)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	from := delivery.Status

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.DriverTransition(ctx, delivery.ID, driverID, from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivery status")
		}
		if !ok {
			return lostRace(ctx, repo, delivery.ID)
		}
		if cascade != "" {
			if err := s.orders.ApplyDeliveryCascade(ctx, tx, delivery.OrderID, cascade); err != nil {
				return err
			}
		}
		driver := driverID
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryStatusChanged,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   delivery.ID,
			Actor:         &outbox.ActorRef{UserID: driverID, Role: "driver"},
			OccurredAt:    now,
			Data: payloads.DeliveryStatusChangedEvent{
				DeliveryID: delivery.ID,
				OrderID:    delivery.OrderID,
				DriverID:   &driver,
				From:       from,
				To:         to,
				Reason:     reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	updated, err := s.Get(ctx, delivery.ID)
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, updated, "delivery status changed")
	return updated, nil
}

// lostRace reports a guarded update that matched no row.
func lostRace(ctx context.Context, repo Repository, deliveryID uuid.UUID) error {
	current, err := repo.FindByID(ctx, deliveryID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery changed concurrently")
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery changed concurrently").
		WithDetails(map[string]any{"status": string(current.Status)})
}

func (s *service) UpdateLocation(ctx context.Context, input LocationInput) (*models.Delivery, error) {
	if input.Latitude < -90 || input.Latitude > 90 || input.Longitude < -180 || input.Longitude > 180 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}
	delivery, err := s.loadForDriver(ctx, input.DeliveryID, input.DriverID)
	if err != nil {
		return nil, err
	}
	if !isTrackable(delivery.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("Cannot track a %s delivery", delivery.Status))
	}

	now := s.now()
	ok, err := s.repo.UpdateLocation(ctx, delivery.ID, input.DriverID, map[string]any{
		"driver_latitude":            input.Latitude,
		"driver_longitude":           input.Longitude,
		"driver_location_updated_at": now,
		"updated_at":                 now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update driver location")
	}
	if !ok {
		return nil, lostRace(ctx, s.repo, delivery.ID)
	}

	if s.locations != nil {
		update := LocationUpdate{
			DeliveryID: delivery.ID,
			OrderID:    delivery.OrderID,
			DriverID:   input.DriverID,
			Latitude:   input.Latitude,
			Longitude:  input.Longitude,
			RecordedAt: now,
		}
		if err := s.locations.PublishLocation(ctx, update); err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "delivery_id", delivery.ID.String()), "publish driver location failed", err)
		}
	}
	return s.Get(ctx, delivery.ID)
}

func (s *service) Get(ctx context.Context, deliveryID uuid.UUID) (*models.Delivery, error) {
	if deliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id required")
	}
	delivery, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, mapFindError(err)
	}
	return delivery, nil
}

func (s *service) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	delivery, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err)
	}
	return delivery, nil
}

// loadForDriver loads the delivery and rejects callers other than the assigned driver.
func (s *service) loadForDriver(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error) {
	if driverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "driver identity required")
	}
	delivery, err := s.Get(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery.DriverID == nil || *delivery.DriverID != driverID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Delivery is not assigned to this driver")
	}
	return delivery, nil
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Delivery not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
}

func (s *service) logInfo(ctx context.Context, delivery *models.Delivery, msg string) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithOrderID(ctx, delivery.OrderID.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"delivery_id": delivery.ID.String(),
		"status":      string(delivery.Status),
	})
	s.logg.Info(ctx, msg)
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
