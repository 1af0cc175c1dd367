package deliveries

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dishdash-backend/api/middleware"
	internaldeliveries "github.com/angelmondragon/dishdash-backend/internal/deliveries"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type stubDeliveriesService struct {
	createFn   func(ctx context.Context, input internaldeliveries.CreateInput) (*models.Delivery, error)
	assignFn   func(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error)
	acceptFn   func(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error)
	failFn     func(ctx context.Context, deliveryID, driverID uuid.UUID, reason string) (*models.Delivery, error)
	locationFn func(ctx context.Context, input internaldeliveries.LocationInput) (*models.Delivery, error)
}

func (s *stubDeliveriesService) Create(ctx context.Context, input internaldeliveries.CreateInput) (*models.Delivery, error) {
	return s.createFn(ctx, input)
}

func (s *stubDeliveriesService) Assign(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error) {
	return s.assignFn(ctx, deliveryID, driverID)
}

func (s *stubDeliveriesService) Accept(ctx context.Context, deliveryID, driverID uuid.UUID) (*models.Delivery, error) {
	return s.acceptFn(ctx, deliveryID, driverID)
}

func (s *stubDeliveriesService) MarkPickedUp(context.Context, uuid.UUID, uuid.UUID) (*models.Delivery, error) {
	return nil, nil
}

func (s *stubDeliveriesService) MarkDelivered(context.Context, uuid.UUID, uuid.UUID) (*models.Delivery, error) {
	return nil, nil
}

func (s *stubDeliveriesService) MarkFailed(ctx context.Context, deliveryID, driverID uuid.UUID, reason string) (*models.Delivery, error) {
	return s.failFn(ctx, deliveryID, driverID, reason)
}

func (s *stubDeliveriesService) UpdateLocation(ctx context.Context, input internaldeliveries.LocationInput) (*models.Delivery, error) {
	return s.locationFn(ctx, input)
}

func (s *stubDeliveriesService) Get(context.Context, uuid.UUID) (*models.Delivery, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Delivery not found")
}

func (s *stubDeliveriesService) GetByOrder(context.Context, uuid.UUID) (*models.Delivery, error) {
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func driverRequest(body string, driverID, deliveryID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	ctx := middleware.WithUserID(req.Context(), driverID.String())
	ctx = middleware.WithRole(ctx, enums.RoleDriver)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("deliveryId", deliveryID.String())
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rc))
}

func TestAcceptUsesCallerAsDriver(t *testing.T) {
	driverID := uuid.New()
	deliveryID := uuid.New()
	svc := &stubDeliveriesService{acceptFn: func(_ context.Context, did, drv uuid.UUID) (*models.Delivery, error) {
		assert.Equal(t, deliveryID, did)
		assert.Equal(t, driverID, drv)
		return &models.Delivery{ID: did, DriverID: &drv, Status: enums.DeliveryStatusAccepted}, nil
	}}

	resp := httptest.NewRecorder()
	Accept(svc, testLogger())(resp, driverRequest("", driverID, deliveryID))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAcceptByOtherDriverIsForbidden(t *testing.T) {
	svc := &stubDeliveriesService{acceptFn: func(context.Context, uuid.UUID, uuid.UUID) (*models.Delivery, error) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Delivery is not assigned to this driver")
	}}

	resp := httptest.NewRecorder()
	Accept(svc, testLogger())(resp, driverRequest("", uuid.New(), uuid.New()))
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestDetailNotFound(t *testing.T) {
	resp := httptest.NewRecorder()
	Detail(&stubDeliveriesService{}, testLogger())(resp, driverRequest("", uuid.New(), uuid.New()))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestLocationRequiresCoordinates(t *testing.T) {
	svc := &stubDeliveriesService{locationFn: func(context.Context, internaldeliveries.LocationInput) (*models.Delivery, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}

	resp := httptest.NewRecorder()
	Location(svc, testLogger())(resp, driverRequest(`{"latitude": 40.7}`, uuid.New(), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestLocationAcceptsZeroCoordinates(t *testing.T) {
	var captured internaldeliveries.LocationInput
	svc := &stubDeliveriesService{locationFn: func(_ context.Context, input internaldeliveries.LocationInput) (*models.Delivery, error) {
		captured = input
		return &models.Delivery{ID: input.DeliveryID, Status: enums.DeliveryStatusInTransit}, nil
	}}

	resp := httptest.NewRecorder()
	Location(svc, testLogger())(resp, driverRequest(`{"latitude": 0, "longitude": -73.98}`, uuid.New(), uuid.New()))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0.0, captured.Latitude)
	assert.Equal(t, -73.98, captured.Longitude)
}

func TestFailedPassesReason(t *testing.T) {
	svc := &stubDeliveriesService{failFn: func(_ context.Context, _, _ uuid.UUID, reason string) (*models.Delivery, error) {
		assert.Equal(t, "customer unreachable", reason)
		return &models.Delivery{Status: enums.DeliveryStatusFailed}, nil
	}}

	resp := httptest.NewRecorder()
	Failed(svc, testLogger())(resp, driverRequest(`{"reason":"customer unreachable"}`, uuid.New(), uuid.New()))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAssignConflictMapsTo422(t *testing.T) {
	svc := &stubDeliveriesService{assignFn: func(context.Context, uuid.UUID, uuid.UUID) (*models.Delivery, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "Delivery is already assigned")
	}}

	resp := httptest.NewRecorder()
	body := `{"driver_id":"` + uuid.NewString() + `"}`
	Assign(svc, testLogger())(resp, driverRequest(body, uuid.New(), uuid.New()))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
