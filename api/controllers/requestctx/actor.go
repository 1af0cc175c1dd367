package requestctx

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/api/middleware"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
)

// UserID extracts the authenticated caller.
func UserID(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context required")
	}
	return id, nil
}

// Actor builds the order actor for ownership checks. Staff, dispatchers and
// admins act on any order.
func Actor(r *http.Request) (*orders.Actor, error) {
	id, err := UserID(r)
	if err != nil {
		return nil, err
	}
	role := middleware.RoleFromContext(r.Context())
	return &orders.Actor{
		UserID: id,
		Role:   string(role),
		Staff:  middleware.IsStaffRole(role),
	}, nil
}
