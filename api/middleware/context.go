package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/auth"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

type contextKey int

const (
	principalKey contextKey = iota
	requestIDKey
)

// PrincipalFromContext returns the caller set by Auth.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok
}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// UserIDFromContext returns the caller's user id, or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := UserUUIDFromContext(ctx); ok {
		return id.String()
	}
	return ""
}

func UserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == uuid.Nil {
		return uuid.Nil, false
	}
	return p.UserID, true
}

func RoleFromContext(ctx context.Context) enums.Role {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}

// WithUserID sets the caller's user id, keeping any role already present.
// Malformed ids leave the caller anonymous.
func WithUserID(ctx context.Context, userID string) context.Context {
	p, _ := PrincipalFromContext(ctx)
	p.UserID, _ = uuid.Parse(userID)
	return withPrincipal(ctx, p)
}

// WithRole sets the caller's role, keeping any user id already present.
func WithRole(ctx context.Context, role enums.Role) context.Context {
	p, _ := PrincipalFromContext(ctx)
	p.Role = role
	return withPrincipal(ctx, p)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
