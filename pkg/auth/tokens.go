// Package auth signs and verifies the HS256 access tokens issued to
// customers, staff, drivers and dispatchers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

const clockSkew = 30 * time.Second

var (
	ErrMisconfigured = errors.New("token signing is not configured")
	ErrExpired       = errors.New("token expired")
	ErrInvalid       = errors.New("token invalid")
)

var signingMethod = jwt.SigningMethodHS256

// Claims identify the caller. The subject carries the user id.
type Claims struct {
	Role enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the verified identity behind a request.
type Principal struct {
	UserID  uuid.UUID
	Role    enums.Role
	TokenID string
}

// Tokens mints and verifies access tokens for one issuer.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(cfg config.JWTConfig) *Tokens {
	return &Tokens{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.Expiration(),
		now:    time.Now,
	}
}

func (t *Tokens) configured() bool {
	return len(t.secret) > 0 && t.issuer != "" && t.ttl > 0
}

// Mint issues a token for userID acting as role.
func (t *Tokens) Mint(userID uuid.UUID, role enums.Role) (string, error) {
	if !t.configured() {
		return "", ErrMisconfigured
	}
	if userID == uuid.Nil {
		return "", fmt.Errorf("user id is required")
	}
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role %q", role)
	}

	now := t.now().UTC()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the caller. Every
// rejection wraps ErrExpired or ErrInvalid.
func (t *Tokens) Verify(raw string) (Principal, error) {
	if len(t.secret) == 0 {
		return Principal{}, ErrMisconfigured
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(t.now),
	)
	var claims Claims
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrExpired
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return Principal{}, fmt.Errorf("%w: subject is not a user id", ErrInvalid)
	}
	if !claims.Role.IsValid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalid, claims.Role)
	}
	return Principal{UserID: userID, Role: claims.Role, TokenID: claims.ID}, nil
}
