package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/dishdash-backend/api/responses"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/dishdash-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 128

	replayWindow      = 24 * time.Hour
	moneyReplayWindow = 7 * 24 * time.Hour
	inFlightTTL       = time.Minute
)

// idempotentRoute declares how one mutating route honours Idempotency-Key.
// Path segments written as * match any single segment.
type idempotentRoute struct {
	method   string
	path     string
	ttl      time.Duration
	required bool
}

var idempotentRoutes = []idempotentRoute{
	{http.MethodPost, "/api/v1/orders", replayWindow, false},
	{http.MethodPost, "/api/v1/orders/*/cancel", moneyReplayWindow, false},
	{http.MethodPost, "/api/v1/orders/*/payments", moneyReplayWindow, true},
	{http.MethodPost, "/api/v1/payments/confirm", moneyReplayWindow, false},
	{http.MethodPost, "/api/v1/payments/*/refund", moneyReplayWindow, true},
	{http.MethodPost, "/api/v1/gift-cards/use", moneyReplayWindow, true},
	{http.MethodPost, "/api/v1/notifications/*/read", replayWindow, false},
	{http.MethodPost, "/api/v1/notifications/read-all", replayWindow, false},
	{http.MethodPost, "/api/v1/admin/coupons", replayWindow, true},
	{http.MethodPost, "/api/v1/admin/gift-cards", replayWindow, true},
	{http.MethodPost, "/api/v1/admin/loyalty/*/adjust", replayWindow, true},
}

func lookupIdempotentRoute(method, path string) (idempotentRoute, bool) {
	path = strings.TrimSuffix(path, "/")
	for _, route := range idempotentRoutes {
		if route.method == method && pathMatches(route.path, path) {
			return route, true
		}
	}
	return idempotentRoute{}, false
}

func pathMatches(template, path string) bool {
	want := strings.Split(template, "/")
	got := strings.Split(path, "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != "*" && want[i] != got[i] {
			return false
		}
		if want[i] == "*" && got[i] == "" {
			return false
		}
	}
	return true
}

// storedResponse is what a key maps to in Redis. A record with Status 0 is a
// reservation held while the first request is still running.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	RequestHash string `json:"request_hash"`
}

func (s storedResponse) pending() bool { return s.Status == 0 }

// Idempotency replays the first completed response for a repeated
// Idempotency-Key. Keys are scoped to the caller, method and path; reusing a
// key with a different body is rejected, and 5xx responses are never stored
// so the client may retry them.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := lookupIdempotentRoute(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			switch {
			case clientKey == "" && route.required:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case clientKey == "":
				next.ServeHTTP(w, r)
				return
			case len(clientKey) > maxIdempotencyKey:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path}, "|"), clientKey)

			reservation, _ := json.Marshal(storedResponse{RequestHash: hash})
			reserved, err := store.SetNX(ctx, key, string(reservation), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replay(w, r, store, logg, key, hash)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			var captured bytes.Buffer
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			// the reservation is released on every path; a stored record replaces it
			persistCtx := context.WithoutCancel(ctx)
			if err := store.Del(persistCtx, key); err != nil && logg != nil {
				logg.Error(ctx, "release idempotency reservation", err)
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}
			record, _ := json.Marshal(storedResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
				RequestHash: hash,
			})
			if _, err := store.SetNX(persistCtx, key, string(record), route.ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, logg *logger.Logger, key, hash string) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key reused with a different request body"))
	case stored.pending():
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}
