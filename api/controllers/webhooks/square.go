package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/dishdash-backend/api/responses"
	squarewebhook "github.com/angelmondragon/dishdash-backend/internal/webhooks/square"
	"github.com/angelmondragon/dishdash-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

// SquareConsumer scopes webhook dedupe keys.
const SquareConsumer = "square-webhooks"

const maxWebhookBody = 1 << 20

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

type SquareWebhookGuard interface {
	CheckAndMarkKey(ctx context.Context, consumer, id string) (bool, error)
	DeleteKey(ctx context.Context, consumer, id string) error
}

type webhookAck struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
	Ignored   bool `json:"ignored,omitempty"`
}

// SquareWebhook reconciles local payments from Square payment and refund
// notifications. Each event id is applied once. Failures Square could fix by
// retrying release the mark and answer 5xx; permanent failures are
// acknowledged so Square stops redelivering.
func SquareWebhook(svc SquareWebhookService, cfg config.SquareConfig, guard SquareWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square webhook is not configured"))
			return
		}

		event, err := readSignedEvent(w, r, cfg)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		eventID := eventKey(event)
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"event_id": eventID, "event_type": event.Type})
		}

		seen, err := guard.CheckAndMarkKey(ctx, SquareConsumer, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			responses.WriteSuccess(w, webhookAck{Received: true, Duplicate: true})
			return
		}

		err = svc.HandleEvent(ctx, event)
		switch {
		case err == nil:
			if logg != nil {
				logg.Info(ctx, "square.webhook_processed")
			}
			responses.WriteSuccess(w, webhookAck{Received: true})
		case !pkgerrors.IsRetryable(err):
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "square.webhook_ignored")
			}
			responses.WriteSuccess(w, webhookAck{Received: true, Ignored: true})
		default:
			if delErr := guard.DeleteKey(context.WithoutCancel(ctx), SquareConsumer, eventID); delErr != nil && logg != nil {
				logg.Error(ctx, "release webhook mark failed", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
		}
	}
}

// readSignedEvent reads at most maxWebhookBody bytes, checks the Square HMAC
// over notification URL plus body and decodes the event.
func readSignedEvent(w http.ResponseWriter, r *http.Request, cfg config.SquareConfig) (*squarewebhook.SquareWebhookEvent, error) {
	signature := strings.TrimSpace(r.Header.Get(squarewebhook.SignatureHeader))
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing")
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	if !squarewebhook.ValidSignature(payload, cfg.WebhookURL, cfg.WebhookSecret, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature")
	}

	var event squarewebhook.SquareWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event")
	}
	return &event, nil
}

// eventKey prefers Square's event id and falls back to the object id.
func eventKey(event *squarewebhook.SquareWebhookEvent) string {
	if id := strings.TrimSpace(event.EventID); id != "" {
		return id
	}
	return strings.TrimSpace(event.Data.ID)
}
