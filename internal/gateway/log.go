package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

// LogGateway settles every charge in memory. It backs local runs without Square credentials.
type LogGateway struct {
	mu      sync.Mutex
	byKey   map[string]*Intent
	byID    map[string]*Intent
	logg    *logger.Logger
	pending bool
}

// NewLogGateway returns an in-memory gateway. With pending set, new intents wait in
// requires_action until confirmed.
func NewLogGateway(logg *logger.Logger, pending bool) *LogGateway {
	return &LogGateway{
		byKey:   map[string]*Intent{},
		byID:    map[string]*Intent{},
		logg:    logg,
		pending: pending,
	}
}

func (g *LogGateway) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	key := params.IdempotencyKey
	if key == "" {
		key = IdempotencyKey(params.OrderID, params.SourceID, params.AmountCents)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.byKey[key]; ok {
		copied := *existing
		return &copied, nil
	}
	status := IntentSucceeded
	if g.pending {
		status = IntentRequiresAction
	}
	intent := &Intent{
		ID:          "log_" + uuid.NewString(),
		Status:      status,
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
		ReferenceID: params.OrderID.String(),
	}
	g.byKey[key] = intent
	g.byID[intent.ID] = intent
	g.info(ctx, "log gateway intent created", intent)
	copied := *intent
	return &copied, nil
}

func (g *LogGateway) ConfirmIntent(ctx context.Context, intentID, _ string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.byID[intentID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	if intent.Status == IntentRequiresAction {
		intent.Status = IntentSucceeded
		g.info(ctx, "log gateway intent confirmed", intent)
	}
	copied := *intent
	return &copied, nil
}

func (g *LogGateway) RetrieveIntent(_ context.Context, intentID string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.byID[intentID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	copied := *intent
	return &copied, nil
}

func (g *LogGateway) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.byID[params.IntentID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	if params.AmountCents <= 0 || params.AmountCents > intent.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount out of range")
	}
	refund := &Refund{ID: "log_refund_" + uuid.NewString(), Status: "COMPLETED", AmountCents: params.AmountCents}
	if g.logg != nil {
		g.logg.Info(g.logg.WithFields(ctx, map[string]any{"intent_id": intent.ID, "refund_id": refund.ID}), "log gateway refund created")
	}
	return refund, nil
}

func (g *LogGateway) EnsureCustomer(_ context.Context, params CustomerParams) (string, error) {
	return "log_customer_" + params.UserID.String(), nil
}

func (g *LogGateway) info(ctx context.Context, msg string, intent *Intent) {
	if g.logg == nil {
		return
	}
	g.logg.Info(g.logg.WithFields(ctx, map[string]any{
		"intent_id": intent.ID,
		"status":    string(intent.Status),
		"amount":    intent.AmountCents,
	}), msg)
}
