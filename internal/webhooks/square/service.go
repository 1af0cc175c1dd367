package squarewebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/angelmondragon/dishdash-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

// SignatureHeader carries the base64 HMAC-SHA256 of notification URL + body.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

type reconciler interface {
	ReconcileGatewayEvent(ctx context.Context, intentID string) (*payments.ProcessResult, error)
}

type ServiceParams struct {
	Payments reconciler
	Logger   *logger.Logger
}

// Service reconciles local payment records with Square payment and refund events.
type Service struct {
	payments reconciler
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

type SquareWebhookEvent struct {
	MerchantID string            `json:"merchant_id"`
	EventID    string            `json:"event_id"`
	Type       string            `json:"type"`
	CreatedAt  string            `json:"created_at"`
	Data       SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment,omitempty"`
	Refund  *SquareRefund  `json:"refund,omitempty"`
}

type SquarePayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
}

type SquareRefund struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
}

// HandleEvent processes Square payment / refund events. Unknown event types and
// payments that do not belong to this platform are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	var paymentID string
	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		if event.Data.Object.Payment == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
		}
		paymentID = event.Data.Object.Payment.ID
	case "refund.created", "refund.updated":
		if event.Data.Object.Refund == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund payload missing")
		}
		paymentID = event.Data.Object.Refund.PaymentID
	default:
		return nil
	}
	if strings.TrimSpace(paymentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}

	result, err := s.payments.ReconcileGatewayEvent(ctx, paymentID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			s.info(ctx, event, paymentID, "square event for unknown payment ignored")
			return nil
		}
		return err
	}
	if s.logg != nil && result != nil && result.Payment != nil {
		ctx = s.logg.WithOrderID(ctx, result.Payment.OrderID.String())
		s.info(ctx, event, paymentID, "payment reconciled from square event: "+string(result.Payment.Status))
	}
	return nil
}

func (s *Service) info(ctx context.Context, event *SquareWebhookEvent, paymentID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"square_event_id":   event.EventID,
		"square_event_type": event.Type,
		"payment_intent_id": paymentID,
	}), msg)
}

// ValidSignature checks the signature Square computes over the subscription's
// notification URL followed by the raw body.
func ValidSignature(body []byte, notificationURL, signatureKey, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || signatureKey == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
