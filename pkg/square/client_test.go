package square

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
)

func TestEnsureIdempotencyKey(t *testing.T) {
	c := &Client{}
	// Provided key should be used verbatim.
	if got := c.ensureIdempotencyKey("pref", "custom-key"); got != "custom-key" {
		t.Fatalf("expected provided key, got %q", got)
	}
	// Empty key should be generated and include the operation tag.
	if got := c.ensureIdempotencyKey("refund", ""); !strings.HasPrefix(got, "refund-") {
		t.Fatalf("generated idempotency key %q missing tag", got)
	}
}

func TestRedact(t *testing.T) {
	c := &Client{}
	out := c.redact("payment_token", "abc123")
	if out != "[REDACTED]" {
		t.Fatalf("expected redacted value, got %v", out)
	}
	// Non-sensitive keys should be preserved.
	if v := c.redact("status", "ok"); v != "ok" {
		t.Fatalf("unexpected redaction for safe key")
	}
}

func TestDomainCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusForbidden, pkgerrors.CodeForbidden},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusTooManyRequests, pkgerrors.CodeRateLimit},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusUnprocessableEntity, pkgerrors.CodeStateConflict},
		{http.StatusPaymentRequired, pkgerrors.CodeBusinessRule},
		{http.StatusInternalServerError, pkgerrors.CodeExternalService},
	}
	for _, tt := range tests {
		if got := domainCodeForStatus(tt.status); got != tt.code {
			t.Fatalf("status %d expected %s got %s", tt.status, tt.code, got)
		}
	}
}

func TestMapSquareError(t *testing.T) {
	c := &Client{}
	table := []struct {
		name     string
		status   int
		payload  string
		wantCode pkgerrors.Code
	}{
		{
			name:     "authentication error",
			status:   http.StatusUnauthorized,
			payload:  `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`,
			wantCode: pkgerrors.CodeUnauthorized,
		},
		{
			name:     "card declined",
			status:   http.StatusBadRequest,
			payload:  `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"GENERIC_DECLINE","detail":"Authorization error: 'GENERIC_DECLINE'"}]}`,
			wantCode: pkgerrors.CodeBusinessRule,
		},
		{
			name:     "idempotency key reused",
			status:   http.StatusConflict,
			payload:  `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`,
			wantCode: pkgerrors.CodeIdempotency,
		},
	}
	for _, tt := range table {
		err := sqcore.NewAPIError(tt.status, errors.New(tt.payload))
		mapped := c.mapSquareError(err, "operation")
		if mapped == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		typed := pkgerrors.As(mapped)
		if typed == nil {
			t.Fatalf("%s: result is not pkgerror", tt.name)
		}
		if typed.Code() != tt.wantCode {
			t.Fatalf("%s: expected code %s, got %s", tt.name, tt.wantCode, typed.Code())
		}
	}
}

func TestExtractSquareErrors(t *testing.T) {
	c := &Client{}
	payload := `{"errors":[{"category":"API_ERROR","code":"BAD_REQUEST","detail":"oops"}]}`
	apiErr := sqcore.NewAPIError(http.StatusBadRequest, errors.New(payload))
	got := c.extractSquareErrors(apiErr)
	if len(got) != 1 {
		t.Fatalf("expected 1 error, got %d", len(got))
	}
	if got[0].GetCode() != sq.ErrorCodeBadRequest {
		t.Fatalf("unexpected error code %s", got[0].GetCode())
	}
}

func TestMapSquareErrorAttachesDetail(t *testing.T) {
	c := &Client{}
	payload := `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CVV_FAILURE","detail":"Card verification failed"}]}`
	mapped := c.mapSquareError(sqcore.NewAPIError(http.StatusBadRequest, errors.New(payload)), "create payment")

	detail, ok := ErrorDetailFrom(mapped)
	if !ok {
		t.Fatalf("expected square detail on mapped error")
	}
	if detail.Detail != "Card verification failed" || detail.Code != "CVV_FAILURE" {
		t.Fatalf("unexpected detail %+v", detail)
	}
}

func TestMapSquareErrorTimeout(t *testing.T) {
	c := &Client{}
	mapped := c.mapSquareError(fmt.Errorf("post payments: %w", context.DeadlineExceeded), "create payment")
	if !errors.Is(mapped, ErrRequestTimeout) {
		t.Fatalf("expected timeout sentinel, got %v", mapped)
	}
	if typed := pkgerrors.As(mapped); typed == nil || typed.Code() != pkgerrors.CodeExternalService {
		t.Fatalf("expected external service code, got %v", mapped)
	}
}

func TestPaymentParamsToSquareRequest(t *testing.T) {
	req := PaymentCreateParams{
		AmountCents: 2599,
		SourceID:    "cnon:card-nonce-ok",
		LocationID:  "L1",
		ReferenceID: "order-1",
	}.toSquareRequest("dd-key")

	if req.IdempotencyKey != "dd-key" {
		t.Fatalf("unexpected idempotency key %q", req.IdempotencyKey)
	}
	if req.Autocomplete == nil || *req.Autocomplete {
		t.Fatalf("expected explicit autocomplete=false")
	}
	if req.CustomerID != nil {
		t.Fatalf("expected empty customer to be omitted")
	}
	if req.AmountMoney == nil || *req.AmountMoney.Amount != 2599 || string(*req.AmountMoney.Currency) != "USD" {
		t.Fatalf("unexpected amount money %+v", req.AmountMoney)
	}
	if req.ReferenceID == nil || *req.ReferenceID != "order-1" {
		t.Fatalf("expected reference id to carry the order")
	}
}

func TestNewIdempotencyKey(t *testing.T) {
	if got := NewIdempotencyKey(" "); !strings.HasPrefix(got, "dd-") {
		t.Fatalf("expected dd tag, got %q", got)
	}
	if got := NewIdempotencyKey("Refund.Create"); !strings.HasPrefix(got, "refundcreate-") {
		t.Fatalf("expected sanitized tag, got %q", got)
	}
	long := NewIdempotencyKey("customer-profile-backfill")
	if len(long) > maxIdempotencyKeyLen {
		t.Fatalf("key %q exceeds square limit", long)
	}
	if NewIdempotencyKey("payment") == NewIdempotencyKey("payment") {
		t.Fatalf("expected unique keys")
	}
}

func TestCustomerCreateKeyIsStablePerDiner(t *testing.T) {
	ref := "2b1f7c7e-9d44-4a8e-a7f5-0d7d3c1f2e11"
	if got := customerCreateKey(ref); got != "cust-"+ref {
		t.Fatalf("unexpected key %q", got)
	}
	if got := customerCreateKey(" " + ref + " "); got != "cust-"+ref {
		t.Fatalf("expected trimmed reference, got %q", got)
	}
	if got := customerCreateKey(strings.Repeat("x", 80)); len(got) != maxIdempotencyKeyLen {
		t.Fatalf("expected key capped at %d, got %d", maxIdempotencyKeyLen, len(got))
	}
}

func TestFindCustomerOnNilClient(t *testing.T) {
	var c *Client
	if _, err := c.FindCustomer(context.Background(), CustomerLookup{Email: "a@b.co"}); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestThrottleDisabledWithoutRate(t *testing.T) {
	c := &Client{limiter: newLimiter(0, 5)}
	if c.limiter != nil {
		t.Fatalf("expected no limiter for zero rate")
	}
	if err := c.throttle(context.Background(), "get payment"); err != nil {
		t.Fatalf("unexpected throttle error: %v", err)
	}
}

func TestThrottleStopsOnCancelledContext(t *testing.T) {
	c := &Client{limiter: newLimiter(0.001, 1)}
	if err := c.throttle(context.Background(), "get payment"); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.throttle(ctx, "get payment")
	if !pkgerrors.IsCode(err, pkgerrors.CodeExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}
