package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentMethod(t *testing.T) {
	method, err := ParsePaymentMethod("CARD")
	require.NoError(t, err)
	assert.True(t, method.UsesGateway())

	method, err = ParsePaymentMethod("CASH")
	require.NoError(t, err)
	assert.False(t, method.UsesGateway())

	_, err = ParsePaymentMethod("card")
	require.Error(t, err)
	assert.False(t, PaymentMethod("CRYPTO").UsesGateway())
}

func TestOutboxEnums(t *testing.T) {
	for _, reason := range []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUnroutable} {
		assert.True(t, reason.IsValid(), reason)
	}
	assert.False(t, OutboxDLQErrorReason("timeout").IsValid())

	eventType, err := ParseOutboxEventType("order_paid")
	require.NoError(t, err)
	assert.Equal(t, EventOrderPaid, eventType)
	_, err = ParseOutboxAggregateType("menu")
	require.Error(t, err)
}
