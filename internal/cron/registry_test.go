package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string                      { return s.name }
func (s *stubJob) Run(context.Context) (int64, error) { return 0, nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	coupons := &stubJob{name: CouponExpiryJobName}
	giftCards := &stubJob{name: GiftCardExpiryJobName}
	registry, err := NewRegistry(coupons, nil, giftCards)
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, coupons, jobs[0])
	assert.Same(t, giftCards, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "callers must not mutate the registry")
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(&stubJob{name: CouponExpiryJobName}, &stubJob{name: CouponExpiryJobName})
	require.Error(t, err)

	registry, err := NewRegistry()
	require.NoError(t, err)
	require.Error(t, registry.Register(&stubJob{name: " "}))
}

func TestRegistryOnly(t *testing.T) {
	registry, err := NewRegistry(
		&stubJob{name: CouponExpiryJobName},
		&stubJob{name: GiftCardExpiryJobName},
		&stubJob{name: OutboxRetentionJobName},
	)
	require.NoError(t, err)

	all, err := registry.Only(nil)
	require.NoError(t, err)
	assert.Len(t, all.Jobs(), 3)

	narrowed, err := registry.Only([]string{OutboxRetentionJobName, " " + CouponExpiryJobName})
	require.NoError(t, err)
	require.Len(t, narrowed.Jobs(), 2)
	assert.Equal(t, CouponExpiryJobName, narrowed.Jobs()[0].Name())
	assert.Equal(t, OutboxRetentionJobName, narrowed.Jobs()[1].Name())

	_, err = registry.Only([]string{"license-expiry"})
	require.Error(t, err)
}
