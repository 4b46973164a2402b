package factory

import (
	"testing"

	"github.com/smallbiznis/entitlepool/internal/apperror"
	"github.com/smallbiznis/entitlepool/internal/config"
	"github.com/smallbiznis/entitlepool/internal/pool/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLenientQuantity(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"unlimited", domain.Unlimited},
		{"UNLIMITED", domain.Unlimited},
		{" Unlimited ", domain.Unlimited},
		{"5", 5},
		{"0", 0},
		{"-1", domain.Unlimited},
		{"-7", 0},
		{"abc", 0},
		{"", 0},
		{"1.5", 0},
	}
	for _, tc := range cases {
		got, err := LenientQuantity(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestStrictQuantity(t *testing.T) {
	got, err := StrictQuantity("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), got)

	got, err = StrictQuantity("unlimited")
	require.NoError(t, err)
	assert.Equal(t, domain.Unlimited, got)

	for _, raw := range []string{"abc", "", "-3"} {
		_, err := StrictQuantity(raw)
		assert.ErrorIs(t, err, apperror.ErrBadRequest, raw)
	}
}

func TestPolicyFor(t *testing.T) {
	_, err := PolicyFor(config.QuantityPolicyStrict)("x")
	assert.Error(t, err)

	q, err := PolicyFor(config.QuantityPolicyLenient)("x")
	assert.NoError(t, err)
	assert.Zero(t, q)

	q, err = PolicyFor("")("x")
	assert.NoError(t, err)
	assert.Zero(t, q)
}

func TestFormatQuantityRoundTrips(t *testing.T) {
	for _, q := range []int64{domain.Unlimited, 0, 42} {
		got, err := StrictQuantity(FormatQuantity(q))
		require.NoError(t, err)
		assert.Equal(t, q, got)
	}
}
