package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_SOURCE", "postgres://localhost/factormart_test")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ADMIN_ACCOUNT_ID", "1")
	t.Setenv("ESCROW_ACCOUNT_ID", "2")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(250), cfg.DefaultFeeRateBps)
	assert.Equal(t, int64(100), cfg.DefaultMinDiscountBps)
	assert.Equal(t, int64(5000), cfg.DefaultMaxDiscountBps)
	assert.Equal(t, int64(1), cfg.AdminAccount)
}

func TestLoadRejectsOutOfBoundsSeeds(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"fee rate above cap", "DEFAULT_FEE_RATE_BPS", "1001"},
		{"negative fee rate", "DEFAULT_FEE_RATE_BPS", "-1"},
		{"max discount above cap", "DEFAULT_MAX_DISCOUNT_BPS", "5001"},
		{"min not below max", "DEFAULT_MIN_DISCOUNT_BPS", "5000"},
		{"negative min discount", "DEFAULT_MIN_DISCOUNT_BPS", "-1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsBadHeightBase(t *testing.T) {
	setRequired(t)
	t.Setenv("HEIGHT_BASE", "not-a-timestamp")

	_, err := Load()
	assert.Error(t, err)
}
