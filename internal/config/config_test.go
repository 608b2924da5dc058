package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GRPC_ENDPOINT", "JSONRPC_ENDPOINT", "ADDRESS", "ED25519_SECRET_HEX",
		"MAX_INFLIGHT", "SPONSORSHIP__SPONSOR_ADDRESS", "SPONSORSHIP__SPONSOR_KEY_HEX",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadRequiresAddress(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRPC_ENDPOINT", "https://fullnode.example:443")
	t.Setenv("ED25519_SECRET_HEX", "aa")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADDRESS is required")
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRPC_ENDPOINT", "https://fullnode.example:443")
	t.Setenv("ADDRESS", "0xabc")
	t.Setenv("ED25519_SECRET_HEX", "aa")
	t.Setenv("MAX_INFLIGHT", "128")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.MaxInflight)
	assert.Equal(t, 200, cfg.RatePerSec)
	assert.Nil(t, cfg.Sponsorship)
}

func TestLoadSponsorshipRequiresKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRPC_ENDPOINT", "https://fullnode.example:443")
	t.Setenv("ADDRESS", "0xabc")
	t.Setenv("ED25519_SECRET_HEX", "aa")
	t.Setenv("SPONSORSHIP__SPONSOR_ADDRESS", "0xdef")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPONSOR_KEY_HEX")
}

func TestLoadSponsorshipDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRPC_ENDPOINT", "https://fullnode.example:443")
	t.Setenv("ADDRESS", "0xabc")
	t.Setenv("ED25519_SECRET_HEX", "aa")
	t.Setenv("SPONSORSHIP__SPONSOR_ADDRESS", "0xdef")
	t.Setenv("SPONSORSHIP__SPONSOR_KEY_HEX", "bb")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg.Sponsorship)
	assert.Equal(t, uint64(1_000_000_000), cfg.Sponsorship.PerUserBudget)
	assert.Equal(t, time.Hour, cfg.Sponsorship.BudgetWindow)
}
