package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aymanhalloween/smartcard/internal/routing"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "whsec_env")
	t.Setenv("SETTLEMENT_URL", "http://gateway.internal")
	t.Setenv("NETWORK_URL", "http://network.internal")
	t.Setenv("LOG_BACKEND", "mem")
	t.Setenv("SETTLEMENT_TIMEOUT", "1500ms")
	t.Setenv("INSTRUMENT_DINING", "citi_prestige:tok_citi_prestige")

	cfg, err := FromEnv()
	require.NoError(t, err)

	require.Equal(t, "whsec_env", cfg.WebhookSecret)
	require.Equal(t, "http://gateway.internal", cfg.SettlementURL)
	require.Equal(t, "mem", cfg.LogBackend)
	require.Equal(t, 1500*time.Millisecond, cfg.SettlementTimeout)
	require.Equal(t,
		routing.Instrument{ID: "citi_prestige", Token: "tok_citi_prestige"},
		cfg.Instruments[routing.CategoryDining])
	// Untouched categories keep their defaults.
	require.Equal(t, "amex_platinum", cfg.Instruments[routing.CategoryTravel].ID)
}

func TestFromEnv_BadValues(t *testing.T) {
	t.Setenv("SETTLEMENT_TIMEOUT", "soon")
	_, err := FromEnv()
	require.ErrorContains(t, err, "SETTLEMENT_TIMEOUT")
}

func TestFromEnv_BadInstrument(t *testing.T) {
	t.Setenv("INSTRUMENT_FUEL", "no-token-here")
	_, err := FromEnv()
	require.ErrorContains(t, err, "INSTRUMENT_FUEL")
}
