package router

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aymanhalloween/smartcard/internal/routing"
)

// Config is the configuration for the router application.
type Config struct {
	HTTPAddr string
	// WebhookSecret signs inbound events. Required.
	WebhookSecret string
	// SignatureTolerance bounds the age of a signed event; zero disables the
	// age check.
	SignatureTolerance time.Duration
	// SettlementURL is the downstream settlement gateway base URL.
	SettlementURL string
	// NetworkURL is the issuing network base URL for approve/decline calls.
	NetworkURL string
	// SettlementTimeout must be shorter than the issuing network's response
	// deadline, leaving margin for the subsequent approve/decline call.
	SettlementTimeout time.Duration
	ResolutionTimeout time.Duration
	// LogBackend selects the decision log: pg, bolt or mem.
	LogBackend string
	DBDSN      string
	BoltPath   string
	// Instruments maps routing categories to payment instruments. Must
	// include a default entry.
	Instruments map[routing.Category]routing.Instrument
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:           "localhost:3001",
		SignatureTolerance: 5 * time.Minute,
		SettlementTimeout:  2 * time.Second,
		ResolutionTimeout:  2 * time.Second,
		LogBackend:         "bolt",
		BoltPath:           "decisions.db",
		Instruments:        routing.DefaultInstruments(),
	}
}

// FromEnv builds a config from the environment on top of defaults.
// Instrument overrides use INSTRUMENT_<CATEGORY>="instrument_id:token".
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	if v := os.Getenv("SETTLEMENT_URL"); v != "" {
		cfg.SettlementURL = v
	}
	if v := os.Getenv("NETWORK_URL"); v != "" {
		cfg.NetworkURL = v
	}
	if v := os.Getenv("LOG_BACKEND"); v != "" {
		cfg.LogBackend = v
	}
	cfg.DBDSN = os.Getenv("DB_DSN")
	if v := os.Getenv("BOLT_PATH"); v != "" {
		cfg.BoltPath = v
	}
	if v := os.Getenv("SETTLEMENT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parsing SETTLEMENT_TIMEOUT: %w", err)
		}
		cfg.SettlementTimeout = d
	}
	if v := os.Getenv("RESOLUTION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parsing RESOLUTION_TIMEOUT: %w", err)
		}
		cfg.ResolutionTimeout = d
	}
	if v := os.Getenv("SIGNATURE_TOLERANCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parsing SIGNATURE_TOLERANCE: %w", err)
		}
		cfg.SignatureTolerance = d
	}

	for _, category := range routing.Categories() {
		key := "INSTRUMENT_" + strings.ToUpper(string(category))
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		id, token, ok := strings.Cut(v, ":")
		if !ok || id == "" || token == "" {
			return nil, fmt.Errorf("%s must be instrument_id:token", key)
		}
		cfg.Instruments[category] = routing.Instrument{ID: id, Token: token}
	}

	return cfg, nil
}
