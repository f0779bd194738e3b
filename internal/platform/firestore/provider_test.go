package firestore

import (
	"testing"
	"time"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/config"
)

func TestProviderTransactionDefaults(t *testing.T) {
	p := NewProvider(config.FirestoreConfig{ProjectID: "trophy-store"},
		WithTransactionDefaults(WithTxAttempts(3), WithTxTimeout(8*time.Second)),
	)

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range p.transactionOptions([]TxOption{WithTxAttempts(7)}) {
		opt(&cfg)
	}
	if cfg.attempts != 7 {
		t.Fatalf("expected per-call attempts to win, got %d", cfg.attempts)
	}
	if cfg.timeout != 8*time.Second {
		t.Fatalf("expected default timeout 8s, got %s", cfg.timeout)
	}
}

func TestProviderTransactionDefaultsIgnoreZeroValues(t *testing.T) {
	p := NewProvider(config.FirestoreConfig{ProjectID: "trophy-store"},
		WithTransactionDefaults(WithTxAttempts(0), WithTxTimeout(0)),
	)

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range p.transactionOptions(nil) {
		opt(&cfg)
	}
	if cfg.attempts != defaultTxAttempts || cfg.timeout != defaultTxTimeout {
		t.Fatalf("expected built-in defaults, got %+v", cfg)
	}
}
