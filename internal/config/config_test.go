package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("CRDB_DSN", "postgresql://root@localhost:26257/tickets?sslmode=disable")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TICKET_CODE_LENGTH", "8")
	t.Setenv("IDEMPOTENCY_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.TicketCodeLength != 8 {
		t.Errorf("expected code length 8, got %d", cfg.TicketCodeLength)
	}
	if cfg.IdempotencyTTL != 30*time.Minute {
		t.Errorf("expected idempotency ttl 30m, got %v", cfg.IdempotencyTTL)
	}
	if cfg.IdempotencyLockTTL != 30*time.Second {
		t.Errorf("expected default idempotency lock ttl 30s, got %v", cfg.IdempotencyLockTTL)
	}
	if cfg.RateLimitPerMinute != 60 {
		t.Errorf("expected default rate limit 60, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.TicketCodePrefix != "TKT-" {
		t.Errorf("expected default prefix TKT-, got %q", cfg.TicketCodePrefix)
	}
}

func TestLoad_RequiresDSNAndSecret(t *testing.T) {
	t.Setenv("CRDB_DSN", "")
	t.Setenv("JWT_SECRET", "secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without CRDB_DSN")
	}

	t.Setenv("CRDB_DSN", "postgresql://root@localhost:26257/tickets")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestLoad_RejectsShortTicketCodes(t *testing.T) {
	t.Setenv("CRDB_DSN", "postgresql://root@localhost:26257/tickets")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("TICKET_CODE_LENGTH", "2")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short ticket codes")
	}
}
