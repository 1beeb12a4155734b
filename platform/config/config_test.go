package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/deals")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoadAppliesDealDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GetDedupeWindowDays() != 30 {
		t.Fatalf("expected dedupe window 30, got %d", cfg.GetDedupeWindowDays())
	}
	if cfg.GetStateChangeTTL() != 24*time.Hour {
		t.Fatalf("expected state TTL 24h, got %s", cfg.GetStateChangeTTL())
	}
	if cfg.GetViewedTTL() != time.Hour {
		t.Fatalf("expected viewed TTL 1h, got %s", cfg.GetViewedTTL())
	}
	if cfg.GetFollowUpHorizon() != 24*time.Hour {
		t.Fatalf("expected follow-up horizon 24h, got %s", cfg.GetFollowUpHorizon())
	}
	if cfg.GetIdempotencyBackend() != BackendRedis {
		t.Fatalf("expected redis backend, got %q", cfg.GetIdempotencyBackend())
	}
	if cfg.GetAsynqEventsQueueName() != "deals.events" {
		t.Fatalf("expected events queue deals.events, got %q", cfg.GetAsynqEventsQueueName())
	}
}

func TestLoadRejectsSharedEventsQueue(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ASYNQ_QUEUE", "deals")
	t.Setenv("ASYNQ_EVENTS_QUEUE", "deals")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when relayed events share the worker queue")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IDEMPOTENCY_BACKEND", "memcached")

	if _, err := Load(); err == nil {
		t.Fatal("expected unknown backend to be rejected")
	}
}

func TestLoadRequiresMongoURIForMongoBackend(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IDEMPOTENCY_BACKEND", "mongo")
	t.Setenv("MONGODB_URI", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing MONGODB_URI to be rejected")
	}
}

func TestLoadRejectsNonPositiveWindow(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DEALS_DEDUPE_WINDOW_DAYS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected zero dedupe window to be rejected")
	}
}

func TestSplitCSVTrimsEmptyParts(t *testing.T) {
	got := splitCSV(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected split result %#v", got)
	}
}
