package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if cfg.NearExpiryDays != 30 || cfg.CacheTTLSeconds != 30 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ExpiryScanCron != "0 6 * * *" {
		t.Fatalf("unexpected cron default %q", cfg.ExpiryScanCron)
	}
}

func TestLoadClampsNonPositiveValues(t *testing.T) {
	t.Setenv("NEAR_EXPIRY_DAYS", "0")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NearExpiryDays != 30 {
		t.Fatalf("expected near expiry days reset to 30, got %d", cfg.NearExpiryDays)
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Fatalf("expected rate limit reset to 120, got %d", cfg.RateLimitPerMinute)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed REDIS_DB")
	}
}
