package api

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"PREP_LISTEN_ADDR", "PREP_DRIVER", "PREP_DB_PATH", "PREP_LONG_POLL_MAX", "PREP_CHANGES_PAGE", "PREP_CORS_ORIGINS", "PREP_TRUSTED_PROXIES"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()
	if cfg.ListenAddr != ":8080" || cfg.DBPath != "./data/prep.db" || cfg.Driver != "sqlite" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.LongPollMax != 30*time.Second || cfg.ChangesPage != 500 {
		t.Fatalf("poll defaults = %v/%d", cfg.LongPollMax, cfg.ChangesPage)
	}
	if len(cfg.TrustedProxies) != 0 {
		t.Fatalf("no proxies should be trusted by default, got %v", cfg.TrustedProxies)
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("PREP_LISTEN_ADDR", ":9999")
	t.Setenv("PREP_LONG_POLL_MAX", "5s")
	t.Setenv("PREP_CHANGES_PAGE", "not-a-number")
	t.Setenv("PREP_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("PREP_TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1")

	cfg := LoadConfig()
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LongPollMax != 5*time.Second {
		t.Errorf("LongPollMax = %v", cfg.LongPollMax)
	}
	if cfg.ChangesPage != 500 {
		t.Errorf("invalid page size should keep default, got %d", cfg.ChangesPage)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("origins = %v", cfg.CORSAllowedOrigins)
	}
	if len(cfg.TrustedProxies) != 2 {
		t.Errorf("trusted proxies = %v", cfg.TrustedProxies)
	}
}
