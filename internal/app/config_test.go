package app

import (
	"testing"
	"time"

	internaldb "assesscore/internal/db"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"DB_DRIVER", "DB_DSN", "HTTP_ADDR", "SUBMIT_TX_TIMEOUT_SECONDS", "CORS_ALLOWED_ORIGINS", "DB_AUTO_MIGRATE"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBDriver != internaldb.DriverPostgres {
		t.Fatalf("expected postgres driver, got %q", cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		t.Fatalf("expected default postgres dsn")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.HTTPAddr)
	}
	if cfg.SubmitTxTimeout != 10*time.Second {
		t.Fatalf("expected 10s tx timeout, got %s", cfg.SubmitTxTimeout)
	}
	if cfg.DBAutoMigrate {
		t.Fatalf("auto migrate should default off for postgres")
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", "")
	t.Setenv("DB_AUTO_MIGRATE", "")
	t.Setenv("SUBMIT_TX_TIMEOUT_SECONDS", "3")
	t.Setenv("SUBMIT_RATE_LIMIT_PER_MINUTE", "-4")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example, ,https://b.example ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBDriver != internaldb.DriverSQLite || cfg.DBDSN != "" {
		t.Fatalf("expected sqlite with empty dsn, got %q %q", cfg.DBDriver, cfg.DBDSN)
	}
	if !cfg.DBAutoMigrate {
		t.Fatalf("auto migrate should default on for sqlite")
	}
	if cfg.SubmitTxTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.SubmitTxTimeout)
	}
	if cfg.SubmitRateLimitPerMin != 30 {
		t.Fatalf("negative limit should fall back to 30, got %d", cfg.SubmitRateLimitPerMin)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestBoolOrDefault(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{raw: "", want: true},
		{raw: "off", want: false},
		{raw: "YES", want: true},
		{raw: "maybe", want: true},
	}
	for _, tc := range tests {
		t.Setenv("ASSESS_FLAG", tc.raw)
		if got := boolOrDefault("ASSESS_FLAG", true); got != tc.want {
			t.Fatalf("raw %q: expected %v, got %v", tc.raw, tc.want, got)
		}
	}
}
