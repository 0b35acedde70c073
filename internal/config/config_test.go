package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.DBHost != "localhost" || cfg.DBPort != "5432" {
		t.Fatalf("unexpected database defaults: %s:%s", cfg.DBHost, cfg.DBPort)
	}
	if cfg.PasswordMinLength != 8 {
		t.Fatalf("PasswordMinLength = %d, want 8", cfg.PasswordMinLength)
	}
	if cfg.MaxLoginAttempts != 5 {
		t.Fatalf("MaxLoginAttempts = %d, want 5", cfg.MaxLoginAttempts)
	}
	if cfg.LockoutDuration != 15*time.Minute {
		t.Fatalf("LockoutDuration = %v, want 15m", cfg.LockoutDuration)
	}
	if cfg.TranscriptionModel != "whisper-1" {
		t.Fatalf("TranscriptionModel = %q", cfg.TranscriptionModel)
	}
	if cfg.AudioDir != filepath.Join("data", "audio") {
		t.Fatalf("AudioDir = %q", cfg.AudioDir)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("LOCKOUT_DURATION", "30m")
	t.Setenv("SUMMARY_TEMPERATURE", "0.7")
	t.Setenv("DATA_DIR", "/var/lib/casevault")

	cfg := Load()

	if cfg.MaxLoginAttempts != 3 {
		t.Fatalf("MaxLoginAttempts = %d, want 3", cfg.MaxLoginAttempts)
	}
	if cfg.LockoutDuration != 30*time.Minute {
		t.Fatalf("LockoutDuration = %v, want 30m", cfg.LockoutDuration)
	}
	if cfg.SummaryTemperature != 0.7 {
		t.Fatalf("SummaryTemperature = %v, want 0.7", cfg.SummaryTemperature)
	}
	if cfg.AudioDir != filepath.Join("/var/lib/casevault", "audio") {
		t.Fatalf("AudioDir = %q", cfg.AudioDir)
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("MAX_LOGIN_ATTEMPTS", "lots")
	t.Setenv("LOCKOUT_DURATION", "soon")

	cfg := Load()

	if cfg.MaxLoginAttempts != 5 {
		t.Fatalf("MaxLoginAttempts = %d, want fallback 5", cfg.MaxLoginAttempts)
	}
	if cfg.LockoutDuration != 15*time.Minute {
		t.Fatalf("LockoutDuration = %v, want fallback 15m", cfg.LockoutDuration)
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: "5433", DBUser: "svc",
		DBPassword: "pw", DBName: "casevault", DBSSLMode: "require",
	}
	want := "host=db user=svc password=pw dbname=casevault port=5433 sslmode=require TimeZone=UTC"
	if got := cfg.DSN(); got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}
