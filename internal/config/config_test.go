package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("SCORING_POLICY", "prorated")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
	if cfg.Scoring.Policy != "prorated" {
		t.Errorf("Scoring.Policy = %q, want prorated", cfg.Scoring.Policy)
	}
	if cfg.Streak.MaxAttempts != 3 {
		t.Errorf("Streak.MaxAttempts = %d, want 3", cfg.Streak.MaxAttempts)
	}
}

func TestLoadReadsYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("server:\n  port: \"9090\"\nstreak:\n  timezone: America/New_York\njwt:\n  secret: file-secret\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Streak.Timezone != "America/New_York" {
		t.Errorf("Streak.Timezone = %q, want America/New_York", cfg.Streak.Timezone)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			JWT:     JWTConfig{Secret: "s"},
			Scoring: ScoringConfig{Policy: "strict"},
			Streak:  StreakConfig{Timezone: "UTC", MaxAttempts: 3},
			Store:   StoreConfig{Driver: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bad policy", func(c *Config) { c.Scoring.Policy = "lenient" }, true},
		{"bad driver", func(c *Config) { c.Store.Driver = "mongo" }, true},
		{"bad timezone", func(c *Config) { c.Streak.Timezone = "Mars/Olympus" }, true},
		{"zero attempts", func(c *Config) { c.Streak.MaxAttempts = 0 }, true},
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }, true},
	}

	for _, tt := range tests {
		cfg := base()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	want := "host=h port=5432 user=u password=p dbname=n sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
