package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	var c AppConfig
	applyDefaults(&c)

	if c.AppPort != "8080" {
		t.Errorf("AppPort default = %q", c.AppPort)
	}
	if c.OracleMaxRetries != 5 {
		t.Errorf("OracleMaxRetries default = %d", c.OracleMaxRetries)
	}
	if c.OracleFailClosed {
		t.Error("intake must default to fail-open")
	}
	if c.AdminUsername != "anyrate" || c.AdminPassword != "anyrate@6677" {
		t.Errorf("admin defaults = %q / %q", c.AdminUsername, c.AdminPassword)
	}
	if len(c.AllowedOrigins) != 1 || c.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins default = %v", c.AllowedOrigins)
	}
}

func TestJSONConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"app": {"AppPort": "9090", "RateLimitPerMinute": 120},
		"oracle": {"Model": "test-model", "FailClosed": true},
		"admin": {"Username": "ops", "Password": "secret"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var c AppConfig
	if err := loadJSONConfig(path, &c); err != nil {
		t.Fatalf("loadJSONConfig failed: %v", err)
	}
	applyDefaults(&c)

	if c.AppPort != "9090" {
		t.Errorf("AppPort = %q", c.AppPort)
	}
	if c.RateLimitPerMinute != 120 {
		t.Errorf("RateLimitPerMinute = %d", c.RateLimitPerMinute)
	}
	if c.OracleModel != "test-model" {
		t.Errorf("OracleModel = %q", c.OracleModel)
	}
	if !c.OracleFailClosed {
		t.Error("FailClosed from JSON lost")
	}
	if c.AdminUsername != "ops" || c.AdminPassword != "secret" {
		t.Errorf("admin overrides lost: %q / %q", c.AdminUsername, c.AdminPassword)
	}
}

func TestLoadJSONConfigMissingFileIsFine(t *testing.T) {
	var c AppConfig
	if err := loadJSONConfig(filepath.Join(t.TempDir(), "absent.json"), &c); err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
}

func TestEnvOverridesBeatJSON(t *testing.T) {
	t.Setenv("APP_PORT", "7070")
	t.Setenv("ORACLE_FAIL_CLOSED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	var c AppConfig
	applyDefaults(&c)
	applyEnvOverrides(&c)

	if c.AppPort != "7070" {
		t.Errorf("AppPort = %q", c.AppPort)
	}
	if !c.OracleFailClosed {
		t.Error("ORACLE_FAIL_CLOSED not applied")
	}
	if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", c.AllowedOrigins)
	}
}
