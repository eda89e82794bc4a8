// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Point the file search at an empty directory so a stray config.yaml in
	// the working directory cannot leak into the test.
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.NATS.Stream != "OPPORTUNITIES" {
		t.Errorf("nats.stream = %q", cfg.NATS.Stream)
	}
	if cfg.NATS.MaxRedeliveries != 5 {
		t.Errorf("nats.max_redeliveries = %d, want 5", cfg.NATS.MaxRedeliveries)
	}
	if cfg.NATS.DeadLetterSubject != "opportunity.deadletter" {
		t.Errorf("nats.dead_letter_subject = %q", cfg.NATS.DeadLetterSubject)
	}
	if cfg.API.DefaultPageSize != 20 || cfg.API.MaxPageSize != 50 {
		t.Errorf("page sizes = %d/%d, want 20/50", cfg.API.DefaultPageSize, cfg.API.MaxPageSize)
	}
	if cfg.Mask.ListRadiusKM != 5 || cfg.Mask.MapRadiusKM != 3 {
		t.Errorf("mask radii = %v/%v, want 5/3", cfg.Mask.ListRadiusKM, cfg.Mask.MapRadiusKM)
	}
	if cfg.Auth.ValidatePath != "/v1/token/validate" {
		t.Errorf("auth.validate_path = %q", cfg.Auth.ValidatePath)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: 9090
nats:
  stream: EVENTS
mask:
  list_radius_km: 8
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090 from file", cfg.Server.Port)
	}
	if cfg.NATS.Stream != "EVENTS" {
		t.Errorf("nats.stream = %q, want EVENTS from file", cfg.NATS.Stream)
	}
	if cfg.Mask.ListRadiusKM != 8 {
		t.Errorf("mask.list_radius_km = %v, want 8 from file", cfg.Mask.ListRadiusKM)
	}
	// Untouched keys keep their defaults.
	if cfg.API.DefaultPageSize != 20 {
		t.Errorf("api.default_page_size = %d, want default 20", cfg.API.DefaultPageSize)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("NATS_DURABLE_NAME", "custom-durable")
	t.Setenv("AUTH_SERVICE_URL", "http://auth.internal:4000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, env must beat file", cfg.Server.Port)
	}
	if cfg.NATS.DurableName != "custom-durable" {
		t.Errorf("nats.durable_name = %q", cfg.NATS.DurableName)
	}
	if cfg.Auth.ServiceURL != "http://auth.internal:4000" {
		t.Errorf("auth.service_url = %q", cfg.Auth.ServiceURL)
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.API.CORSOrigins) != len(want) {
		t.Fatalf("cors origins = %v, want %v", cfg.API.CORSOrigins, want)
	}
	for i := range want {
		if cfg.API.CORSOrigins[i] != want[i] {
			t.Errorf("cors origin[%d] = %q, want %q", i, cfg.API.CORSOrigins[i], want[i])
		}
	}
}

func TestUnmappedEnvVarsIgnored(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SERVER_PORT", "1234") // not a recognized mapping

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, unmapped env var must not apply", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"no nats url without embedded", func(c *Config) { c.NATS.URL = "" }, true},
		{"no url but embedded ok", func(c *Config) { c.NATS.URL = ""; c.NATS.EmbeddedServer = true }, false},
		{"empty stream", func(c *Config) { c.NATS.Stream = "" }, true},
		{"zero redeliveries", func(c *Config) { c.NATS.MaxRedeliveries = 0 }, true},
		{"empty dead letter subject", func(c *Config) { c.NATS.DeadLetterSubject = "" }, true},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, true},
		{"empty auth url", func(c *Config) { c.Auth.ServiceURL = "" }, true},
		{"zero auth timeout", func(c *Config) { c.Auth.Timeout = 0 }, true},
		{"default page over max", func(c *Config) { c.API.DefaultPageSize = 100 }, true},
		{"zero mask radius", func(c *Config) { c.Mask.MapRadiusKM = 0 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8080, Timeout: time.Second}
	if got := c.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", got)
	}
}
