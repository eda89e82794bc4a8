// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

// Package config loads and validates the service configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. Environment variables always win.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	NATS     NATSConfig     `koanf:"nats"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	API      APIConfig      `koanf:"api"`
	Mask     MaskConfig     `koanf:"mask"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig holds message stream settings.
//
// EmbeddedServer starts an in-process NATS server with JetStream enabled;
// useful for standalone and development deployments. When false the service
// connects to URL.
type NATSConfig struct {
	URL               string        `koanf:"url"`
	EmbeddedServer    bool          `koanf:"embedded_server"`
	StoreDir          string        `koanf:"store_dir"`
	Stream            string        `koanf:"stream"`
	DurableName       string        `koanf:"durable_name"`
	QueueGroup        string        `koanf:"queue_group"`
	MaxRedeliveries   int           `koanf:"max_redeliveries"`
	DeadLetterSubject string        `koanf:"dead_letter_subject"`
	ThrottlePerSecond int64         `koanf:"throttle_per_second"`
	AckWaitTimeout    time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout      time.Duration `koanf:"close_timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path               string `koanf:"path"`
	MaxMemory          string `koanf:"max_memory"`
	Threads            int    `koanf:"threads"`
	RedeliveryStoreDir string `koanf:"redelivery_store_dir"`
}

// AuthConfig holds external token-validation service settings.
type AuthConfig struct {
	ServiceURL   string        `koanf:"service_url"`
	ValidatePath string        `koanf:"validate_path"`
	Timeout      time.Duration `koanf:"timeout"`
	RateLimit    float64       `koanf:"rate_limit"`
}

// APIConfig holds pagination and rate-limit settings for the HTTP API.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size"`
	MaxPageSize     int           `koanf:"max_page_size"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// MaskConfig holds coordinate masking radii in kilometers.
type MaskConfig struct {
	ListRadiusKM float64 `koanf:"list_radius_km"`
	MapRadiusKM  float64 `koanf:"map_radius_km"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("nats.url is required when the embedded server is disabled")
	}
	if c.NATS.Stream == "" {
		return fmt.Errorf("nats.stream must not be empty")
	}
	if c.NATS.MaxRedeliveries < 1 {
		return fmt.Errorf("nats.max_redeliveries must be at least 1, got %d", c.NATS.MaxRedeliveries)
	}
	if c.NATS.DeadLetterSubject == "" {
		return fmt.Errorf("nats.dead_letter_subject must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Auth.ServiceURL == "" {
		return fmt.Errorf("auth.service_url must not be empty")
	}
	if c.Auth.Timeout <= 0 {
		return fmt.Errorf("auth.timeout must be positive, got %s", c.Auth.Timeout)
	}
	if c.API.DefaultPageSize < 1 || c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size must be in [1, %d], got %d",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	if c.API.MaxPageSize < 1 {
		return fmt.Errorf("api.max_page_size must be at least 1, got %d", c.API.MaxPageSize)
	}
	if c.Mask.ListRadiusKM <= 0 || c.Mask.MapRadiusKM <= 0 {
		return fmt.Errorf("mask radii must be positive, got list=%v map=%v",
			c.Mask.ListRadiusKM, c.Mask.MapRadiusKM)
	}
	return nil
}
