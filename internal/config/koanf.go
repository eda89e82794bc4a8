// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/opportuned/config.yaml",
	"/etc/opportuned/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. They are applied first and
// overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		NATS: NATSConfig{
			URL:               "nats://127.0.0.1:4222",
			EmbeddedServer:    false,
			StoreDir:          "/data/nats/jetstream",
			Stream:            "OPPORTUNITIES",
			DurableName:       "opportunity-intake",
			QueueGroup:        "intake",
			MaxRedeliveries:   5,
			DeadLetterSubject: "opportunity.deadletter",
			ThrottlePerSecond: 0, // unlimited
			AckWaitTimeout:    30 * time.Second,
			CloseTimeout:      30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:               "/data/opportuned.duckdb",
			MaxMemory:          "2GB",
			Threads:            0, // 0 = runtime.NumCPU()
			RedeliveryStoreDir: "/data/redelivery",
		},
		Auth: AuthConfig{
			ServiceURL:   "http://localhost:4000",
			ValidatePath: "/v1/token/validate",
			Timeout:      5 * time.Second,
			RateLimit:    50,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     50,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Mask: MaskConfig{
			ListRadiusKM: 5,
			MapRadiusKM:  3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, NATS_DURABLE_NAME -> nats.durable_name, etc.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first readable config file, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive via environment variables.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields splits comma-separated string values for known slice
// fields. Env vars arrive as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so stray environment noise cannot leak
// into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// NATS / stream
		"nats_url":                 "nats.url",
		"nats_embedded":            "nats.embedded_server",
		"nats_store_dir":           "nats.store_dir",
		"nats_stream":              "nats.stream",
		"nats_durable_name":        "nats.durable_name",
		"nats_queue_group":         "nats.queue_group",
		"nats_max_redeliver":       "nats.max_redeliveries",
		"nats_deadletter_subject":  "nats.dead_letter_subject",
		"nats_throttle_per_second": "nats.throttle_per_second",
		"nats_ack_wait_timeout":    "nats.ack_wait_timeout",
		"nats_close_timeout":       "nats.close_timeout",

		// Database
		"duckdb_path":           "database.path",
		"duckdb_max_memory":     "database.max_memory",
		"duckdb_threads":        "database.threads",
		"redelivery_store_path": "database.redelivery_store_dir",

		// Auth service
		"auth_service_url":   "auth.service_url",
		"auth_validate_path": "auth.validate_path",
		"auth_timeout":       "auth.timeout",
		"auth_rate_limit":    "auth.rate_limit",

		// API
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"rate_limit_requests":   "api.rate_limit_reqs",
		"rate_limit_window":     "api.rate_limit_window",
		"cors_origins":          "api.cors_origins",

		// Masking
		"mask_list_radius_km": "mask.list_radius_km",
		"mask_map_radius_km":  "mask.map_radius_km",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
