// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GoogleConfig holds the OAuth client used to build per-user Gmail
// credentials from stored refresh tokens.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// Config holds all configuration for the service.
type Config struct {
	Google GoogleConfig

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// Pub/Sub push
	PubSubTopic string
	// PushAudience is the expected OIDC audience on webhook deliveries.
	// Empty disables audience checking (the issuer is always checked).
	PushAudience       string
	PushServiceAccount string

	// Persistence
	DatabaseURL string
	RedisURL    string

	// Ledger
	BaseCurrency string

	// Watch renewal
	WatchRenewInterval time.Duration

	// Oracle call timeout
	OracleTimeout time.Duration

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Google GoogleConfig `yaml:"google"`
	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
	PubSub struct {
		Topic          string `yaml:"topic"`
		Audience       string `yaml:"audience"`
		ServiceAccount string `yaml:"service_account"`
	} `yaml:"pubsub"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. The YAML file is optional;
// everything can come from the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	if err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Google: GoogleConfig{
			ClientID:     firstNonEmpty(raw.Google.ClientID, os.Getenv("GOOGLE_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Google.ClientSecret, os.Getenv("GOOGLE_CLIENT_SECRET")),
			RedirectURI:  firstNonEmpty(raw.Google.RedirectURI, os.Getenv("GOOGLE_REDIRECT_URI")),
		},
		GeminiAPIKey:       firstNonEmpty(raw.Gemini.APIKey, os.Getenv("GEMINI_API_KEY")),
		GeminiModel:        firstNonEmpty(raw.Gemini.Model, envOrDefault("GEMINI_MODEL", "gemini-2.5-flash")),
		PubSubTopic:        firstNonEmpty(raw.PubSub.Topic, envOrDefault("PUB_SUB_TOPIC", "projects/baske-finance/topics/gmail-notifications")),
		PushAudience:       firstNonEmpty(raw.PubSub.Audience, os.Getenv("PUSH_AUDIENCE")),
		PushServiceAccount: firstNonEmpty(raw.PubSub.ServiceAccount, os.Getenv("PUSH_SERVICE_ACCOUNT")),
		DatabaseURL:        firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:           firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		BaseCurrency:       envOrDefault("BASE_CURRENCY", "CLP"),
		WatchRenewInterval: envOrDefaultDuration("WATCH_RENEW_INTERVAL", 24*time.Hour),
		OracleTimeout:      envOrDefaultDuration("ORACLE_TIMEOUT", 60*time.Second),
		Port:               envOrDefaultInt("PORT", 3000),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
