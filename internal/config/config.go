// Package config loads application configuration from environment
// variables, with an optional local .env file for development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// UpstreamTimeout bounds each outbound provider call.
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"5s"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURI  string `env:"GITHUB_REDIRECT_URI"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI"`
}

// Load reads configuration from the environment. A missing .env file is not
// an error; explicit environment variables win over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults derives the per-provider redirect URIs from the frontend
// origin when they are not set explicitly. The value must match the
// provider's registered callback byte-for-byte.
func (c *Config) applyDefaults() {
	origin := strings.TrimRight(c.FrontendURL, "/")
	if c.GitHubRedirectURI == "" {
		c.GitHubRedirectURI = origin + "/auth/github/callback"
	}
	if c.GoogleRedirectURI == "" {
		c.GoogleRedirectURI = origin + "/auth/google/callback"
	}
}

func (c Config) validate() error {
	if c.GitHubClientID != "" && c.GitHubClientSecret == "" {
		return fmt.Errorf("GITHUB_CLIENT_SECRET is required when GITHUB_CLIENT_ID is set")
	}
	if c.GoogleClientID != "" && c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set")
	}
	return nil
}
