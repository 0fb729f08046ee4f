package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds environment-derived settings for the renewal daemon and CLI.
type Config struct {
	DatabaseURL string

	LetsEncryptStaging    bool
	LetsEncryptCleanupDNS bool
	ContactEmail          string

	AccountsDir string

	MaxConcurrentRenewals int

	LogLevel          string
	MetricsListenAddr string
}

// Load populates a Config from the environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	maxConcurrent, err := strconv.Atoi(getEnv("RENEWAL_MAX_CONCURRENT", "8"))
	if err != nil {
		return nil, fmt.Errorf("parse RENEWAL_MAX_CONCURRENT: %w", err)
	}

	cfg := &Config{
		DatabaseURL:           getEnv("RENEWAL_DATABASE_URL", ""),
		LetsEncryptStaging:    getEnvBool("LETSENCRYPT_STAGING", true),
		LetsEncryptCleanupDNS: getEnvBool("LETSENCRYPT_CLEANUP_DNS", false),
		ContactEmail:          getEnv("LETSENCRYPT_CONTACT_EMAIL", ""),
		AccountsDir:           getEnv("ACCOUNTS_DIR", "./accounts"),
		MaxConcurrentRenewals: maxConcurrent,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		MetricsListenAddr:     getEnv("METRICS_LISTEN_ADDR", ":9095"),
	}

	return cfg, nil
}

// Validate reports every missing field required for the given process role
// as a single combined error, or nil if the config is complete.
func (c *Config) Validate(role string) error {
	var missing []string

	switch role {
	case "renewd":
		if c.DatabaseURL == "" {
			missing = append(missing, "RENEWAL_DATABASE_URL")
		}
		if c.ContactEmail == "" {
			missing = append(missing, "LETSENCRYPT_CONTACT_EMAIL")
		}
	case "renewalctl":
		if c.DatabaseURL == "" {
			missing = append(missing, "RENEWAL_DATABASE_URL")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration for role %q: %s", role, strings.Join(missing, ", "))
	}
	return nil
}

// Environment returns the on-disk/account environment tag driven by
// LetsEncryptStaging.
func (c *Config) Environment() string {
	if c.LetsEncryptStaging {
		return "staging"
	}
	return "prod"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
