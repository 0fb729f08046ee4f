package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("RENEWAL_DATABASE_URL")
	os.Unsetenv("LETSENCRYPT_STAGING")
	os.Unsetenv("ACCOUNTS_DIR")
	os.Unsetenv("RENEWAL_MAX_CONCURRENT")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.DatabaseURL)
	assert.True(t, cfg.LetsEncryptStaging)
	assert.Equal(t, "./accounts", cfg.AccountsDir)
	assert.Equal(t, 8, cfg.MaxConcurrentRenewals)
	assert.Equal(t, "staging", cfg.Environment())
}

func TestLoad_AllEnvVars(t *testing.T) {
	t.Setenv("RENEWAL_DATABASE_URL", "postgres://localhost/renewals")
	t.Setenv("LETSENCRYPT_STAGING", "false")
	t.Setenv("LETSENCRYPT_CLEANUP_DNS", "true")
	t.Setenv("LETSENCRYPT_CONTACT_EMAIL", "ops@example.com")
	t.Setenv("ACCOUNTS_DIR", "/var/lib/renewd/accounts")
	t.Setenv("RENEWAL_MAX_CONCURRENT", "16")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/renewals", cfg.DatabaseURL)
	assert.False(t, cfg.LetsEncryptStaging)
	assert.True(t, cfg.LetsEncryptCleanupDNS)
	assert.Equal(t, "ops@example.com", cfg.ContactEmail)
	assert.Equal(t, "/var/lib/renewd/accounts", cfg.AccountsDir)
	assert.Equal(t, 16, cfg.MaxConcurrentRenewals)
	assert.Equal(t, "prod", cfg.Environment())
}

func TestValidate_Renewd_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("renewd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RENEWAL_DATABASE_URL")
	assert.Contains(t, err.Error(), "LETSENCRYPT_CONTACT_EMAIL")
}

func TestValidate_RenewalCtl_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("renewalctl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RENEWAL_DATABASE_URL")
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := &Config{
		DatabaseURL:  "postgres://localhost/renewals",
		ContactEmail: "ops@example.com",
	}

	assert.NoError(t, cfg.Validate("renewd"))
	assert.NoError(t, cfg.Validate("renewalctl"))
}
