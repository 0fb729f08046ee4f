// Package seed bootstraps Connections and Settings into a ConfigStore from
// a YAML fixture file, following this codebase family's existing YAML-seed
// CLI convention.
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/edvin/renewd/internal/configstore"
	"github.com/edvin/renewd/internal/model"
)

// Config is the top-level shape of a seed fixture file.
type Config struct {
	Connections []ConnectionDef `yaml:"connections"`
	Settings    []SettingDef    `yaml:"settings"`
}

// ConnectionDef describes one Connection row to create.
type ConnectionDef struct {
	Name               string   `yaml:"name"`
	ApplicationType    string   `yaml:"application_type"`
	Hostname           string   `yaml:"hostname"`
	Domain             string   `yaml:"domain"`
	AltNames           []string `yaml:"alt_names"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	SSLProvider        string   `yaml:"ssl_provider"`
	DNSProvider        string   `yaml:"dns_provider"`
	CustomCSR          string   `yaml:"custom_csr"`
	EnableSSH          bool     `yaml:"enable_ssh"`
	AutoRestartService bool     `yaml:"auto_restart_service"`
}

// SettingDef describes one provider-scoped credential setting.
type SettingDef struct {
	Provider string `yaml:"provider"`
	Key      string `yaml:"key"`
	Value    string `yaml:"value"`
}

// Load reads and parses a seed fixture file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &cfg, nil
}

// Apply creates every Connection and upserts every Setting from cfg into
// store, in file order.
func Apply(ctx context.Context, store configstore.ConfigStore, cfg *Config) error {
	for _, c := range cfg.Connections {
		conn := &model.Connection{
			Name:               c.Name,
			AppType:            c.ApplicationType,
			Hostname:           c.Hostname,
			Domain:             c.Domain,
			AltNames:           c.AltNames,
			Username:           c.Username,
			Password:           c.Password,
			SSLProvider:        c.SSLProvider,
			DNSProvider:        c.DNSProvider,
			CustomCSR:          c.CustomCSR,
			EnableSSH:          c.EnableSSH,
			AutoRestartService: c.AutoRestartService,
		}
		if err := conn.Validate(); err != nil {
			return fmt.Errorf("invalid connection %q: %w", c.Name, err)
		}
		id, err := store.CreateConnection(ctx, conn)
		if err != nil {
			return fmt.Errorf("create connection %q: %w", c.Name, err)
		}
		fmt.Printf("Connection %q: created (id=%d)\n", c.Name, id)
	}

	for _, s := range cfg.Settings {
		if err := store.UpsertSetting(ctx, model.Setting{Provider: s.Provider, Key: s.Key, Value: s.Value}); err != nil {
			return fmt.Errorf("upsert setting %s/%s: %w", s.Provider, s.Key, err)
		}
		fmt.Printf("Setting %s/%s: saved\n", s.Provider, s.Key)
	}

	return nil
}
