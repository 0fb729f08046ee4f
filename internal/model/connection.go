package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var connectionValidator = validator.New()

// Connection is the unit of renewal: one managed endpoint and everything
// needed to issue and install a certificate for it.
type Connection struct {
	ID          int64    `json:"id" db:"id"`
	Name        string   `json:"name" db:"name" validate:"required"`
	AppType     string   `json:"application_type" db:"application_type" validate:"required,oneof=vos general portal"`
	Hostname    string   `json:"hostname" db:"hostname" validate:"required,hostname_rfc1123"`
	Domain      string   `json:"domain" db:"domain" validate:"required,fqdn"`
	AltNames    []string `json:"alt_names,omitempty" db:"alt_names" validate:"dive,fqdn"`
	Username    string   `json:"username,omitempty" db:"username"`
	Password    string   `json:"password,omitempty" db:"password"`
	SSLProvider string   `json:"ssl_provider" db:"ssl_provider" validate:"required,oneof=acme_primary acme_alt"`
	DNSProvider string   `json:"dns_provider" db:"dns_provider" validate:"required,oneof=cloudflare digitalocean route53 azure google custom"`
	CustomCSR   string   `json:"custom_csr,omitempty" db:"custom_csr"`

	EnableSSH          bool `json:"enable_ssh" db:"enable_ssh"`
	AutoRestartService bool `json:"auto_restart_service" db:"auto_restart_service"`

	LastCertIssued     *time.Time `json:"last_cert_issued,omitempty" db:"last_cert_issued"`
	CertCountThisWeek  int        `json:"cert_count_this_week" db:"cert_count_this_week"`
	CertCountResetDate *time.Time `json:"cert_count_reset_date,omitempty" db:"cert_count_reset_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Application type constants.
const (
	AppTypeVOS     = "vos"
	AppTypeGeneral = "general"
	AppTypePortal  = "portal"
)

// DNS provider constants.
const (
	DNSProviderCloudflare   = "cloudflare"
	DNSProviderDigitalOcean = "digitalocean"
	DNSProviderRoute53      = "route53"
	DNSProviderAzure        = "azure"
	DNSProviderGoogle       = "google"
	DNSProviderCustom       = "custom"
)

// SSL provider constants.
const (
	SSLProviderPrimary = "acme_primary"
	SSLProviderAlt     = "acme_alt"
)

// Validate checks the struct tags above, catching malformed seed/API input
// before it reaches the config store or the orchestrator.
func (c *Connection) Validate() error {
	if err := connectionValidator.Struct(c); err != nil {
		return fmt.Errorf("connection %q: %w", c.Name, err)
	}
	return nil
}

// FQDN joins hostname and domain into the fully qualified domain name.
func (c *Connection) FQDN() string {
	return c.Hostname + "." + c.Domain
}

// Domains returns the FQDN followed by any configured SAN alt names.
func (c *Connection) Domains() []string {
	domains := make([]string, 0, len(c.AltNames)+1)
	domains = append(domains, c.FQDN())
	domains = append(domains, c.AltNames...)
	return domains
}
