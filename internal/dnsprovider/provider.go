// Package dnsprovider adapts the DNS-01 challenge record lifecycle to each
// supported cloud DNS provider behind one uniform interface.
package dnsprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/edvin/renewd/internal/model"
)

// Provider is the adapter contract every DNS backend satisfies. Callers
// purge stale records before creating a new one; no provider method is
// assumed idempotent.
type Provider interface {
	// CreateTxtRecord creates a TXT record at fqdn with the given value and
	// returns a provider-assigned record id for later deletion.
	CreateTxtRecord(ctx context.Context, fqdn, value string) (recordID string, err error)
	// CleanupTxtRecords deletes every TXT record at fqdn.
	CleanupTxtRecords(ctx context.Context, fqdn string) error
	// DeleteTxtRecord deletes one record by id. Best-effort: absence is not
	// an error.
	DeleteTxtRecord(ctx context.Context, fqdn, recordID string) error
}

// Name constants mirror model.Connection.DNSProvider values.
const (
	Cloudflare   = model.DNSProviderCloudflare
	DigitalOcean = model.DNSProviderDigitalOcean
	Route53      = model.DNSProviderRoute53
	Azure        = model.DNSProviderAzure
	Google       = model.DNSProviderGoogle
	Custom       = model.DNSProviderCustom
)

// ChallengeRecordName builds the well-known DNS-01 challenge record name for
// an identifier, stripping a leading wildcard label first.
func ChallengeRecordName(domain string) string {
	domain = strings.TrimPrefix(domain, "*.")
	return "_acme-challenge." + domain
}

// findZone resolves the hosting zone for fqdn by longest-suffix match over
// the zones a provider's credentials can list. Shared by every cloud
// adapter's zone-discovery step.
func findZone(fqdn string, zones []string) (string, error) {
	fqdn = strings.TrimSuffix(strings.TrimPrefix(fqdn, "*."), ".")
	best := ""
	for _, z := range zones {
		z = strings.TrimSuffix(z, ".")
		if z == fqdn || strings.HasSuffix(fqdn, "."+z) {
			if len(z) > len(best) {
				best = z
			}
		}
	}
	if best == "" {
		return "", fmt.Errorf("no zone matches %s: %w", fqdn, model.ErrZoneNotFound)
	}
	return best, nil
}
