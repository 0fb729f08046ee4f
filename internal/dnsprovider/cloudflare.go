package dnsprovider

import (
	"context"
	"fmt"

	"github.com/cloudflare/cloudflare-go"

	"github.com/edvin/renewd/internal/model"
)

// CloudflareAdapter manages _acme-challenge TXT records via the Cloudflare
// API, authenticated with a scoped API token.
type CloudflareAdapter struct {
	api *cloudflare.API
}

// NewCloudflare builds a CloudflareAdapter from an API token in Settings
// (CF_KEY). CF_ZONE is not read: the zone is always found by longest-suffix
// match over the zones the token can list.
func NewCloudflare(settings map[string]string) (*CloudflareAdapter, error) {
	token := settings["CF_KEY"]
	if token == "" {
		return nil, fmt.Errorf("cloudflare: %w", model.ErrConfigMissing)
	}

	api, err := cloudflare.NewWithAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: init client: %w", err)
	}

	return &CloudflareAdapter{api: api}, nil
}

func (a *CloudflareAdapter) findZoneID(ctx context.Context, fqdn string) (string, error) {
	zones, err := a.api.ListZones(ctx)
	if err != nil {
		return "", fmt.Errorf("cloudflare: list zones: %w: %w", model.ErrDnsProvider, err)
	}

	names := make([]string, 0, len(zones))
	idByName := map[string]string{}
	for _, z := range zones {
		names = append(names, z.Name)
		idByName[z.Name] = z.ID
	}

	zone, err := findZone(fqdn, names)
	if err != nil {
		return "", err
	}
	return idByName[zone], nil
}

func (a *CloudflareAdapter) CreateTxtRecord(ctx context.Context, fqdn, value string) (string, error) {
	zoneID, err := a.findZoneID(ctx, fqdn)
	if err != nil {
		return "", err
	}

	recordName := ChallengeRecordName(fqdn)
	rc := cloudflare.ZoneIdentifier(zoneID)
	rec, err := a.api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
		Type:    "TXT",
		Name:    recordName,
		Content: value,
		TTL:     60,
	})
	if err != nil {
		return "", fmt.Errorf("cloudflare: create txt record: %w: %w", model.ErrDnsProvider, err)
	}
	return zoneID + "|" + rec.ID, nil
}

func (a *CloudflareAdapter) CleanupTxtRecords(ctx context.Context, fqdn string) error {
	zoneID, err := a.findZoneID(ctx, fqdn)
	if err != nil {
		return nil
	}

	recordName := ChallengeRecordName(fqdn)
	rc := cloudflare.ZoneIdentifier(zoneID)
	recs, _, err := a.api.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{Type: "TXT", Name: recordName})
	if err != nil {
		return nil
	}
	for _, rec := range recs {
		_ = a.api.DeleteDNSRecord(ctx, rc, rec.ID)
	}
	return nil
}

func (a *CloudflareAdapter) DeleteTxtRecord(ctx context.Context, fqdn, recordID string) error {
	zoneID, id, ok := splitRecordID(recordID)
	if !ok {
		return a.CleanupTxtRecords(ctx, fqdn)
	}
	rc := cloudflare.ZoneIdentifier(zoneID)
	_ = a.api.DeleteDNSRecord(ctx, rc, id)
	return nil
}

func splitRecordID(recordID string) (zoneID, id string, ok bool) {
	for i := 0; i < len(recordID); i++ {
		if recordID[i] == '|' {
			return recordID[:i], recordID[i+1:], true
		}
	}
	return "", "", false
}
