package dnsprovider

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalocean/godo"
	"golang.org/x/oauth2"

	"github.com/edvin/renewd/internal/model"
)

// DigitalOceanAdapter manages _acme-challenge TXT records via the
// DigitalOcean domains API.
type DigitalOceanAdapter struct {
	client *godo.Client
}

// NewDigitalOcean builds a DigitalOceanAdapter from a personal access token
// in Settings (DO_TOKEN).
func NewDigitalOcean(settings map[string]string) (*DigitalOceanAdapter, error) {
	token := settings["DO_TOKEN"]
	if token == "" {
		return nil, fmt.Errorf("digitalocean: %w", model.ErrConfigMissing)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := godo.NewClient(oauth2.NewClient(context.Background(), src))
	return &DigitalOceanAdapter{client: client}, nil
}

func (a *DigitalOceanAdapter) findDomain(ctx context.Context, fqdn string) (string, error) {
	domains, _, err := a.client.Domains.List(ctx, &godo.ListOptions{PerPage: 200})
	if err != nil {
		return "", fmt.Errorf("digitalocean: list domains: %w: %w", model.ErrDnsProvider, err)
	}

	names := make([]string, 0, len(domains))
	for _, d := range domains {
		names = append(names, d.Name)
	}
	return findZone(fqdn, names)
}

// recordHostname returns the record name DigitalOcean expects: the
// challenge label relative to the domain, e.g. "_acme-challenge.ucm01" for
// domain "lab.example.com".
func recordHostname(fqdn, domain string) string {
	full := ChallengeRecordName(fqdn)
	return strings.TrimSuffix(strings.TrimSuffix(full, domain), ".")
}

func (a *DigitalOceanAdapter) CreateTxtRecord(ctx context.Context, fqdn, value string) (string, error) {
	domain, err := a.findDomain(ctx, fqdn)
	if err != nil {
		return "", err
	}

	rec, _, err := a.client.Domains.CreateRecord(ctx, domain, &godo.DomainRecordEditRequest{
		Type: "TXT",
		Name: recordHostname(fqdn, domain),
		Data: value,
		TTL:  60,
	})
	if err != nil {
		return "", fmt.Errorf("digitalocean: create txt record: %w: %w", model.ErrDnsProvider, err)
	}
	return fmt.Sprintf("%s|%d", domain, rec.ID), nil
}

func (a *DigitalOceanAdapter) CleanupTxtRecords(ctx context.Context, fqdn string) error {
	domain, err := a.findDomain(ctx, fqdn)
	if err != nil {
		return nil
	}

	name := recordHostname(fqdn, domain)
	recs, _, err := a.client.Domains.RecordsByTypeAndName(ctx, domain, "TXT", name, &godo.ListOptions{})
	if err != nil {
		return nil
	}
	for _, rec := range recs {
		_, _ = a.client.Domains.DeleteRecord(ctx, domain, rec.ID)
	}
	return nil
}

func (a *DigitalOceanAdapter) DeleteTxtRecord(ctx context.Context, fqdn, recordID string) error {
	domain, id, ok := splitDORecordID(recordID)
	if !ok {
		return a.CleanupTxtRecords(ctx, fqdn)
	}
	_, _ = a.client.Domains.DeleteRecord(ctx, domain, id)
	return nil
}

func splitDORecordID(recordID string) (domain string, id int, ok bool) {
	i := strings.IndexByte(recordID, '|')
	if i < 0 {
		return "", 0, false
	}
	var n int
	if _, err := fmt.Sscanf(recordID[i+1:], "%d", &n); err != nil {
		return "", 0, false
	}
	return recordID[:i], n, true
}
