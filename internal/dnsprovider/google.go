package dnsprovider

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	dnsv1 "google.golang.org/api/dns/v1"
	"google.golang.org/api/option"

	"github.com/edvin/renewd/internal/model"
)

// GoogleAdapter manages _acme-challenge TXT records in Google Cloud DNS,
// authenticated with a service-account JSON key.
type GoogleAdapter struct {
	svc     *dnsv1.Service
	project string
}

// NewGoogle builds a GoogleAdapter from Settings (GCP_PROJECT_ID,
// GCP_SERVICE_ACCOUNT_JSON).
func NewGoogle(ctx context.Context, settings map[string]string) (*GoogleAdapter, error) {
	project := settings["GCP_PROJECT_ID"]
	saJSON := settings["GCP_SERVICE_ACCOUNT_JSON"]
	if project == "" || saJSON == "" {
		return nil, fmt.Errorf("google: %w", model.ErrConfigMissing)
	}

	creds, err := google.CredentialsFromJSON(ctx, []byte(saJSON), dnsv1.NdevClouddnsReadwriteScope)
	if err != nil {
		return nil, fmt.Errorf("google: parse service account: %w", err)
	}

	svc, err := dnsv1.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("google: init dns service: %w", err)
	}

	return &GoogleAdapter{svc: svc, project: project}, nil
}

func (a *GoogleAdapter) findManagedZone(fqdn string) (string, string, error) {
	list, err := a.svc.ManagedZones.List(a.project).Do()
	if err != nil {
		return "", "", fmt.Errorf("google: list managed zones: %w: %w", model.ErrDnsProvider, err)
	}

	names := make([]string, 0, len(list.ManagedZones))
	byDNSName := map[string]string{}
	for _, z := range list.ManagedZones {
		names = append(names, z.DnsName)
		byDNSName[z.DnsName] = z.Name
	}

	dnsName, err := findZone(fqdn, names)
	if err != nil {
		return "", "", err
	}
	return byDNSName[dnsName+"."], dnsName, nil
}

func (a *GoogleAdapter) CreateTxtRecord(ctx context.Context, fqdn, value string) (string, error) {
	zoneName, _, err := a.findManagedZone(fqdn)
	if err != nil {
		return "", err
	}

	recordName := ChallengeRecordName(fqdn) + "."
	change := &dnsv1.Change{
		Additions: []*dnsv1.ResourceRecordSet{{
			Name:    recordName,
			Type:    "TXT",
			Ttl:     60,
			Rrdatas: []string{`"` + value + `"`},
		}},
	}

	if _, err := a.svc.Changes.Create(a.project, zoneName, change).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("google: create txt record: %w: %w", model.ErrDnsProvider, err)
	}
	return zoneName + "|" + recordName + "|" + value, nil
}

func (a *GoogleAdapter) CleanupTxtRecords(ctx context.Context, fqdn string) error {
	zoneName, _, err := a.findManagedZone(fqdn)
	if err != nil {
		return nil
	}

	recordName := ChallengeRecordName(fqdn) + "."
	existing, err := a.svc.ResourceRecordSets.List(a.project, zoneName).Name(recordName).Type("TXT").Context(ctx).Do()
	if err != nil || len(existing.Rrsets) == 0 {
		return nil
	}

	change := &dnsv1.Change{Deletions: existing.Rrsets}
	_, _ = a.svc.Changes.Create(a.project, zoneName, change).Context(ctx).Do()
	return nil
}

func (a *GoogleAdapter) DeleteTxtRecord(ctx context.Context, fqdn, recordID string) error {
	return a.CleanupTxtRecords(ctx, fqdn)
}
