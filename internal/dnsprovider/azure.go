package dnsprovider

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/dns/armdns"

	"github.com/edvin/renewd/internal/model"
)

// AzureAdapter manages _acme-challenge TXT records in Azure DNS, scoped to
// one subscription and resource group.
type AzureAdapter struct {
	client        *armdns.RecordSetsClient
	resourceGroup string
	zone          string
}

// NewAzure builds an AzureAdapter from service-principal credentials in
// Settings (AZURE_TENANT_ID, AZURE_CLIENT_ID, AZURE_CLIENT_SECRET,
// AZURE_SUBSCRIPTION_ID, AZURE_RESOURCE_GROUP, AZURE_ZONE).
func NewAzure(settings map[string]string) (*AzureAdapter, error) {
	tenantID := settings["AZURE_TENANT_ID"]
	clientID := settings["AZURE_CLIENT_ID"]
	clientSecret := settings["AZURE_CLIENT_SECRET"]
	subscriptionID := settings["AZURE_SUBSCRIPTION_ID"]
	resourceGroup := settings["AZURE_RESOURCE_GROUP"]
	zone := settings["AZURE_ZONE"]
	if tenantID == "" || clientID == "" || clientSecret == "" || subscriptionID == "" || resourceGroup == "" || zone == "" {
		return nil, fmt.Errorf("azure: %w", model.ErrConfigMissing)
	}

	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: build credential: %w", err)
	}

	client, err := armdns.NewRecordSetsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: build record sets client: %w", err)
	}

	return &AzureAdapter{client: client, resourceGroup: resourceGroup, zone: zone}, nil
}

// relativeName returns the _acme-challenge record name relative to the
// configured zone, which is what the Azure DNS API expects.
func (a *AzureAdapter) relativeName(fqdn string) string {
	return recordHostname(fqdn, a.zone)
}

func (a *AzureAdapter) CreateTxtRecord(ctx context.Context, fqdn, value string) (string, error) {
	name := a.relativeName(fqdn)
	ttl := int64(60)
	_, err := a.client.CreateOrUpdate(ctx, a.resourceGroup, a.zone, name, armdns.RecordTypeTXT, armdns.RecordSet{
		Properties: &armdns.RecordSetProperties{
			TTL: &ttl,
			TxtRecords: []*armdns.TxtRecord{{
				Value: []*string{&value},
			}},
		},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("azure: create txt record: %w: %w", model.ErrDnsProvider, err)
	}
	return name, nil
}

func (a *AzureAdapter) CleanupTxtRecords(ctx context.Context, fqdn string) error {
	return a.DeleteTxtRecord(ctx, fqdn, a.relativeName(fqdn))
}

func (a *AzureAdapter) DeleteTxtRecord(ctx context.Context, fqdn, recordID string) error {
	name := recordID
	if name == "" {
		name = a.relativeName(fqdn)
	}
	_, err := a.client.Delete(ctx, a.resourceGroup, a.zone, name, armdns.RecordTypeTXT, nil)
	if err != nil {
		return nil // best-effort cleanup
	}
	return nil
}
