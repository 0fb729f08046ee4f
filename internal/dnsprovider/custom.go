package dnsprovider

import "context"

// CustomAdapter represents the "manual DNS" provider: no API call is made.
// The orchestrator detects this provider, publishes the expected record via
// model.RenewalStatus.ManualDNS, and polls with the propagation verifier
// directly instead of calling CreateTxtRecord.
type CustomAdapter struct{}

// NewCustom returns the manual-DNS adapter.
func NewCustom() *CustomAdapter { return &CustomAdapter{} }

func (a *CustomAdapter) CreateTxtRecord(ctx context.Context, fqdn, value string) (string, error) {
	return "", nil
}

func (a *CustomAdapter) CleanupTxtRecords(ctx context.Context, fqdn string) error {
	return nil
}

func (a *CustomAdapter) DeleteTxtRecord(ctx context.Context, fqdn, recordID string) error {
	return nil
}
