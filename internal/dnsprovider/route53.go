package dnsprovider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/edvin/renewd/internal/model"
)

// Route53Adapter manages _acme-challenge TXT records in AWS Route53. Calls
// are serialized through dnsMu because Route53 rate-limits concurrent
// ChangeResourceRecordSets requests per hosted zone.
type Route53Adapter struct {
	client *route53.Client
	dnsMu  sync.Mutex
}

// NewRoute53 builds a Route53Adapter from access key credentials supplied
// via Settings (AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_REGION).
func NewRoute53(ctx context.Context, settings map[string]string) (*Route53Adapter, error) {
	accessKey := settings["AWS_ACCESS_KEY_ID"]
	secretKey := settings["AWS_SECRET_ACCESS_KEY"]
	region := settings["AWS_REGION"]
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("route53: %w", model.ErrConfigMissing)
	}
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("route53: load aws config: %w", err)
	}

	return &Route53Adapter{client: route53.NewFromConfig(cfg)}, nil
}

func (a *Route53Adapter) findHostedZoneID(ctx context.Context, fqdn string) (string, error) {
	out, err := a.client.ListHostedZonesByName(ctx, &route53.ListHostedZonesByNameInput{})
	if err != nil {
		return "", fmt.Errorf("route53: list hosted zones: %w: %w", model.ErrDnsProvider, err)
	}

	names := make([]string, 0, len(out.HostedZones))
	idByName := map[string]string{}
	for _, z := range out.HostedZones {
		name := *z.Name
		names = append(names, name)
		idByName[name] = *z.Id
	}

	zone, err := findZone(fqdn, names)
	if err != nil {
		return "", err
	}
	return idByName[zone+"."], nil
}

func (a *Route53Adapter) CreateTxtRecord(ctx context.Context, fqdn, value string) (string, error) {
	a.dnsMu.Lock()
	defer a.dnsMu.Unlock()

	zoneID, err := a.findHostedZoneID(ctx, fqdn)
	if err != nil {
		return "", err
	}

	recordName := ChallengeRecordName(fqdn)
	_, err = a.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: &zoneID,
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action: types.ChangeActionUpsert,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name:            &recordName,
					Type:            types.RRTypeTxt,
					TTL:             int64Ptr(60),
					ResourceRecords: []types.ResourceRecord{{Value: quotedValue(value)}},
				},
			}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("route53: create txt record: %w: %w", model.ErrDnsProvider, err)
	}

	return zoneID + "|" + recordName + "|" + value, nil
}

func (a *Route53Adapter) CleanupTxtRecords(ctx context.Context, fqdn string) error {
	return a.DeleteTxtRecord(ctx, fqdn, "")
}

func (a *Route53Adapter) DeleteTxtRecord(ctx context.Context, fqdn, recordID string) error {
	a.dnsMu.Lock()
	defer a.dnsMu.Unlock()

	zoneID, err := a.findHostedZoneID(ctx, fqdn)
	if err != nil {
		return nil // best-effort cleanup, absence of zone is not fatal
	}

	recordName := ChallengeRecordName(fqdn)
	existing, err := a.client.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    &zoneID,
		StartRecordName: &recordName,
		StartRecordType: types.RRTypeTxt,
		MaxItems:        int32Ptr(1),
	})
	if err != nil || len(existing.ResourceRecordSets) == 0 {
		return nil
	}

	rrset := existing.ResourceRecordSets[0]
	if strings.TrimSuffix(*rrset.Name, ".") != recordName || rrset.Type != types.RRTypeTxt {
		return nil
	}

	_, err = a.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: &zoneID,
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action:            types.ChangeActionDelete,
				ResourceRecordSet: &rrset,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("route53: delete txt record: %w: %w", model.ErrDnsProvider, err)
	}
	return nil
}

func int64Ptr(v int64) *int64 { return &v }
func int32Ptr(v int32) *int32 { return &v }
func quotedValue(v string) *string {
	q := `"` + v + `"`
	return &q
}
