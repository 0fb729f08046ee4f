package dnsprovider

import (
	"context"
	"fmt"

	"github.com/edvin/renewd/internal/model"
)

// New dispatches to the adapter named by providerName, pulling its
// credentials from settings (as returned by
// configstore.GetSettingsByProvider).
func New(ctx context.Context, providerName string, settings map[string]string) (Provider, error) {
	switch providerName {
	case Cloudflare:
		return NewCloudflare(settings)
	case DigitalOcean:
		return NewDigitalOcean(settings)
	case Route53:
		return NewRoute53(ctx, settings)
	case Azure:
		return NewAzure(settings)
	case Google:
		return NewGoogle(ctx, settings)
	case Custom:
		return NewCustom(), nil
	default:
		return nil, fmt.Errorf("dns provider %q: %w", providerName, model.ErrDnsProvider)
	}
}
