// Package propagation polls a panel of DNS resolvers until a freshly
// created TXT record is visible everywhere, or a deadline elapses.
package propagation

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/edvin/renewd/internal/model"
)

const (
	defaultInterval = 10 * time.Second
	queryTimeout    = 5 * time.Second
)

// defaultPanel is queried when the caller supplies no resolver list: two
// widely available public recursive resolvers.
var defaultPanel = []string{"8.8.8.8:53", "1.1.1.1:53"}

// Verifier polls a panel of resolvers for an expected TXT value.
type Verifier struct {
	panel    []string
	interval time.Duration
	client   *dns.Client
}

// New returns a Verifier querying the given resolver addresses (host:port).
// An empty panel uses defaultPanel.
func New(panel []string) *Verifier {
	if len(panel) == 0 {
		panel = defaultPanel
	}
	return &Verifier{
		panel:    panel,
		interval: defaultInterval,
		client:   &dns.Client{Timeout: queryTimeout},
	}
}

// WithInterval overrides the poll interval, mainly for tests.
func (v *Verifier) WithInterval(d time.Duration) *Verifier {
	v.interval = d
	return v
}

// Panel returns the resolver addresses this Verifier queries.
func (v *Verifier) Panel() []string {
	return v.panel
}

// WaitForTXT polls every resolver in the panel until all of them return the
// expected TXT value for fqdn, or ctx's deadline passes. It never panics on
// transient resolver errors; it logs nothing itself, leaving that to the
// caller, and simply keeps retrying until the deadline.
func (v *Verifier) WaitForTXT(ctx context.Context, fqdn, expectedValue string) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		ok, err := v.allResolversMatch(ctx, fqdn, expectedValue)
		if err == nil && ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("propagation check for %s: %w", fqdn, model.ErrPropagationTimeout)
		case <-ticker.C:
		}
	}
}

func (v *Verifier) allResolversMatch(ctx context.Context, fqdn, expectedValue string) (bool, error) {
	for _, resolver := range v.panel {
		values, err := v.lookupTXT(ctx, resolver, fqdn)
		if err != nil {
			return false, err
		}
		if !contains(values, expectedValue) {
			return false, nil
		}
	}
	return true, nil
}

func (v *Verifier) lookupTXT(ctx context.Context, resolver, fqdn string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), dns.TypeTXT)
	msg.RecursionDesired = true

	resp, _, err := v.client.ExchangeContext(ctx, msg, resolver)
	if err != nil {
		return nil, nil // transient network error: treat as "not yet propagated"
	}
	if resp.Rcode == dns.RcodeNameError {
		return nil, nil // NXDOMAIN before the record exists anywhere
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, nil
	}

	var values []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			for _, s := range txt.Txt {
				values = append(values, s)
			}
		}
	}
	return values, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
