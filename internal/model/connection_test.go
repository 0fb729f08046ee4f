package model

import "testing"

func TestConnection_FQDNAndDomains(t *testing.T) {
	c := &Connection{Hostname: "cucm01", Domain: "example.com", AltNames: []string{"cucm01-alt.example.com"}}
	if got := c.FQDN(); got != "cucm01.example.com" {
		t.Fatalf("FQDN() = %q", got)
	}
	domains := c.Domains()
	want := []string{"cucm01.example.com", "cucm01-alt.example.com"}
	if len(domains) != len(want) {
		t.Fatalf("Domains() = %v, want %v", domains, want)
	}
	for i := range want {
		if domains[i] != want[i] {
			t.Fatalf("Domains()[%d] = %q, want %q", i, domains[i], want[i])
		}
	}
}

func TestConnection_Validate(t *testing.T) {
	valid := &Connection{
		Name:        "cucm-prod",
		AppType:     AppTypeVOS,
		Hostname:    "cucm01",
		Domain:      "example.com",
		SSLProvider: SSLProviderPrimary,
		DNSProvider: DNSProviderCloudflare,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	invalid := &Connection{Name: "missing-fields"}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for missing required fields")
	}
}

func TestConnection_Validate_RejectsUnknownDNSProvider(t *testing.T) {
	c := &Connection{
		Name:        "bad-provider",
		AppType:     AppTypeGeneral,
		Hostname:    "host01",
		Domain:      "example.com",
		SSLProvider: SSLProviderPrimary,
		DNSProvider: "nsone",
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported dns provider")
	}
}
