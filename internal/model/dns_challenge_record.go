package model

// DnsChallengeRecord is an ephemeral TXT record created to satisfy one
// DNS-01 challenge. It exists only for the lifetime of one renewal and
// must be scoped to the renewal that created it, never shared across
// renewals of different connections.
type DnsChallengeRecord struct {
	ProviderRecordID string
	FQDN             string // e.g. _acme-challenge.ucm01.lab.example.com
	Value            string
	AuthzURL         string
}
