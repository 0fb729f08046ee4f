package model

import "time"

// CertificateArtifacts describes the parsed state of a certificate on disk
// in the certificate store, used for reusability checks and status reporting.
type CertificateArtifacts struct {
	FQDN        string
	Environment string
	NotBefore   time.Time
	NotAfter    time.Time
	HasKey      bool
	HasChain    bool
}

// Reusable reports whether the certificate still has more than 30 days of
// validity left as of now.
func (c *CertificateArtifacts) Reusable(now time.Time) bool {
	return c.NotAfter.After(now.Add(30 * 24 * time.Hour))
}
