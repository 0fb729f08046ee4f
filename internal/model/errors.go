package model

import "errors"

// Sentinel errors for the renewal error taxonomy. Wrap with fmt.Errorf
// ("%w") to preserve errors.Is matching while adding detail.
var (
	ErrAlreadyActive      = errors.New("renewal already active for this connection")
	ErrNotFound           = errors.New("not found")
	ErrConfigMissing      = errors.New("required configuration missing")
	ErrCsrFormatInvalid   = errors.New("CSR is not valid PEM")
	ErrDeviceAPI          = errors.New("device API request failed")
	ErrAcmeProtocol       = errors.New("ACME protocol error")
	ErrDnsProvider        = errors.New("DNS provider error")
	ErrZoneNotFound       = errors.New("no matching DNS zone found")
	ErrPropagationTimeout = errors.New("DNS propagation timed out")
	ErrManualDnsTimeout   = errors.New("manual DNS publication timed out")
	ErrOrderInvalid       = errors.New("ACME order became invalid")
	ErrCertificateParse   = errors.New("certificate could not be parsed")
	ErrCancelled          = errors.New("renewal cancelled")
	ErrInterrupted        = errors.New("renewal interrupted by process restart")
)
