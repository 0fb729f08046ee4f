// Package acmeclient wraps golang.org/x/crypto/acme behind the operation
// names the orchestrator expects, swapping the HTTP-01 flow this codebase
// family's ACME activity used for DNS-01 challenges.
package acmeclient

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"golang.org/x/crypto/acme"

	"github.com/edvin/renewd/internal/model"
)

const orderPollDeadline = 2 * time.Minute

// Account is a registered ACME account: a signing key and its account URL.
type Account struct {
	Key        *ecdsa.PrivateKey
	AccountURL string
}

// PendingChallenge pairs a dns-01 challenge with the domain identifier it
// proves control of.
type PendingChallenge struct {
	Domain    string
	Challenge *acme.Challenge
}

// Order wraps the ACME order plus its DNS-01 challenges, one per identifier
// still needing validation.
type Order struct {
	acmeOrder  *acme.Order
	Challenges []PendingChallenge
}

// Client issues certificates against one ACME directory using DNS-01
// validation.
type Client struct {
	directoryURL string
}

// New returns a Client bound to the given ACME directory URL.
func New(directoryURL string) *Client {
	return &Client{directoryURL: directoryURL}
}

func (c *Client) acmeClient(key *ecdsa.PrivateKey) *acme.Client {
	return &acme.Client{Key: key, DirectoryURL: c.directoryURL}
}

// CreateAccount registers a new ACME account with the given contact email.
func (c *Client) CreateAccount(ctx context.Context, email string) (*Account, error) {
	if email == "" {
		return nil, fmt.Errorf("create acme account: %w", model.ErrConfigMissing)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}

	client := c.acmeClient(key)
	acct, err := client.Register(ctx, &acme.Account{Contact: []string{"mailto:" + email}}, acme.AcceptTOS)
	if err != nil {
		return nil, fmt.Errorf("register acme account: %w: %w", model.ErrAcmeProtocol, err)
	}

	return &Account{Key: key, AccountURL: acct.URI}, nil
}

// LoadAccount reconstructs an Account from a cached key PEM and account URL,
// verifying the account is still recognized by the directory.
func (c *Client) LoadAccount(ctx context.Context, keyPEM []byte, accountURL string) (*Account, error) {
	key, err := parseECKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("load acme account: %w", err)
	}

	client := c.acmeClient(key)
	if _, err := client.GetReg(ctx, accountURL); err != nil {
		return nil, fmt.Errorf("verify cached acme account: %w: %w", model.ErrAcmeProtocol, err)
	}

	return &Account{Key: key, AccountURL: accountURL}, nil
}

// KeyPEM serializes the account's signing key as PEM, for persistence.
func (a *Account) KeyPEM() ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(a.Key)
	if err != nil {
		return nil, fmt.Errorf("marshal account key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// RequestCertificate submits a new order for the given domains and returns
// each identifier's DNS-01 challenge.
func (c *Client) RequestCertificate(ctx context.Context, account *Account, domains []string) (*Order, error) {
	client := c.acmeClient(account.Key)

	acmeOrder, err := client.AuthorizeOrder(ctx, acme.DomainIDs(domains...))
	if err != nil {
		return nil, fmt.Errorf("authorize order: %w: %w", model.ErrAcmeProtocol, err)
	}

	challenges := make([]PendingChallenge, 0, len(acmeOrder.AuthzURLs))
	for _, authzURL := range acmeOrder.AuthzURLs {
		authz, err := client.GetAuthorization(ctx, authzURL)
		if err != nil {
			return nil, fmt.Errorf("get authorization %s: %w: %w", authzURL, model.ErrAcmeProtocol, err)
		}
		if authz.Status == acme.StatusValid {
			continue
		}

		var dns01 *acme.Challenge
		for _, ch := range authz.Challenges {
			if ch.Type == "dns-01" {
				dns01 = ch
				break
			}
		}
		if dns01 == nil {
			return nil, fmt.Errorf("authorization %s has no dns-01 challenge: %w", authzURL, model.ErrAcmeProtocol)
		}
		challenges = append(challenges, PendingChallenge{Domain: authz.Identifier.Value, Challenge: dns01})
	}

	return &Order{acmeOrder: acmeOrder, Challenges: challenges}, nil
}

// GetChallengeKeyAuthorization returns token || "." || base64url(sha256(JWK
// thumbprint)), the key authorization the challenge value is derived from.
func (c *Client) GetChallengeKeyAuthorization(account *Account, challenge *acme.Challenge) (string, error) {
	client := c.acmeClient(account.Key)
	keyAuth, err := client.HTTP01ChallengeResponse(challenge.Token)
	if err != nil {
		return "", fmt.Errorf("compute key authorization: %w", err)
	}
	return keyAuth, nil
}

// GetDNSRecordValue returns the expected _acme-challenge TXT record value
// for a dns-01 challenge: base64url(sha256(keyAuth)).
func (c *Client) GetDNSRecordValue(ctx context.Context, account *Account, challenge *acme.Challenge) (string, error) {
	client := c.acmeClient(account.Key)
	value, err := client.DNS01ChallengeRecord(challenge.Token)
	if err != nil {
		return "", fmt.Errorf("compute dns-01 record value: %w", err)
	}
	return value, nil
}

// CompleteChallenge tells the directory the challenge's record is in place.
func (c *Client) CompleteChallenge(ctx context.Context, account *Account, challenge *acme.Challenge) error {
	client := c.acmeClient(account.Key)
	if _, err := client.Accept(ctx, challenge); err != nil {
		return fmt.Errorf("accept challenge %s: %w: %w", challenge.URI, model.ErrAcmeProtocol, err)
	}
	return nil
}

// WaitForOrderCompletion polls the order until it is valid, or returns
// model.ErrOrderInvalid if the authority rejects it.
func (c *Client) WaitForOrderCompletion(ctx context.Context, account *Account, order *Order) error {
	ctx, cancel := context.WithTimeout(ctx, orderPollDeadline)
	defer cancel()

	client := c.acmeClient(account.Key)
	finalized, err := client.WaitOrder(ctx, order.acmeOrder.URI)
	if err != nil {
		return fmt.Errorf("wait order %s: %w: %w", order.acmeOrder.URI, model.ErrOrderInvalid, err)
	}
	order.acmeOrder = finalized
	return nil
}

// FinalizeCertificate submits the DER-encoded CSR and downloads the issued
// chain, returning leaf PEM followed by intermediate PEM blocks.
func (c *Client) FinalizeCertificate(ctx context.Context, account *Account, order *Order, csrDER []byte) (leafPEM, chainPEM []byte, err error) {
	client := c.acmeClient(account.Key)

	certDER, _, err := client.CreateOrderCert(ctx, order.acmeOrder.FinalizeURL, csrDER, true)
	if err != nil {
		return nil, nil, fmt.Errorf("finalize order: %w: %w", model.ErrAcmeProtocol, err)
	}
	if len(certDER) == 0 {
		return nil, nil, fmt.Errorf("finalize order: empty certificate chain: %w", model.ErrAcmeProtocol)
	}

	for i, der := range certDER {
		block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
		if i == 0 {
			leafPEM = block
		} else {
			chainPEM = append(chainPEM, block...)
		}
	}
	return leafPEM, chainPEM, nil
}

func parseECKey(keyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("decode account key pem")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse ec account key: %w", err)
	}
	return key, nil
}
