// Package device talks to a VOS appliance's platform certificate-management
// REST API: CSR generation and identity/trust certificate upload.
package device

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edvin/renewd/internal/model"
)

const requestTimeout = 30 * time.Second

// VOSClient calls the platformcom certmgr API of one appliance. Certificate
// validation is disabled because appliances commonly present a self-signed
// certificate before their own renewal completes.
type VOSClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// New returns a VOSClient for the given connection's host and credentials.
func New(conn *model.Connection) *VOSClient {
	return &VOSClient{
		baseURL:  "https://" + conn.FQDN(),
		username: conn.Username,
		password: conn.Password,
		http: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

type csrRequest struct {
	Service       string   `json:"service"`
	Distribution  string   `json:"distribution"`
	CommonName    string   `json:"commonName"`
	KeyType       string   `json:"keyType"`
	KeyLength     int      `json:"keyLength"`
	HashAlgorithm string   `json:"hashAlgorithm"`
	AltNames      []string `json:"altNames,omitempty"`
}

type csrResponse struct {
	CSR string `json:"csr"`
}

// GenerateCSR asks the appliance to generate a CSR for commonName (+ any SAN
// alt names), returning the PEM-encoded CSR.
func (c *VOSClient) GenerateCSR(ctx context.Context, commonName string, altNames []string) (string, error) {
	body := csrRequest{
		Service:       "tomcat",
		Distribution:  "this-server",
		CommonName:    commonName,
		KeyType:       "rsa",
		KeyLength:     2048,
		HashAlgorithm: "sha256",
		AltNames:      altNames,
	}

	var resp csrResponse
	if err := c.postJSON(ctx, "/platformcom/api/v1/certmgr/config/csr", body, &resp); err != nil {
		return "", fmt.Errorf("generate csr: %w", err)
	}
	if resp.CSR == "" {
		return "", fmt.Errorf("generate csr: empty response: %w", model.ErrDeviceAPI)
	}
	return resp.CSR, nil
}

type identityUploadRequest struct {
	Service      string   `json:"service"`
	Certificates []string `json:"certificates"`
}

// UploadIdentityCertificate installs the leaf certificate as the Tomcat
// identity certificate.
func (c *VOSClient) UploadIdentityCertificate(ctx context.Context, leafPEM string) error {
	body := identityUploadRequest{Service: "tomcat", Certificates: []string{leafPEM}}
	if err := c.postJSON(ctx, "/platformcom/api/v1/certmgr/config/identity/certificates", body, nil); err != nil {
		return fmt.Errorf("upload identity certificate: %w", err)
	}
	return nil
}

type trustListResponse struct {
	Certificates []string `json:"certificates"`
}

// ListTrustCertificates returns certificates already trusted by the
// appliance. Failures are non-fatal: callers treat an error as "no trusts
// known".
func (c *VOSClient) ListTrustCertificates(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/platformcom/api/v1/certmgr/config/trust/certificate?service=tomcat", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list trust certificates: status %d", resp.StatusCode)
	}

	var out trustListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Certificates, nil
}

type trustUploadRequest struct {
	Service      []string `json:"service"`
	Certificates []string `json:"certificates"`
	Description  string   `json:"description"`
}

// UploadTrustCertificates uploads only the chain certificates not already
// present on the appliance (by normalized PEM equality).
func (c *VOSClient) UploadTrustCertificates(ctx context.Context, chainPEMs []string) error {
	existing, err := c.ListTrustCertificates(ctx)
	if err != nil {
		existing = nil
	}

	newOnly := make([]string, 0, len(chainPEMs))
	for _, candidate := range chainPEMs {
		if !containsNormalized(existing, candidate) {
			newOnly = append(newOnly, candidate)
		}
	}
	if len(newOnly) == 0 {
		return nil
	}

	body := trustUploadRequest{
		Service:      []string{"tomcat"},
		Certificates: newOnly,
		Description:  "Trust Certificate",
	}
	if err := c.postJSON(ctx, "/platformcom/api/v1/certmgr/config/trust/certificates", body, nil); err != nil {
		return fmt.Errorf("upload trust certificates: %w", err)
	}
	return nil
}

func containsNormalized(pems []string, candidate string) bool {
	norm := normalizePEM(candidate)
	for _, p := range pems {
		if normalizePEM(p) == norm {
			return true
		}
	}
	return false
}

func normalizePEM(pem string) string {
	return strings.TrimSpace(strings.ReplaceAll(pem, "\r\n", "\n"))
}

func (c *VOSClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s: %w", path, resp.StatusCode, string(respBody), model.ErrDeviceAPI)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// SplitChain splits a downloaded PEM chain into the leaf certificate and
// the remaining intermediates, on "-----END CERTIFICATE-----" boundaries.
func SplitChain(fullchainPEM string) (leaf string, intermediates []string) {
	const marker = "-----END CERTIFICATE-----"
	parts := strings.SplitAfter(fullchainPEM, marker)

	var blocks []string
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			blocks = append(blocks, trimmed+"\n")
		}
	}
	if len(blocks) == 0 {
		return "", nil
	}
	return blocks[0], blocks[1:]
}
