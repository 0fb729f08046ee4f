package acmeclient

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New("https://acme-staging-v02.api.letsencrypt.org/directory")
	assert.Equal(t, "https://acme-staging-v02.api.letsencrypt.org/directory", c.directoryURL)
}

func TestAccountKeyPEM_RoundTrip(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	acct := &Account{Key: key}
	keyPEM, err := acct.KeyPEM()
	require.NoError(t, err)

	parsed, err := parseECKey(keyPEM)
	require.NoError(t, err)
	assert.Equal(t, key.D, parsed.D)
}

func TestParseECKey_InvalidPEM(t *testing.T) {
	_, err := parseECKey([]byte("not pem"))
	require.Error(t, err)
}

func TestParseECKey_WrongBlockType(t *testing.T) {
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("bogus")})
	_, err := parseECKey(block)
	require.Error(t, err)
}
