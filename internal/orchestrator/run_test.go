package orchestrator

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCertPEM(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestSplitPEMBlocks_MultipleIntermediates(t *testing.T) {
	a := selfSignedCertPEM(t)
	b := selfSignedCertPEM(t)
	chain := append(append([]byte{}, a...), b...)

	blocks := splitPEMBlocks(chain)
	require.Len(t, blocks, 2, "both intermediates must survive the split, not just the last one")
	assert.Equal(t, string(a), blocks[0])
	assert.Equal(t, string(b), blocks[1])
}

func TestSplitPEMBlocks_Single(t *testing.T) {
	a := selfSignedCertPEM(t)
	blocks := splitPEMBlocks(a)
	require.Len(t, blocks, 1)
	assert.Equal(t, string(a), blocks[0])
}

func TestSplitPEMBlocks_Empty(t *testing.T) {
	assert.Empty(t, splitPEMBlocks(nil))
}
