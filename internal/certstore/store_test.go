package certstore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T, notAfter time.Time) []byte {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		DNSNames:     []string{"ucm01.lab.example.com"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestSaveAndLoadCSR(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SaveCSR("ucm01.lab.example.com", []byte("CSRDATA"), []byte("KEYDATA")))

	csr, err := store.LoadCSR("ucm01.lab.example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("CSRDATA"), csr)
}

func TestLoadCSR_Missing(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	csr, err := store.LoadCSR("nope.example.com")
	require.NoError(t, err)
	assert.Nil(t, csr)
}

func TestDomainPath_StripsTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	p, err := store.domainPath("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, string(filepath.Separator)+"passwd"))
	assert.True(t, strings.HasPrefix(p, store.dir) || strings.HasPrefix(p, mustAbs(t, store.dir)))
}

func mustAbs(t *testing.T, p string) string {
	abs, err := filepath.Abs(p)
	require.NoError(t, err)
	return abs
}

func TestReusable_FreshCertificate(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	leaf := selfSignedCert(t, time.Now().Add(60*24*time.Hour))
	require.NoError(t, store.SaveCertificate("ucm01.lab.example.com", "staging", leaf, nil, nil, false))

	art, reusable := store.Reusable("ucm01.lab.example.com", "staging")
	require.NotNil(t, art)
	assert.True(t, reusable)
}

func TestReusable_ExpiringSoon(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	leaf := selfSignedCert(t, time.Now().Add(5*24*time.Hour))
	require.NoError(t, store.SaveCertificate("ucm01.lab.example.com", "staging", leaf, nil, nil, false))

	_, reusable := store.Reusable("ucm01.lab.example.com", "staging")
	assert.False(t, reusable)
}

func TestReusable_NoCertificate(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, reusable := store.Reusable("nope.example.com", "staging")
	assert.False(t, reusable)
}

func TestLoadCertificate_RoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	leaf := selfSignedCert(t, time.Now().Add(60*24*time.Hour))
	chain := append(selfSignedCert(t, time.Now().Add(90*24*time.Hour)), selfSignedCert(t, time.Now().Add(120*24*time.Hour))...)
	require.NoError(t, store.SaveCertificate("ucm01.lab.example.com", "staging", leaf, chain, nil, false))

	gotLeaf, gotChain, err := store.LoadCertificate("ucm01.lab.example.com", "staging")
	require.NoError(t, err)
	assert.Equal(t, leaf, gotLeaf)
	assert.Equal(t, chain, gotChain)
}

func TestLoadCertificate_NoChain(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	leaf := selfSignedCert(t, time.Now().Add(60*24*time.Hour))
	require.NoError(t, store.SaveCertificate("ucm01.lab.example.com", "staging", leaf, nil, nil, false))

	gotLeaf, gotChain, err := store.LoadCertificate("ucm01.lab.example.com", "staging")
	require.NoError(t, err)
	assert.Equal(t, leaf, gotLeaf)
	assert.Empty(t, gotChain)
}

func TestSaveCertificate_GeneralWritesConvenienceCopies(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	leaf := selfSignedCert(t, time.Now().Add(60*24*time.Hour))
	require.NoError(t, store.SaveCertificate("app.example.com", "prod", leaf, []byte("CHAIN"), []byte("KEY"), true))

	full, err := store.LoadFullChain("app.example.com", "prod")
	require.NoError(t, err)
	assert.Contains(t, string(full), "CERTIFICATE")

	envDir := filepath.Join(store.dir, "app.example.com", "prod")
	crt, err := os.ReadFile(filepath.Join(envDir, "app.example.com.crt"))
	require.NoError(t, err)
	assert.Equal(t, leaf, crt)
	key, err := os.ReadFile(filepath.Join(envDir, "app.example.com.key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("KEY"), key)
}
