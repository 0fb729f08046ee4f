// Package certstore lays out per-domain, per-environment certificate
// artifacts on disk, with path-traversal-hardened paths and atomic writes.
package certstore

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/edvin/renewd/internal/model"
)

// Store is the filesystem-backed certificate artifact layout rooted at Dir.
type Store struct {
	dir string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("certstore: create root %s: %w", dir, err)
	}
	return &Store{dir: dir, locks: map[string]*sync.Mutex{}}, nil
}

// lockFor returns the per-domain mutex, serializing concurrent writes for
// the same FQDN while leaving distinct domains lock-free. The Load* methods
// and Reusable take no lock; they rely on writeAtomic's rename so a reader
// sees either the old or the new file.
func (s *Store) lockFor(fqdn string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	m, ok := s.locks[fqdn]
	if !ok {
		m = &sync.Mutex{}
		s.locks[fqdn] = m
	}
	return m
}

// domainPath returns the hardened, traversal-safe directory for one FQDN.
func (s *Store) domainPath(fqdn string) (string, error) {
	clean := filepath.Base(filepath.Clean(strings.TrimPrefix(fqdn, "*.")))
	if clean == "." || clean == string(filepath.Separator) || clean == "" {
		return "", fmt.Errorf("certstore: invalid domain %q", fqdn)
	}

	root, err := filepath.Abs(s.dir)
	if err != nil {
		return "", fmt.Errorf("certstore: resolve root: %w", err)
	}
	full := filepath.Join(root, clean)
	if !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("certstore: domain %q escapes store root", fqdn)
	}
	return full, nil
}

func (s *Store) envPath(fqdn, environment string) (string, error) {
	domainDir, err := s.domainPath(fqdn)
	if err != nil {
		return "", err
	}
	return filepath.Join(domainDir, environment), nil
}

// EnsureDirs creates the domain and environment directories for fqdn.
func (s *Store) EnsureDirs(fqdn, environment string) error {
	envDir, err := s.envPath(fqdn, environment)
	if err != nil {
		return err
	}
	return os.MkdirAll(envDir, 0o755)
}

// writeAtomic writes data to name via a tempfile-then-rename so readers
// never observe a partially written file.
func writeAtomic(name string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(name)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("certstore: create tempfile: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("certstore: write tempfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("certstore: close tempfile: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("certstore: chmod tempfile: %w", err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		return fmt.Errorf("certstore: rename tempfile: %w", err)
	}
	return nil
}

// SaveCSR persists the CSR (and, if present, its private key) for fqdn.
func (s *Store) SaveCSR(fqdn string, csrPEM, keyPEM []byte) error {
	s.lockFor(fqdn).Lock()
	defer s.lockFor(fqdn).Unlock()

	domainDir, err := s.domainPath(fqdn)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(domainDir, 0o755); err != nil {
		return fmt.Errorf("certstore: create domain dir: %w", err)
	}

	if err := writeAtomic(filepath.Join(domainDir, "csr.pem"), csrPEM, 0o644); err != nil {
		return err
	}
	if len(keyPEM) > 0 {
		if err := writeAtomic(filepath.Join(domainDir, "private_key.pem"), keyPEM, 0o600); err != nil {
			return err
		}
	}
	return s.appendLog(fqdn, "CSR saved")
}

// LoadCSR returns the persisted CSR PEM for fqdn, or nil if none exists.
func (s *Store) LoadCSR(fqdn string) ([]byte, error) {
	domainDir, err := s.domainPath(fqdn)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(domainDir, "csr.pem"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("certstore: read csr: %w", err)
	}
	return data, nil
}

// SaveAccountKey persists an ACME account key PEM for (fqdn, environment).
func (s *Store) SaveAccountKey(fqdn, environment string, keyPEM []byte) error {
	s.lockFor(fqdn).Lock()
	defer s.lockFor(fqdn).Unlock()

	if err := s.EnsureDirs(fqdn, environment); err != nil {
		return err
	}
	envDir, _ := s.envPath(fqdn, environment)
	return writeAtomic(filepath.Join(envDir, "account_key.pem"), keyPEM, 0o600)
}

// LoadAccountKey returns the cached ACME account key PEM, or nil if absent.
func (s *Store) LoadAccountKey(fqdn, environment string) ([]byte, error) {
	envDir, err := s.envPath(fqdn, environment)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(envDir, "account_key.pem"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("certstore: read account key: %w", err)
	}
	return data, nil
}

// SaveAccountURL persists the registered ACME account URL.
func (s *Store) SaveAccountURL(fqdn, environment, url string) error {
	s.lockFor(fqdn).Lock()
	defer s.lockFor(fqdn).Unlock()

	if err := s.EnsureDirs(fqdn, environment); err != nil {
		return err
	}
	envDir, _ := s.envPath(fqdn, environment)
	return writeAtomic(filepath.Join(envDir, "account_url.txt"), []byte(url), 0o600)
}

// LoadAccountURL returns the cached ACME account URL, or "" if absent.
func (s *Store) LoadAccountURL(fqdn, environment string) (string, error) {
	envDir, err := s.envPath(fqdn, environment)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(envDir, "account_url.txt"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("certstore: read account url: %w", err)
	}
	return string(data), nil
}

// SaveCertificate writes leaf, chain, and the concatenated fullchain for
// (fqdn, environment). For general-purpose connections it also writes
// convenience <fqdn>.crt/.key copies when keyPEM is non-empty.
func (s *Store) SaveCertificate(fqdn, environment string, leafPEM, chainPEM, keyPEM []byte, general bool) error {
	s.lockFor(fqdn).Lock()
	defer s.lockFor(fqdn).Unlock()

	if err := s.EnsureDirs(fqdn, environment); err != nil {
		return err
	}
	envDir, _ := s.envPath(fqdn, environment)

	if err := writeAtomic(filepath.Join(envDir, "certificate.pem"), leafPEM, 0o644); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(envDir, "chain.pem"), chainPEM, 0o644); err != nil {
		return err
	}
	full := append(append([]byte{}, leafPEM...), chainPEM...)
	if err := writeAtomic(filepath.Join(envDir, "fullchain.pem"), full, 0o644); err != nil {
		return err
	}

	if general {
		if err := writeAtomic(filepath.Join(envDir, fqdn+".crt"), leafPEM, 0o644); err != nil {
			return err
		}
		if len(keyPEM) > 0 {
			if err := writeAtomic(filepath.Join(envDir, fqdn+".key"), keyPEM, 0o600); err != nil {
				return err
			}
		}
	}

	return s.appendLog(fqdn, "certificate obtained for environment "+environment)
}

// LoadCertificate returns the persisted leaf and chain PEM separately, for
// reinstalling an already-issued certificate without reissuing it.
func (s *Store) LoadCertificate(fqdn, environment string) (leafPEM, chainPEM []byte, err error) {
	envDir, err := s.envPath(fqdn, environment)
	if err != nil {
		return nil, nil, err
	}
	leafPEM, err = os.ReadFile(filepath.Join(envDir, "certificate.pem"))
	if err != nil {
		return nil, nil, fmt.Errorf("certstore: read certificate: %w", err)
	}
	chainPEM, err = os.ReadFile(filepath.Join(envDir, "chain.pem"))
	if os.IsNotExist(err) {
		chainPEM, err = nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("certstore: read chain: %w", err)
	}
	return leafPEM, chainPEM, nil
}

// LoadFullChain returns the persisted fullchain.pem bytes, falling back to
// certificate.pem when fullchain.pem is absent, or nil if neither exists.
func (s *Store) LoadFullChain(fqdn, environment string) ([]byte, error) {
	envDir, err := s.envPath(fqdn, environment)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(envDir, "fullchain.pem"))
	if os.IsNotExist(err) {
		data, err = os.ReadFile(filepath.Join(envDir, "certificate.pem"))
		if os.IsNotExist(err) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("certstore: read fullchain: %w", err)
	}
	return data, nil
}

// Reusable reports whether fqdn already has a certificate valid for more
// than 30 more days. Any I/O or parse error is treated as "not reusable",
// never as fatal.
func (s *Store) Reusable(fqdn, environment string) (*model.CertificateArtifacts, bool) {
	data, err := s.LoadFullChain(fqdn, environment)
	if err != nil || len(data) == 0 {
		return nil, false
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, false
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, false
	}

	art := &model.CertificateArtifacts{
		FQDN:        fqdn,
		Environment: environment,
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
	}
	return art, art.Reusable(time.Now())
}

// appendLog appends a timestamped line to the per-domain renewal.log.
func (s *Store) appendLog(fqdn, line string) error {
	domainDir, err := s.domainPath(fqdn)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(domainDir, "renewal.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("certstore: open renewal log: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339), line)
	return err
}
