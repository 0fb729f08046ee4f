package orchestrator

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/renewd/internal/acmeclient"
	"github.com/edvin/renewd/internal/device"
	"github.com/edvin/renewd/internal/dnsprovider"
	"github.com/edvin/renewd/internal/model"
	"github.com/edvin/renewd/internal/propagation"
	"github.com/edvin/renewd/internal/sshexec"
)

// run holds everything scoped to one renewal attempt: the ACME order, the
// DNS challenge records it created, and the provider it used to create
// them. None of this is retained on Orchestrator once execute returns, so
// two renewals for different connections never share state, and a retried
// renewal for the same connection always starts from a clean slate.
type run struct {
	o      *Orchestrator
	conn   *model.Connection
	status *model.RenewalStatus
	log    zerolog.Logger

	dnsRecords []dnsRecordRef
}

// dnsRecordRef is one TXT challenge record this renewal created, scoped so
// cleanup only ever touches records this run itself is responsible for.
// domain is the identifier the challenge proved control of, not the
// "_acme-challenge."-prefixed record name: provider adapters own that
// prefix themselves.
type dnsRecordRef struct {
	domain   string
	recordID string
}

func (r *run) execute(ctx context.Context) {
	domains := r.conn.Domains()
	fqdn := r.conn.FQDN()

	if art, ok := r.o.certs.Reusable(fqdn, r.o.environment); ok {
		r.log.Info().Time("not_after", art.NotAfter).Msg("existing certificate still has more than 30 days validity, skipping issuance")

		leafPEM, chainPEM, err := r.o.certs.LoadCertificate(fqdn, r.o.environment)
		if err != nil {
			r.fail(ctx, fmt.Errorf("load reusable certificate: %w", err))
			return
		}

		r.transition(ctx, model.StateUploadingCert, "existing certificate still valid, reinstalling without reissuing")
		if err := r.install(ctx, leafPEM, chainPEM); err != nil {
			r.fail(ctx, fmt.Errorf("reinstall reused certificate: %w", err))
			return
		}

		r.transition(ctx, model.StateCompleted, "existing certificate still valid, renewal skipped")
		return
	}

	csrDER, csrPEM, keyPEM, err := r.generateCSR(ctx, fqdn, domains)
	if err != nil {
		r.fail(ctx, fmt.Errorf("generate csr: %w", err))
		return
	}
	if err := r.o.certs.SaveCSR(fqdn, csrPEM, keyPEM); err != nil {
		r.log.Warn().Err(err).Msg("failed to persist csr")
	}

	account, err := r.loadOrCreateAccount(ctx, fqdn)
	if err != nil {
		r.fail(ctx, fmt.Errorf("acme account: %w", err))
		return
	}

	r.transition(ctx, model.StateRequestingCertificate, "requesting certificate order from ACME directory")
	order, err := r.o.acme.RequestCertificate(ctx, account, domains)
	if err != nil {
		r.fail(ctx, err)
		return
	}

	if len(order.Challenges) > 0 {
		if err := r.satisfyChallenges(ctx, account, order); err != nil {
			r.fail(ctx, err)
			return
		}
	}

	r.transition(ctx, model.StateCompletingValidation, "waiting for ACME authority to finalize order")
	if err := r.o.acme.WaitForOrderCompletion(ctx, account, order); err != nil {
		r.fail(ctx, err)
		return
	}

	r.transition(ctx, model.StateDownloadingCert, "downloading issued certificate")
	leafPEM, chainPEM, err := r.o.acme.FinalizeCertificate(ctx, account, order, csrDER)
	if err != nil {
		r.fail(ctx, err)
		return
	}

	general := r.conn.AppType == model.AppTypeGeneral
	if err := r.o.certs.SaveCertificate(fqdn, r.o.environment, leafPEM, chainPEM, keyPEM, general); err != nil {
		r.fail(ctx, fmt.Errorf("save certificate: %w", err))
		return
	}

	r.transition(ctx, model.StateUploadingCert, "installing certificate on target")
	if err := r.install(ctx, leafPEM, chainPEM); err != nil {
		r.fail(ctx, err)
		return
	}

	now := time.Now().UTC()
	if err := r.o.store.UpdateConnection(ctx, r.conn.ID, map[string]any{
		"last_cert_issued":     now,
		"cert_count_this_week": r.conn.CertCountThisWeek + 1,
	}); err != nil {
		r.log.Warn().Err(err).Msg("failed to update connection bookkeeping fields")
	}

	r.cleanupDNSRecords(ctx)
	r.transition(ctx, model.StateCompleted, "certificate issued and installed")
}

// generateCSR returns the CSR in DER and PEM form, plus the PEM-encoded
// private key when one was generated locally (VOS connections generate
// their key on-device and never return it).
func (r *run) generateCSR(ctx context.Context, fqdn string, domains []string) (csrDER, csrPEM, keyPEM []byte, err error) {
	r.transition(ctx, model.StateGeneratingCSR, "generating certificate signing request")

	if r.conn.AppType == model.AppTypeVOS {
		dev := device.New(r.conn)
		pemStr, err := dev.GenerateCSR(ctx, fqdn, r.conn.AltNames)
		if err != nil {
			return nil, nil, nil, err
		}
		block, _ := pem.Decode([]byte(pemStr))
		if block == nil {
			return nil, nil, nil, fmt.Errorf("device returned csr: %w", model.ErrCsrFormatInvalid)
		}
		return block.Bytes, []byte(pemStr), nil, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate private key: %w", err)
	}

	template := &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: fqdn},
		DNSNames: domains,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create csr: %w", err)
	}

	csrPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
	keyDER := x509.MarshalPKCS1PrivateKey(key)
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: keyDER})
	return der, csrPEM, keyPEM, nil
}

func (r *run) loadOrCreateAccount(ctx context.Context, fqdn string) (*acmeclient.Account, error) {
	r.transition(ctx, model.StateCreatingAccount, "preparing ACME account")

	keyPEM, err := r.o.certs.LoadAccountKey(fqdn, r.o.environment)
	if err != nil {
		return nil, fmt.Errorf("load cached account key: %w", err)
	}
	accountURL, err := r.o.certs.LoadAccountURL(fqdn, r.o.environment)
	if err != nil {
		return nil, fmt.Errorf("load cached account url: %w", err)
	}

	if len(keyPEM) > 0 && accountURL != "" {
		account, err := r.o.acme.LoadAccount(ctx, keyPEM, accountURL)
		if err == nil {
			return account, nil
		}
		r.log.Warn().Err(err).Msg("cached acme account is no longer valid, registering a new one")
	}

	account, err := r.o.acme.CreateAccount(ctx, r.o.contactEmail)
	if err != nil {
		return nil, err
	}

	newKeyPEM, err := account.KeyPEM()
	if err == nil {
		if err := r.o.certs.SaveAccountKey(fqdn, r.o.environment, newKeyPEM); err != nil {
			r.log.Warn().Err(err).Msg("failed to persist acme account key")
		}
	}
	if err := r.o.certs.SaveAccountURL(fqdn, r.o.environment, account.AccountURL); err != nil {
		r.log.Warn().Err(err).Msg("failed to persist acme account url")
	}

	return account, nil
}

// satisfyChallenges publishes every pending challenge's DNS-01 record,
// waits for propagation (or, for the manual provider, for an operator to
// confirm it), and tells the ACME authority each is ready.
func (r *run) satisfyChallenges(ctx context.Context, account *acmeclient.Account, order *acmeclient.Order) error {
	r.transition(ctx, model.StateCreatingDNSChallenge, "creating DNS-01 challenge records")

	if r.conn.DNSProvider == dnsprovider.Custom {
		return r.satisfyChallengesManually(ctx, account, order)
	}

	provider, err := r.dnsProviderFor(ctx)
	if err != nil {
		return err
	}

	for _, pc := range order.Challenges {
		recordValue, err := r.o.acme.GetDNSRecordValue(ctx, account, pc.Challenge)
		if err != nil {
			return err
		}

		recordName := dnsprovider.ChallengeRecordName(pc.Domain)
		if err := provider.CleanupTxtRecords(ctx, pc.Domain); err != nil {
			r.log.Warn().Err(err).Str("record", recordName).Msg("failed to clear stale challenge records before creating a new one")
		}

		recordID, err := provider.CreateTxtRecord(ctx, pc.Domain, recordValue)
		if err != nil {
			return fmt.Errorf("create dns-01 record for %s: %w", recordName, err)
		}
		r.dnsRecords = append(r.dnsRecords, dnsRecordRef{domain: pc.Domain, recordID: recordID})

		r.transition(ctx, model.StateWaitingDNSPropagation, fmt.Sprintf("waiting for %s to propagate", recordName))
		propagationCtx, cancel := context.WithTimeout(ctx, propagationTimeout)
		err = r.o.verify.WaitForTXT(propagationCtx, recordName, recordValue)
		cancel()
		if err != nil {
			return err
		}

		if err := r.o.acme.CompleteChallenge(ctx, account, pc.Challenge); err != nil {
			return err
		}

		if err := sleepOrCancel(ctx, postChallengeGrace); err != nil {
			return err
		}
	}

	return nil
}

// satisfyChallengesManually records the required DNS entry on the status
// so an operator can publish it by hand, then polls propagation itself
// until the record appears or manualDNSTimeout elapses.
func (r *run) satisfyChallengesManually(ctx context.Context, account *acmeclient.Account, order *acmeclient.Order) error {
	for _, pc := range order.Challenges {
		recordValue, err := r.o.acme.GetDNSRecordValue(ctx, account, pc.Challenge)
		if err != nil {
			return err
		}
		recordName := dnsprovider.ChallengeRecordName(pc.Domain)

		r.status.ManualDNS = &model.ManualDNSEntry{
			RecordName:   recordName,
			RecordValue:  recordValue,
			RecordType:   "TXT",
			Instructions: fmt.Sprintf("Create a TXT record named %s with value %s, then wait for it to propagate.", recordName, recordValue),
		}
		r.transition(ctx, model.StateWaitingManualDNS, "waiting for operator to publish DNS-01 record manually")

		waitCtx, cancel := context.WithTimeout(ctx, manualDNSTimeout)
		manualVerifier := propagation.New(r.o.verify.Panel()).WithInterval(manualDNSPollInterval)
		err = manualVerifier.WaitForTXT(waitCtx, recordName, recordValue)
		cancel()
		if err != nil {
			return fmt.Errorf("manual dns record for %s: %w", recordName, model.ErrManualDnsTimeout)
		}
		r.status.ManualDNS = nil

		if err := r.o.acme.CompleteChallenge(ctx, account, pc.Challenge); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) dnsProviderFor(ctx context.Context) (dnsprovider.Provider, error) {
	settings, err := r.o.store.GetSettingsByProvider(ctx, r.conn.DNSProvider)
	if err != nil {
		return nil, fmt.Errorf("load dns provider settings: %w", err)
	}
	provider, err := dnsprovider.New(ctx, r.conn.DNSProvider, settings)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// cleanupDNSRecords deletes only the TXT records this run itself created,
// and only when cleanup is enabled. It is always best-effort: a cleanup
// failure never fails an otherwise-successful renewal.
func (r *run) cleanupDNSRecords(ctx context.Context) {
	if !r.o.cleanupDNS || len(r.dnsRecords) == 0 || r.conn.DNSProvider == dnsprovider.Custom {
		return
	}

	provider, err := r.dnsProviderFor(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to build dns provider for challenge record cleanup")
		return
	}
	for _, rec := range r.dnsRecords {
		if err := provider.DeleteTxtRecord(ctx, rec.domain, rec.recordID); err != nil {
			r.log.Warn().Err(err).Str("record", dnsprovider.ChallengeRecordName(rec.domain)).Msg("failed to delete challenge record")
		}
	}
}

// install uploads the issued certificate to a VOS appliance through its
// platform API and, when SSH restart is enabled, restarts its Tomcat
// service. For every other application type it does nothing: SaveCertificate
// has already published the files, and no service restart is run.
func (r *run) install(ctx context.Context, leafPEM, chainPEM []byte) error {
	if r.conn.AppType != model.AppTypeVOS {
		return nil
	}

	dev := device.New(r.conn)
	if err := dev.UploadIdentityCertificate(ctx, string(leafPEM)); err != nil {
		return err
	}

	if len(chainPEM) > 0 {
		if err := dev.UploadTrustCertificates(ctx, splitPEMBlocks(chainPEM)); err != nil {
			return err
		}
	}

	if r.conn.EnableSSH && r.conn.AutoRestartService {
		if _, err := sshexec.RestartTomcat(ctx, r.conn.Hostname, r.conn.Username, r.conn.Password); err != nil {
			r.log.Warn().Err(err).Msg("certificate installed but service restart failed")
		}
	}
	return nil
}

// splitPEMBlocks splits a PEM-encoded certificate chain into one PEM string
// per certificate, preserving every block (chainPEM holds only
// intermediates, never a leaf, so nothing here is assumed to be discardable).
func splitPEMBlocks(chainPEM []byte) []string {
	var blocks []string
	rest := chainPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		blocks = append(blocks, string(pem.EncodeToMemory(block)))
	}
	return blocks
}

func (r *run) transition(ctx context.Context, state, message string) {
	r.status.Transition(state, message)
	r.log.Info().Str("state", state).Msg(message)
	r.o.persist(ctx, r.status, r.log)
}

func (r *run) fail(ctx context.Context, err error) {
	r.status.Fail(err)
	r.log.Error().Err(err).Msg("renewal failed")
	r.cleanupDNSRecords(ctx)
	r.o.persist(ctx, r.status, r.log)
}
