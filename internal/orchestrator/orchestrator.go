// Package orchestrator drives one certificate renewal end to end: CSR
// generation, ACME DNS-01 validation across the connection's configured
// provider, propagation verification, certificate download, and device
// installation. It replaces this codebase family's Temporal workflow engine
// with a directly managed goroutine per renewal, bounded by a semaphore,
// since a single always-on renewal daemon has no need for durable
// cross-process workflow state.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/edvin/renewd/internal/acmeclient"
	"github.com/edvin/renewd/internal/certstore"
	"github.com/edvin/renewd/internal/configstore"
	"github.com/edvin/renewd/internal/metrics"
	"github.com/edvin/renewd/internal/model"
	"github.com/edvin/renewd/internal/propagation"
)

const (
	// acmeDirectoryStaging and acmeDirectoryProduction are Let's Encrypt's
	// published ACME v2 directory endpoints.
	acmeDirectoryStaging    = "https://acme-staging-v02.api.letsencrypt.org/directory"
	acmeDirectoryProduction = "https://acme-v02.api.letsencrypt.org/directory"

	// manualDNSPollInterval is how often the orchestrator re-checks
	// propagation while waiting on an operator to publish a manual record.
	manualDNSPollInterval = 10 * time.Second
	manualDNSTimeout      = 5 * time.Minute

	// propagationTimeout bounds how long an automatic DNS provider's
	// record is given to propagate before the renewal fails.
	propagationTimeout = 2 * time.Minute

	// postChallengeGrace gives the ACME authority a moment to begin
	// validation bookkeeping before the next challenge is accepted.
	postChallengeGrace = 3 * time.Second
)

// Orchestrator coordinates renewals for every Connection in the store. It
// holds no per-renewal state outside the active-set and cancel-func maps; the DNS challenge
// records and ACME order for a given renewal live only in that renewal's
// goroutine, never as Orchestrator fields, so one connection's records can
// never leak into another's cleanup.
type Orchestrator struct {
	store   configstore.ConfigStore
	acme    *acmeclient.Client
	certs   *certstore.Store
	verify  *propagation.Verifier
	logger  zerolog.Logger

	contactEmail    string
	environment     string
	staging         bool
	forceDNSCleanup bool
	cleanupDNS      bool

	sem *semaphore.Weighted

	mu        sync.Mutex
	active    map[int64]string              // connection ID -> active renewal ID
	cancelers map[string]context.CancelFunc // renewal ID -> cancel func
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithPropagationPanel overrides the default public-resolver panel used for
// DNS-01 propagation checks.
func WithPropagationPanel(panel []string) Option {
	return func(o *Orchestrator) { o.verify = propagation.New(panel) }
}

// WithDNSCleanup forces deleting TXT challenge records after validation
// even against the staging directory, where cleanup is otherwise skipped
// so the records stay inspectable. Cleanup always runs against production
// regardless of this setting.
func WithDNSCleanup(forced bool) Option {
	return func(o *Orchestrator) { o.forceDNSCleanup = forced }
}

// New returns an Orchestrator bound to store, issuing certificates against
// the staging or production Let's Encrypt directory depending on staging,
// bounded to maxConcurrent simultaneous renewals.
func New(store configstore.ConfigStore, certs *certstore.Store, logger zerolog.Logger, contactEmail string, staging bool, maxConcurrent int, opts ...Option) *Orchestrator {
	directory := acmeDirectoryProduction
	environment := model.EnvProduction
	if staging {
		directory = acmeDirectoryStaging
		environment = model.EnvStaging
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	o := &Orchestrator{
		store:        store,
		acme:         acmeclient.New(directory),
		certs:        certs,
		verify:       propagation.New(nil),
		logger:       logger.With().Str("component", "orchestrator").Logger(),
		contactEmail: contactEmail,
		environment:  environment,
		staging:      staging,
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		active:       map[int64]string{},
		cancelers:    map[string]context.CancelFunc{},
	}
	for _, opt := range opts {
		opt(o)
	}
	// Challenge records are always cleaned up against production; against
	// staging they're left in place for inspection unless cleanup is forced.
	o.cleanupDNS = !o.staging || o.forceDNSCleanup
	return o
}

// RecoverInterrupted marks every non-terminal RenewalStatus left behind by
// a previous process as failed. Called once at startup, before any new
// renewal is accepted, so a status never reads "in progress" forever after
// a crash or redeploy.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) error {
	statuses, err := o.store.GetAllNonTerminalRenewalStatuses(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted renewals: %w", err)
	}

	for _, status := range statuses {
		if model.IsTerminal(status.State) {
			continue
		}
		status.Fail(model.ErrInterrupted)
		if err := o.store.SaveRenewalStatus(ctx, status); err != nil {
			o.logger.Error().Err(err).Str("renewal_id", status.ID).Msg("failed to persist recovered renewal status")
			continue
		}
		o.logger.Warn().Str("renewal_id", status.ID).Int64("connection_id", status.ConnectionID).
			Msg("marked renewal interrupted by process restart")
	}
	return nil
}

// StartRenewal begins a renewal for connectionID unless one is already
// active for it, in which case it returns model.ErrAlreadyActive. An unknown
// connectionID returns an error wrapping model.ErrNotFound. The renewal runs
// in its own goroutine; StartRenewal returns as soon as the initial status
// row is persisted.
func (o *Orchestrator) StartRenewal(ctx context.Context, connectionID int64) (*model.RenewalStatus, error) {
	if _, err := o.store.GetConnectionByID(ctx, connectionID); err != nil {
		return nil, fmt.Errorf("start renewal: %w", err)
	}

	o.mu.Lock()
	if _, exists := o.active[connectionID]; exists {
		o.mu.Unlock()
		return nil, model.ErrAlreadyActive
	}

	status := &model.RenewalStatus{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		State:        model.StatePending,
		Progress:     model.ProgressForState(model.StatePending),
		StartTime:    time.Now().UTC(),
	}
	status.Log("renewal queued")

	o.active[connectionID] = status.ID
	runCtx, cancel := context.WithCancel(context.Background())
	o.cancelers[status.ID] = cancel
	o.mu.Unlock()

	if err := o.store.SaveRenewalStatus(ctx, status); err != nil {
		o.releaseActive(connectionID, status.ID)
		return nil, fmt.Errorf("persist initial renewal status: %w", err)
	}

	metrics.RenewalsInFlight.Inc()
	go o.run(runCtx, connectionID, status)

	return status, nil
}

// GetRenewalStatus returns the current status of a renewal by ID.
func (o *Orchestrator) GetRenewalStatus(ctx context.Context, renewalID string) (*model.RenewalStatus, error) {
	return o.store.GetRenewalStatus(ctx, renewalID)
}

// CancelRenewal requests cancellation of an in-flight renewal. It returns
// true if a running renewal was found and signaled; the renewal's own
// goroutine transitions it to failed once it observes cancellation at its
// next suspension point.
func (o *Orchestrator) CancelRenewal(renewalID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	cancel, ok := o.cancelers[renewalID]
	if !ok {
		return false
	}
	cancel()
	return true
}

func (o *Orchestrator) releaseActive(connectionID int64, renewalID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[connectionID] == renewalID {
		delete(o.active, connectionID)
	}
	if cancel, ok := o.cancelers[renewalID]; ok {
		cancel()
		delete(o.cancelers, renewalID)
	}
}

// run is the top-level goroutine body for one renewal: it acquires a
// concurrency slot, executes the happy-path steps, persists the status
// after every transition, and always releases the connection's active slot
// and semaphore weight on return.
func (o *Orchestrator) run(ctx context.Context, connectionID int64, status *model.RenewalStatus) {
	defer o.releaseActive(connectionID, status.ID)
	defer metrics.RenewalsInFlight.Dec()

	log := o.logger.With().Str("renewal_id", status.ID).Int64("connection_id", connectionID).Logger()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		status.Fail(fmt.Errorf("wait for renewal slot: %w", model.ErrCancelled))
		o.persist(ctx, status, log)
		return
	}
	defer o.sem.Release(1)

	conn, err := o.store.GetConnectionByID(ctx, connectionID)
	if err != nil {
		status.Fail(fmt.Errorf("load connection: %w", err))
		o.persist(ctx, status, log)
		metrics.RenewalsFinished.WithLabelValues(model.StateFailed, "unknown").Inc()
		return
	}
	log = log.With().Str("fqdn", conn.FQDN()).Str("dns_provider", conn.DNSProvider).Logger()
	metrics.RenewalsStarted.WithLabelValues(conn.DNSProvider).Inc()

	r := &run{
		o:      o,
		conn:   conn,
		status: status,
		log:    log,
	}
	r.execute(ctx)

	metrics.RenewalsFinished.WithLabelValues(status.State, conn.DNSProvider).Inc()
	metrics.RenewalDuration.WithLabelValues(status.State).Observe(time.Since(status.StartTime).Seconds())
}

// sleepOrCancel pauses for d, returning model.ErrCancelled if ctx is
// cancelled first.
func sleepOrCancel(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sleep: %w", model.ErrCancelled)
	}
}

// persist saves status, logging but not failing the caller on a store
// error: the in-memory status object remains authoritative for this
// goroutine even if the write fails. The save ignores cancellation of ctx so
// that a cancelled renewal's failed state still reaches the store.
func (o *Orchestrator) persist(ctx context.Context, status *model.RenewalStatus, log zerolog.Logger) {
	if err := o.store.SaveRenewalStatus(context.WithoutCancel(ctx), status); err != nil {
		log.Error().Err(err).Str("state", status.State).Msg("failed to persist renewal status")
	}
}
