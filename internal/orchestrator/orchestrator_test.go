package orchestrator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edvin/renewd/internal/certstore"
	"github.com/edvin/renewd/internal/configstore"
	"github.com/edvin/renewd/internal/model"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *configstore.Memory) {
	t.Helper()
	store := configstore.NewMemory()
	certs, err := certstore.New(t.TempDir())
	require.NoError(t, err)
	o := New(store, certs, zerolog.Nop(), "ops@example.com", true, 2)
	return o, store
}

func TestStartRenewal_DuplicateReturnsAlreadyActive(t *testing.T) {
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	id, err := store.CreateConnection(ctx, &model.Connection{
		Name: "test", Hostname: "cucm01", Domain: "example.com",
		AppType: model.AppTypeGeneral, DNSProvider: model.DNSProviderCustom,
	})
	require.NoError(t, err)

	_, err = o.StartRenewal(ctx, id)
	require.NoError(t, err)

	_, err = o.StartRenewal(ctx, id)
	require.ErrorIs(t, err, model.ErrAlreadyActive)
}

func TestCancelRenewal_UnknownReturnsFalse(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	require.False(t, o.CancelRenewal("does-not-exist"))
}

func TestNew_DNSCleanupGate(t *testing.T) {
	store := configstore.NewMemory()
	certs, err := certstore.New(t.TempDir())
	require.NoError(t, err)

	staging := New(store, certs, zerolog.Nop(), "ops@example.com", true, 1)
	require.False(t, staging.cleanupDNS, "staging should leave challenge records in place by default")

	stagingForced := New(store, certs, zerolog.Nop(), "ops@example.com", true, 1, WithDNSCleanup(true))
	require.True(t, stagingForced.cleanupDNS, "forcing cleanup must override the staging default")

	production := New(store, certs, zerolog.Nop(), "ops@example.com", false, 1)
	require.True(t, production.cleanupDNS, "production must always clean up challenge records")

	productionUnforced := New(store, certs, zerolog.Nop(), "ops@example.com", false, 1, WithDNSCleanup(false))
	require.True(t, productionUnforced.cleanupDNS, "production cleanup must not be disabled by a false forced flag")
}

func TestRecoverInterrupted_MarksNonTerminalAsFailed(t *testing.T) {
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	status := &model.RenewalStatus{
		ID:           "r1",
		ConnectionID: 1,
		State:        model.StateWaitingDNSPropagation,
	}
	require.NoError(t, store.SaveRenewalStatus(ctx, status))

	require.NoError(t, o.RecoverInterrupted(ctx))

	recovered, err := store.GetRenewalStatus(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, model.StateFailed, recovered.State)
	require.Contains(t, recovered.Error, "interrupted")
}

func TestRecoverInterrupted_LeavesTerminalStatusesAlone(t *testing.T) {
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	status := &model.RenewalStatus{ID: "r2", ConnectionID: 2, State: model.StateCompleted}
	require.NoError(t, store.SaveRenewalStatus(ctx, status))

	require.NoError(t, o.RecoverInterrupted(ctx))

	recovered, err := store.GetRenewalStatus(ctx, "r2")
	require.NoError(t, err)
	require.Equal(t, model.StateCompleted, recovered.State)
}
