package configstore

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/renewd/internal/model"
)

// mockDB implements the DB interface for testing, mirroring this codebase
// family's pgx-mocking convention.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error { return m.scanFunc(dest...) }

type mockRows struct {
	callIndex int
	scanFuncs []func(dest ...any) error
}

func newMockRows(scanFuncs ...func(dest ...any) error) *mockRows {
	return &mockRows{scanFuncs: scanFuncs}
}

func (m *mockRows) Next() bool { return m.callIndex < len(m.scanFuncs) }
func (m *mockRows) Scan(dest ...any) error {
	fn := m.scanFuncs[m.callIndex]
	m.callIndex++
	return fn(dest...)
}
func (m *mockRows) Err() error                                   { return nil }
func (m *mockRows) Close()                                       {}
func (m *mockRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

func TestGetConnectionByID(t *testing.T) {
	db := &mockDB{}
	row := &mockRow{scanFunc: func(dest ...any) error {
		*dest[0].(*int64) = 1
		*dest[1].(*string) = "ucm01"
		*dest[2].(*string) = model.AppTypeVOS
		*dest[3].(*string) = "ucm01"
		*dest[4].(*string) = "lab.example.com"
		*dest[9].(*string) = model.DNSProviderCloudflare
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(row)

	store := NewPostgres(db)
	conn, err := store.GetConnectionByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "ucm01.lab.example.com", conn.FQDN())
	assert.Equal(t, model.DNSProviderCloudflare, conn.DNSProvider)
}

func TestGetConnectionByID_NotFound(t *testing.T) {
	db := &mockDB{}
	row := &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(row)

	store := NewPostgres(db)
	_, err := store.GetConnectionByID(context.Background(), 99)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateConnection_RejectsUnknownColumn(t *testing.T) {
	store := NewPostgres(&mockDB{})
	err := store.UpdateConnection(context.Background(), 1, map[string]any{"password": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not updatable")
}

func TestUpdateConnection_Allowed(t *testing.T) {
	db := &mockDB{}
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(pgconn.CommandTag{}, nil)

	store := NewPostgres(db)
	err := store.UpdateConnection(context.Background(), 1, map[string]any{
		"last_cert_issued":     time.Now(),
		"cert_count_this_week": 3,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestGetSettingsByProvider(t *testing.T) {
	db := &mockDB{}
	rows := newMockRows(
		func(dest ...any) error {
			*dest[0].(*string) = "CF_KEY"
			*dest[1].(*string) = "secret"
			return nil
		},
	)
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(pgx.Rows(rows), nil)

	store := NewPostgres(db)
	settings, err := store.GetSettingsByProvider(context.Background(), model.DNSProviderCloudflare)
	require.NoError(t, err)
	assert.Equal(t, "secret", settings["CF_KEY"])
}

func TestSaveRenewalStatus_PassesManualDNSColumns(t *testing.T) {
	db := &mockDB{}
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(pgconn.CommandTag{}, nil)

	store := NewPostgres(db)
	st := &model.RenewalStatus{
		ID:           "r1",
		ConnectionID: 1,
		State:        model.StateWaitingManualDNS,
		StartTime:    time.Now(),
		ManualDNS: &model.ManualDNSEntry{
			RecordName:  "_acme-challenge.ucm01.lab.example.com",
			RecordValue: "abc123",
			RecordType:  "TXT",
		},
	}
	require.NoError(t, store.SaveRenewalStatus(context.Background(), st))
	db.AssertExpectations(t)

	args := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, "_acme-challenge.ucm01.lab.example.com", *args[9].(*string))
	assert.Equal(t, "abc123", *args[10].(*string))
	assert.Equal(t, "TXT", *args[11].(*string))
}
