// Package configstore persists Connections, Settings, and RenewalStatus
// records. The orchestrator depends only on the ConfigStore interface; the
// Postgres-backed implementation in postgres.go is one concrete binding.
package configstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/renewd/internal/model"
)

// DB is the subset of *pgxpool.Pool the store depends on, narrowed so tests
// can substitute a mock without a real connection.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// ConfigStore is the persistence boundary the orchestrator consumes. It is
// the "Config Store" external collaborator: the orchestrator never reaches
// into a database directly.
type ConfigStore interface {
	GetConnectionByID(ctx context.Context, id int64) (*model.Connection, error)
	UpdateConnection(ctx context.Context, id int64, fields map[string]any) error
	GetSettingsByProvider(ctx context.Context, provider string) (map[string]string, error)

	SaveRenewalStatus(ctx context.Context, status *model.RenewalStatus) error
	GetRenewalStatus(ctx context.Context, id string) (*model.RenewalStatus, error)
	GetActiveRenewalStatusesForConnection(ctx context.Context, connectionID int64) ([]*model.RenewalStatus, error)
	GetAllNonTerminalRenewalStatuses(ctx context.Context) ([]*model.RenewalStatus, error)

	CreateConnection(ctx context.Context, conn *model.Connection) (int64, error)
	UpsertSetting(ctx context.Context, s model.Setting) error
}
