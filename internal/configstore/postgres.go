package configstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/renewd/internal/model"
)

// Postgres is the pgx-backed ConfigStore implementation.
type Postgres struct {
	db DB
}

// NewPostgres wraps a DB (typically a *pgxpool.Pool) as a ConfigStore.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) GetConnectionByID(ctx context.Context, id int64) (*model.Connection, error) {
	var c model.Connection
	err := s.db.QueryRow(ctx,
		`SELECT id, name, application_type, hostname, domain, alt_names, username, password,
		        ssl_provider, dns_provider, custom_csr, enable_ssh, auto_restart_service,
		        last_cert_issued, cert_count_this_week, cert_count_reset_date, created_at, updated_at
		 FROM connections WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.AppType, &c.Hostname, &c.Domain, &c.AltNames, &c.Username, &c.Password,
		&c.SSLProvider, &c.DNSProvider, &c.CustomCSR, &c.EnableSSH, &c.AutoRestartService,
		&c.LastCertIssued, &c.CertCountThisWeek, &c.CertCountResetDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("connection %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("get connection %d: %w", id, err)
	}
	return &c, nil
}

func (s *Postgres) CreateConnection(ctx context.Context, c *model.Connection) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO connections (name, application_type, hostname, domain, alt_names, username, password,
		                          ssl_provider, dns_provider, custom_csr, enable_ssh, auto_restart_service)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		c.Name, c.AppType, c.Hostname, c.Domain, c.AltNames, c.Username, c.Password,
		c.SSLProvider, c.DNSProvider, c.CustomCSR, c.EnableSSH, c.AutoRestartService,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create connection: %w", err)
	}
	return id, nil
}

// UpdateConnection applies a sparse set of column updates by name. Only the
// columns the orchestrator actually mutates post-renewal are accepted.
func (s *Postgres) UpdateConnection(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	allowed := map[string]bool{
		"last_cert_issued":      true,
		"cert_count_this_week":  true,
		"cert_count_reset_date": true,
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		if !allowed[k] {
			return fmt.Errorf("update connection %d: column %q is not updatable", id, k)
		}
		names = append(names, k)
	}
	sort.Strings(names)

	query := "UPDATE connections SET "
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		if i > 0 {
			query += ", "
		}
		args = append(args, fields[name])
		query += fmt.Sprintf("%s = $%d", name, len(args))
	}
	args = append(args, id)
	query += fmt.Sprintf(", updated_at = now() WHERE id = $%d", len(args))

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update connection %d: %w", id, err)
	}
	return nil
}

func (s *Postgres) GetSettingsByProvider(ctx context.Context, provider string) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `SELECT key, value FROM settings WHERE provider = $1`, provider)
	if err != nil {
		return nil, fmt.Errorf("get settings for provider %s: %w", provider, err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return out, nil
}

func (s *Postgres) UpsertSetting(ctx context.Context, set model.Setting) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO settings (provider, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (provider, key) DO UPDATE SET value = excluded.value`,
		set.Provider, set.Key, set.Value,
	)
	if err != nil {
		return fmt.Errorf("upsert setting %s/%s: %w", set.Provider, set.Key, err)
	}
	return nil
}

func (s *Postgres) SaveRenewalStatus(ctx context.Context, st *model.RenewalStatus) error {
	var manualName, manualValue, manualType, manualHelp *string
	if st.ManualDNS != nil {
		manualName, manualValue, manualType, manualHelp = &st.ManualDNS.RecordName, &st.ManualDNS.RecordValue, &st.ManualDNS.RecordType, &st.ManualDNS.Instructions
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO renewal_statuses (id, connection_id, state, message, progress, start_time, end_time, error, logs,
		                               manual_dns_name, manual_dns_value, manual_dns_type, manual_dns_help)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   state = excluded.state, message = excluded.message, progress = excluded.progress,
		   end_time = excluded.end_time, error = excluded.error, logs = excluded.logs,
		   manual_dns_name = excluded.manual_dns_name, manual_dns_value = excluded.manual_dns_value,
		   manual_dns_type = excluded.manual_dns_type, manual_dns_help = excluded.manual_dns_help`,
		st.ID, st.ConnectionID, st.State, st.Message, st.Progress, st.StartTime, st.EndTime, st.Error, st.Logs,
		manualName, manualValue, manualType, manualHelp,
	)
	if err != nil {
		return fmt.Errorf("save renewal status %s: %w", st.ID, err)
	}
	return nil
}

func (s *Postgres) GetRenewalStatus(ctx context.Context, id string) (*model.RenewalStatus, error) {
	st, err := scanStatusRow(s.db.QueryRow(ctx,
		`SELECT id, connection_id, state, message, progress, start_time, end_time, error, logs,
		        manual_dns_name, manual_dns_value, manual_dns_type, manual_dns_help
		 FROM renewal_statuses WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("renewal status %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("get renewal status %s: %w", id, err)
	}
	return st, nil
}

func (s *Postgres) GetActiveRenewalStatusesForConnection(ctx context.Context, connectionID int64) ([]*model.RenewalStatus, error) {
	return s.queryStatuses(ctx,
		`SELECT id, connection_id, state, message, progress, start_time, end_time, error, logs,
		        manual_dns_name, manual_dns_value, manual_dns_type, manual_dns_help
		 FROM renewal_statuses WHERE connection_id = $1 AND end_time IS NULL`, connectionID)
}

func (s *Postgres) GetAllNonTerminalRenewalStatuses(ctx context.Context) ([]*model.RenewalStatus, error) {
	return s.queryStatuses(ctx,
		`SELECT id, connection_id, state, message, progress, start_time, end_time, error, logs,
		        manual_dns_name, manual_dns_value, manual_dns_type, manual_dns_help
		 FROM renewal_statuses WHERE end_time IS NULL`)
}

func (s *Postgres) queryStatuses(ctx context.Context, query string, args ...any) ([]*model.RenewalStatus, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query renewal statuses: %w", err)
	}
	defer rows.Close()

	var out []*model.RenewalStatus
	for rows.Next() {
		st, err := scanStatusRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan renewal status: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate renewal statuses: %w", err)
	}
	return out, nil
}

// statusScanner is satisfied by both pgx.Row and pgx.Rows.
type statusScanner interface {
	Scan(dest ...any) error
}

func scanStatusRow(row statusScanner) (*model.RenewalStatus, error) {
	var st model.RenewalStatus
	var manualName, manualValue, manualType, manualHelp *string
	var endTime *time.Time

	if err := row.Scan(&st.ID, &st.ConnectionID, &st.State, &st.Message, &st.Progress, &st.StartTime, &endTime,
		&st.Error, &st.Logs, &manualName, &manualValue, &manualType, &manualHelp); err != nil {
		return nil, err
	}

	st.EndTime = endTime
	if manualName != nil {
		st.ManualDNS = &model.ManualDNSEntry{
			RecordName:  deref(manualName),
			RecordValue: deref(manualValue),
			RecordType:  deref(manualType),
			Instructions: deref(manualHelp),
		}
	}
	return &st, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
