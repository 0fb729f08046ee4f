package configstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edvin/renewd/internal/model"
)

// Memory is an in-memory ConfigStore used by tests and by renewalctl's
// seed and status commands when no RENEWAL_DATABASE_URL is configured.
type Memory struct {
	mu          sync.Mutex
	nextID      int64
	connections map[int64]*model.Connection
	settings    map[string]map[string]string
	statuses    map[string]*model.RenewalStatus
}

// NewMemory returns an empty in-memory ConfigStore.
func NewMemory() *Memory {
	return &Memory{
		nextID:      1,
		connections: map[int64]*model.Connection{},
		settings:    map[string]map[string]string{},
		statuses:    map[string]*model.RenewalStatus{},
	}
}

func (m *Memory) CreateConnection(ctx context.Context, c *model.Connection) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	clone := *c
	clone.ID = id
	m.connections[id] = &clone
	return id, nil
}

func (m *Memory) GetConnectionByID(ctx context.Context, id int64) (*model.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connections[id]
	if !ok {
		return nil, fmt.Errorf("connection %d: %w", id, model.ErrNotFound)
	}
	clone := *c
	return &clone, nil
}

func (m *Memory) UpdateConnection(ctx context.Context, id int64, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connections[id]
	if !ok {
		return fmt.Errorf("connection %d: %w", id, model.ErrNotFound)
	}
	for k, v := range fields {
		switch k {
		case "last_cert_issued":
			if t, ok := v.(time.Time); ok {
				c.LastCertIssued = &t
			}
		case "cert_count_this_week":
			if n, ok := v.(int); ok {
				c.CertCountThisWeek = n
			}
		case "cert_count_reset_date":
			if t, ok := v.(time.Time); ok {
				c.CertCountResetDate = &t
			}
		}
	}
	return nil
}

func (m *Memory) GetSettingsByProvider(ctx context.Context, provider string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string]string{}
	for k, v := range m.settings[provider] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) UpsertSetting(ctx context.Context, s model.Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settings[s.Provider] == nil {
		m.settings[s.Provider] = map[string]string{}
	}
	m.settings[s.Provider][s.Key] = s.Value
	return nil
}

func (m *Memory) SaveRenewalStatus(ctx context.Context, st *model.RenewalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneStatus(st)
	m.statuses[st.ID] = clone
	return nil
}

func (m *Memory) GetRenewalStatus(ctx context.Context, id string) (*model.RenewalStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.statuses[id]
	if !ok {
		return nil, fmt.Errorf("renewal status %s: %w", id, model.ErrNotFound)
	}
	return cloneStatus(st), nil
}

func (m *Memory) GetActiveRenewalStatusesForConnection(ctx context.Context, connectionID int64) ([]*model.RenewalStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.RenewalStatus
	for _, st := range m.statuses {
		if st.ConnectionID == connectionID && st.EndTime == nil {
			out = append(out, cloneStatus(st))
		}
	}
	return out, nil
}

func (m *Memory) GetAllNonTerminalRenewalStatuses(ctx context.Context) ([]*model.RenewalStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.RenewalStatus
	for _, st := range m.statuses {
		if st.EndTime == nil {
			out = append(out, cloneStatus(st))
		}
	}
	return out, nil
}

func cloneStatus(st *model.RenewalStatus) *model.RenewalStatus {
	clone := *st
	clone.Logs = append([]string(nil), st.Logs...)
	if st.ManualDNS != nil {
		m := *st.ManualDNS
		clone.ManualDNS = &m
	}
	return &clone
}
