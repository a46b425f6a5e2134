package pool

import (
	"fmt"
	"sync"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/adapters"
	"github.com/adaptive-sql/querygate/internal/services/credentials"
)

// Manager owns one pool per configured connection name. Pools are created
// lazily and reused for the life of the process.
type Manager struct {
	connections map[string]*models.ConnectionConfig
	creds       *credentials.Store

	mu    sync.Mutex
	pools map[string]*Pool
}

func NewManager(connections map[string]*models.ConnectionConfig, creds *credentials.Store) *Manager {
	return &Manager{
		connections: connections,
		creds:       creds,
		pools:       make(map[string]*Pool),
	}
}

// Get returns the pool for a connection name, creating it on first use.
// Unknown names are a configuration error.
func (m *Manager) Get(name string) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[name]; ok {
		return p, nil
	}

	cfg, ok := m.connections[name]
	if !ok {
		return nil, models.NewConfigurationError(
			fmt.Sprintf("unknown connection: %q", name), nil)
	}

	bundle, ok := m.creds.Resolve(name)
	if !ok {
		return nil, models.NewConfigurationError(
			fmt.Sprintf("no credentials resolved for connection %q", name), nil)
	}
	adapter, err := adapters.New(cfg, bundle)
	if err != nil {
		return nil, err
	}

	p := New(cfg, adapter)
	m.pools[name] = p
	return p, nil
}

// Stats returns snapshots for every pool created so far.
func (m *Manager) Stats() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Stats, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p.Stats())
	}
	return out
}

// Close shuts down every pool. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, p := range m.pools {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.pools, name)
	}
	return firstErr
}
