package audit

import (
	"sync"
	"time"

	"github.com/adaptive-sql/querygate/internal/models"
)

// ConnectionMetrics is a point-in-time aggregate for one connection,
// powering the get-performance operation.
type ConnectionMetrics struct {
	Connection     string                     `json:"connection"`
	QueryCount     int64                      `json:"query_count"`
	ErrorCount     int64                      `json:"error_count"`
	ErrorKinds     map[models.ErrorKind]int64 `json:"error_kinds,omitempty"`
	TruncatedCount int64                      `json:"truncated_count,omitzero"`
	MinDurationMs  float64                    `json:"min_duration_ms"`
	AvgDurationMs  float64                    `json:"avg_duration_ms"`
	MaxDurationMs  float64                    `json:"max_duration_ms"`
}

type connStats struct {
	queries   int64
	errors    int64
	kinds     map[models.ErrorKind]int64
	truncated int64
	total     time.Duration
	min       time.Duration
	max       time.Duration
}

// Metrics aggregates audit records per connection. Safe for concurrent use.
type Metrics struct {
	mu    sync.Mutex
	conns map[string]*connStats
}

func NewMetrics() *Metrics {
	return &Metrics{conns: make(map[string]*connStats)}
}

func (m *Metrics) Observe(rec models.AuditRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.conns[rec.Connection]
	if !ok {
		stats = &connStats{kinds: make(map[models.ErrorKind]int64)}
		m.conns[rec.Connection] = stats
	}

	stats.queries++
	if !rec.Success {
		stats.errors++
		if rec.ErrorKind != "" {
			stats.kinds[rec.ErrorKind]++
		}
	}
	if rec.Truncated {
		stats.truncated++
	}

	stats.total += rec.Duration
	if stats.queries == 1 || rec.Duration < stats.min {
		stats.min = rec.Duration
	}
	if rec.Duration > stats.max {
		stats.max = rec.Duration
	}
}

// Snapshot returns the aggregate for one connection, or a zero aggregate if
// the connection has seen no traffic.
func (m *Metrics) Snapshot(connection string) ConnectionMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.conns[connection]
	if !ok {
		return ConnectionMetrics{Connection: connection}
	}
	return stats.export(connection)
}

// SnapshotAll returns aggregates for every connection seen so far.
func (m *Metrics) SnapshotAll() []ConnectionMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ConnectionMetrics, 0, len(m.conns))
	for name, stats := range m.conns {
		out = append(out, stats.export(name))
	}
	return out
}

func (s *connStats) export(name string) ConnectionMetrics {
	cm := ConnectionMetrics{
		Connection:     name,
		QueryCount:     s.queries,
		ErrorCount:     s.errors,
		TruncatedCount: s.truncated,
		MinDurationMs:  durationMs(s.min),
		MaxDurationMs:  durationMs(s.max),
	}
	if s.queries > 0 {
		cm.AvgDurationMs = durationMs(s.total) / float64(s.queries)
	}
	if len(s.kinds) > 0 {
		cm.ErrorKinds = make(map[models.ErrorKind]int64, len(s.kinds))
		for kind, n := range s.kinds {
			cm.ErrorKinds[kind] = n
		}
	}
	return cm
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
