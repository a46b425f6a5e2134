package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adaptive-sql/querygate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(dir string) models.AuditConfig {
	cfg := models.AuditConfig{Directory: dir}
	cfg.ApplyDefaults()
	return cfg
}

func TestRecordAndRecent(t *testing.T) {
	l := NewLogger(testConfig(""))

	for i := 0; i < 3; i++ {
		l.Record(models.AuditRecord{
			Connection: "main",
			Action:     models.ActionRunQuery,
			SQL:        fmt.Sprintf("SELECT %d", i),
			Success:    true,
		})
	}
	l.Record(models.AuditRecord{
		Connection: "other",
		Action:     models.ActionListTables,
		Success:    false,
		ErrorKind:  models.ErrorKindConnectivity,
	})

	all := l.Recent(Filter{})
	require.Len(t, all, 4)
	// newest first
	assert.Equal(t, "other", all[0].Connection)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].Timestamp.IsZero())

	main := l.Recent(Filter{Connection: "main"})
	require.Len(t, main, 3)

	errs := l.Recent(Filter{OnlyErrors: true})
	require.Len(t, errs, 1)
	assert.Equal(t, models.ErrorKindConnectivity, errs[0].ErrorKind)

	limited := l.Recent(Filter{Limit: 2})
	require.Len(t, limited, 2)
}

func TestRingEvictsOldest(t *testing.T) {
	cfg := testConfig("")
	cfg.BufferSize = 5

	l := NewLogger(cfg)
	for i := 0; i < 8; i++ {
		l.Record(models.AuditRecord{
			Connection: "main",
			Action:     models.ActionRunQuery,
			SQL:        fmt.Sprintf("SELECT %d", i),
			Success:    true,
		})
	}

	recent := l.Recent(Filter{})
	require.Len(t, recent, 5)
	assert.Equal(t, "SELECT ?", recent[0].SQL) // literals masked
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(testConfig(dir))

	l.Record(models.AuditRecord{
		Connection: "main",
		Action:     models.ActionRunQuery,
		SQL:        "SELECT * FROM users WHERE name = 'alice'",
		Success:    true,
		Duration:   12 * time.Millisecond,
	})
	require.NoError(t, l.Close())

	f, err := os.Open(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var rec models.AuditRecord
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
	assert.Equal(t, "main", rec.Connection)
	assert.Equal(t, "SELECT * FROM users WHERE name = '?'", rec.SQL)
	assert.True(t, rec.Success)

	require.False(t, scanner.Scan())
}

func TestActorExcludedByDefault(t *testing.T) {
	l := NewLogger(testConfig(""))
	l.Record(models.AuditRecord{Connection: "main", Actor: "svc-reporting", Success: true})
	assert.Empty(t, l.Recent(Filter{})[0].Actor)

	cfg := testConfig("")
	cfg.IncludeUserContext = true
	l = NewLogger(cfg)
	l.Record(models.AuditRecord{Connection: "main", Actor: "svc-reporting", Success: true})
	assert.Equal(t, "svc-reporting", l.Recent(Filter{})[0].Actor)
}

func TestRecordAfterCloseStillLandsInRing(t *testing.T) {
	l := NewLogger(testConfig(t.TempDir()))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	l.Record(models.AuditRecord{Connection: "main", Success: true})
	assert.Len(t, l.Recent(Filter{}), 1)
}

func TestSanitizeSQL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		full     bool
		expected string
	}{
		{
			"string literal masked",
			"SELECT * FROM t WHERE name = 'alice'", true,
			"SELECT * FROM t WHERE name = '?'",
		},
		{
			"numeric literal masked",
			"SELECT * FROM t WHERE id = 42", true,
			"SELECT * FROM t WHERE id = ?",
		},
		{
			"literals kept when sanitization off",
			"SELECT * FROM t WHERE id = 42", false,
			"SELECT * FROM t WHERE id = 42",
		},
		{
			"password masked even when off",
			"SELECT dblink_connect('host=x password=hunter2')", false,
			"SELECT dblink_connect('host=x password=***')",
		},
		{
			"quoted password masked",
			"CREATE USER u IDENTIFIED BY 'hunter2'", false,
			"CREATE USER u IDENTIFIED BY ***",
		},
		{
			"token masked even when off",
			"SELECT * FROM t WHERE api_key=abc123", false,
			"SELECT * FROM t WHERE api_key=***",
		},
		{
			"empty", "", true, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeSQL(tt.in, tt.full))
		})
	}
}

func TestMetricsAggregation(t *testing.T) {
	m := NewMetrics()

	m.Observe(models.AuditRecord{Connection: "main", Success: true, Duration: 10 * time.Millisecond})
	m.Observe(models.AuditRecord{Connection: "main", Success: true, Duration: 30 * time.Millisecond, Truncated: true})
	m.Observe(models.AuditRecord{Connection: "main", Success: false, ErrorKind: models.ErrorKindTimeout, Duration: 20 * time.Millisecond})

	snap := m.Snapshot("main")
	assert.Equal(t, int64(3), snap.QueryCount)
	assert.Equal(t, int64(1), snap.ErrorCount)
	assert.Equal(t, int64(1), snap.ErrorKinds[models.ErrorKindTimeout])
	assert.Equal(t, int64(1), snap.TruncatedCount)
	assert.Equal(t, 10.0, snap.MinDurationMs)
	assert.Equal(t, 20.0, snap.AvgDurationMs)
	assert.Equal(t, 30.0, snap.MaxDurationMs)

	empty := m.Snapshot("unknown")
	assert.Zero(t, empty.QueryCount)

	all := m.SnapshotAll()
	require.Len(t, all, 1)
}

func TestZeroBufferSizeFallsBackToDefault(t *testing.T) {
	l := NewLogger(models.AuditConfig{})
	defer l.Close()

	l.Record(models.AuditRecord{Connection: "main", Action: models.ActionRunQuery})

	recs := l.Recent(Filter{})
	require.Len(t, recs, 1)
	assert.Equal(t, "main", recs[0].Connection)
}
