package gateway

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adaptive-sql/querygate/internal/config"
	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.db")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)

	stmts := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT)`,
		`CREATE TABLE audit_events (id INTEGER PRIMARY KEY, note TEXT)`,
		`INSERT INTO users (id, name, email) VALUES
			(1, 'alice', 'alice@example.com'),
			(2, 'bob', 'bob@example.com')`,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	return path
}

func newTestGateway(t *testing.T, mutate func(*models.ConnectionConfig)) *Gateway {
	t.Helper()

	conn := &models.ConnectionConfig{
		Name: "local-db",
		Type: models.SQLite,
		Path: seedDatabase(t),
	}
	if mutate != nil {
		mutate(conn)
	}
	conn.ApplyDefaults()

	cfg := &config.Config{
		Connections: map[string]*models.ConnectionConfig{conn.Name: conn},
		Audit:       models.AuditConfig{BufferSize: 100},
	}
	cfg.Audit.ApplyDefaults()

	g, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func lastAudit(t *testing.T, g *Gateway) models.AuditRecord {
	t.Helper()
	recs := g.Audit().Recent(audit.Filter{Limit: 1})
	require.Len(t, recs, 1)
	return recs[0]
}

func newRedisGateway(t *testing.T, mutate func(*models.ConnectionConfig)) *Gateway {
	t.Helper()

	conn := &models.ConnectionConfig{
		Name: "cache",
		Type: models.Redis,
		Host: "127.0.0.1",
	}
	if mutate != nil {
		mutate(conn)
	}

	cfg := &config.Config{
		Connections: map[string]*models.ConnectionConfig{conn.Name: conn},
		Audit:       models.AuditConfig{BufferSize: 100},
	}

	g, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGatewayRedisRejectsWriteCommands(t *testing.T) {
	g := newRedisGateway(t, nil)

	for _, cmd := range []string{"DEL user:1", "SET user:1 x", "FLUSHALL", `EVAL "return 1" 0`} {
		_, err := g.RunQuery(context.Background(), &models.OperationRequest{
			Connection: "cache",
			SQL:        cmd,
		})
		require.Error(t, err, cmd)
		assert.Equal(t, models.ErrorKindRejectedOperation, models.KindOf(err), cmd)
	}

	rec := lastAudit(t, g)
	assert.False(t, rec.Success)
	assert.Equal(t, models.ErrorKindRejectedOperation, rec.ErrorKind)

	// explain goes through the same command screen
	_, err := g.ExplainQuery(context.Background(), &models.OperationRequest{
		Connection: "cache",
		SQL:        "DEL user:1",
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindRejectedOperation, models.KindOf(err))
}

func TestGatewayRedisReadCommandPassesValidation(t *testing.T) {
	g := newRedisGateway(t, func(c *models.ConnectionConfig) {
		// a closed port so the dial fails fast after validation passes
		c.Port = 1
		c.ConnectTimeout = 100 * time.Millisecond
	})

	_, err := g.RunQuery(context.Background(), &models.OperationRequest{
		Connection: "cache",
		SQL:        "GET user:1",
	})
	require.Error(t, err)
	assert.NotEqual(t, models.ErrorKindRejectedOperation, models.KindOf(err))
}

func TestGatewayListConnections(t *testing.T) {
	g := newTestGateway(t, nil)

	conns := g.ListConnections()
	require.Len(t, conns, 1)
	assert.Equal(t, "local-db", conns[0].Name)
	assert.Equal(t, models.SQLite, conns[0].Type)
	assert.False(t, conns[0].Writable)
}

func TestGatewayListTables(t *testing.T) {
	g := newTestGateway(t, nil)

	tables, err := g.ListTables(context.Background(), &models.OperationRequest{Connection: "local-db"})
	require.NoError(t, err)
	assert.Equal(t, []string{"audit_events", "users"}, tables)

	rec := lastAudit(t, g)
	assert.True(t, rec.Success)
	assert.Equal(t, models.ActionListTables, rec.Action)
	assert.NotEmpty(t, rec.ID)
}

func TestGatewayRunQuery(t *testing.T) {
	g := newTestGateway(t, nil)

	res, err := g.RunQuery(context.Background(), &models.OperationRequest{
		Connection: "local-db",
		SQL:        "SELECT name FROM users ORDER BY id",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, res.Columns)
	assert.Equal(t, 2, res.RowCount)
	assert.False(t, res.Truncated)
}

func TestGatewayRunQueryTruncates(t *testing.T) {
	g := newTestGateway(t, func(c *models.ConnectionConfig) { c.MaxRows = 1 })

	res, err := g.RunQuery(context.Background(), &models.OperationRequest{
		Connection: "local-db",
		SQL:        "SELECT id FROM users",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
	assert.True(t, res.Truncated)
	assert.True(t, lastAudit(t, g).Truncated)
}

func TestGatewayRunQueryRejectsWrites(t *testing.T) {
	g := newTestGateway(t, nil)

	_, err := g.RunQuery(context.Background(), &models.OperationRequest{
		Connection: "local-db",
		SQL:        "DELETE FROM users",
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindRejectedOperation, models.KindOf(err))

	rec := lastAudit(t, g)
	assert.False(t, rec.Success)
	assert.Equal(t, models.ErrorKindRejectedOperation, rec.ErrorKind)
}

func TestGatewayWritableInsert(t *testing.T) {
	g := newTestGateway(t, func(c *models.ConnectionConfig) {
		c.Writable = true
		c.WritePermissions = &models.WritePermissions{
			DefaultPolicy: models.PolicyReadOnly,
			Tables: map[string]models.TablePermission{
				"users": {Operations: []string{"INSERT"}},
			},
		}
	})

	res, err := g.RunQuery(context.Background(), &models.OperationRequest{
		Connection: "local-db",
		SQL:        "INSERT INTO users (id, name) VALUES (9, 'dave')",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"rows_affected"}, res.Columns)
	assert.Equal(t, [][]any{{int64(1)}}, res.Rows)

	// same flag, table not granted that operation
	_, err = g.RunQuery(context.Background(), &models.OperationRequest{
		Connection: "local-db",
		SQL:        "DELETE FROM users WHERE id = 9",
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindPermissionDenied, models.KindOf(err))

	// ungranted table falls back to the read_only default policy
	_, err = g.RunQuery(context.Background(), &models.OperationRequest{
		Connection: "local-db",
		SQL:        "INSERT INTO audit_events (note) VALUES ('x')",
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindPermissionDenied, models.KindOf(err))
}

func TestGatewayWritableStillRejectsDDL(t *testing.T) {
	g := newTestGateway(t, func(c *models.ConnectionConfig) {
		c.Writable = true
		c.WritePermissions = &models.WritePermissions{DefaultPolicy: models.PolicyAllowAll}
	})

	_, err := g.RunQuery(context.Background(), &models.OperationRequest{
		Connection: "local-db",
		SQL:        "DROP TABLE users",
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindRejectedOperation, models.KindOf(err))
}

func TestGatewayUnknownConnection(t *testing.T) {
	g := newTestGateway(t, nil)

	_, err := g.ListTables(context.Background(), &models.OperationRequest{Connection: "nope"})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindConfiguration, models.KindOf(err))

	// failures before the pool still leave an audit record
	rec := lastAudit(t, g)
	assert.False(t, rec.Success)
	assert.Equal(t, "nope", rec.Connection)
}

func TestGatewayDescribeTableRequiresName(t *testing.T) {
	g := newTestGateway(t, nil)

	_, err := g.DescribeTable(context.Background(), &models.OperationRequest{Connection: "local-db"})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindRejectedOperation, models.KindOf(err))
}

func TestGatewaySchemaOperations(t *testing.T) {
	g := newTestGateway(t, nil)
	req := &models.OperationRequest{Connection: "local-db", Table: "users"}

	schema, err := g.GetSchema(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "users", schema.Table)
	assert.Len(t, schema.Columns, 3)

	ddl, err := g.GetDDL(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, ddl, "CREATE TABLE users")

	stats, err := g.GetStats(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.RowCount)

	constraints, err := g.ListConstraints(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, constraints)
}

func TestGatewayExplainAndAnalyze(t *testing.T) {
	g := newTestGateway(t, nil)
	req := &models.OperationRequest{
		Connection: "local-db",
		SQL:        "SELECT * FROM users WHERE email = 'alice@example.com'",
	}

	plan, err := g.ExplainQuery(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, plan, "users")

	analysis, err := g.AnalyzeQuery(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.SQL, analysis.SQL)
	assert.NotEmpty(t, analysis.Plan)
	assert.GreaterOrEqual(t, analysis.DurationMs, 0.0)
}

func TestGatewayGetPerformance(t *testing.T) {
	g := newTestGateway(t, nil)

	_, err := g.ListTables(context.Background(), &models.OperationRequest{Connection: "local-db"})
	require.NoError(t, err)

	metrics, err := g.GetPerformance("local-db")
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.QueryCount)

	_, err = g.GetPerformance("nope")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindConfiguration, models.KindOf(err))
}

func TestGatewayAuditMasksLiterals(t *testing.T) {
	g := newTestGateway(t, nil)

	_, err := g.RunQuery(context.Background(), &models.OperationRequest{
		Connection: "local-db",
		SQL:        "SELECT name FROM users WHERE email = 'alice@example.com'",
	})
	require.NoError(t, err)

	rec := lastAudit(t, g)
	assert.NotContains(t, rec.SQL, "alice@example.com")
}

func TestGatewaySuggestions(t *testing.T) {
	plan := "Seq Scan on users  (cost=0.00..35.50 rows=10)"
	out := optimizationSuggestions(plan, 250*time.Millisecond, &models.TableResult{Truncated: true})
	require.NotEmpty(t, out)
	assert.Contains(t, out[0], "full table scan")

	joined := strings.Join(out, "\n")
	assert.Contains(t, joined, "250ms")
	assert.Contains(t, joined, "row cap")

	assert.Empty(t, optimizationSuggestions("SEARCH users USING INDEX idx_users_email (email=?)", time.Millisecond, nil))
}
