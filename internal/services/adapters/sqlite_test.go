package adapters

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/adaptive-sql/querygate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)

	stmts := []string{
		`CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT,
			age INTEGER DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX idx_users_email ON users(email)`,
		`CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			total REAL
		)`,
		`INSERT INTO users (id, name, email, age) VALUES
			(1, 'alice', 'alice@example.com', 31),
			(2, 'bob', 'bob@example.com', 27),
			(3, 'carol', NULL, 45)`,
		`INSERT INTO orders (id, user_id, total) VALUES (1, 1, 9.5), (2, 1, 12.0)`,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	return path
}

func openSQLiteAdapter(t *testing.T) *SQLiteAdapter {
	t.Helper()

	cfg := &models.ConnectionConfig{
		Name: "test",
		Type: models.SQLite,
		Path: seedSQLite(t),
	}
	cfg.ApplyDefaults()

	a := newSQLite(cfg)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSQLiteListTables(t *testing.T) {
	a := openSQLiteAdapter(t)

	tables, err := a.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)
}

func TestSQLiteGetSchema(t *testing.T) {
	a := openSQLiteAdapter(t)

	schema, err := a.GetSchema(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, schema.Columns, 4)

	byName := make(map[string]models.ColumnInfo)
	for _, col := range schema.Columns {
		byName[col.Name] = col
	}

	assert.Equal(t, "PRI", byName["id"].Key)
	assert.False(t, byName["name"].Nullable)
	assert.True(t, byName["email"].Nullable)
	assert.Equal(t, "0", byName["age"].Default)

	require.Len(t, schema.Indexes, 1)
	assert.Equal(t, "idx_users_email", schema.Indexes[0].Name)
	assert.True(t, schema.Indexes[0].Unique)
	assert.Equal(t, []string{"email"}, schema.Indexes[0].Columns)
}

func TestSQLiteGetSchemaUnknownTable(t *testing.T) {
	a := openSQLiteAdapter(t)

	_, err := a.GetSchema(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindQueryExecution, models.KindOf(err))
}

func TestSQLiteGetDDL(t *testing.T) {
	a := openSQLiteAdapter(t)

	ddl, err := a.GetDDL(context.Background(), "users")
	require.NoError(t, err)
	assert.Contains(t, ddl, "CREATE TABLE users")
	assert.Contains(t, ddl, "name TEXT NOT NULL")
}

func TestSQLiteQuery(t *testing.T) {
	a := openSQLiteAdapter(t)

	result, err := a.Query(context.Background(), "SELECT id, name FROM users ORDER BY id", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, result.Columns)
	assert.Equal(t, 3, result.RowCount)
	assert.False(t, result.Truncated)
	assert.Equal(t, "alice", result.Rows[0][1])
}

func TestSQLiteQueryTruncation(t *testing.T) {
	a := openSQLiteAdapter(t)

	result, err := a.Query(context.Background(), "SELECT id FROM users ORDER BY id", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
	assert.True(t, result.Truncated)
}

func TestSQLiteRejectsWrites(t *testing.T) {
	a := openSQLiteAdapter(t)

	// the adapter is opened read-only at the driver level
	_, err := a.Query(context.Background(), "INSERT INTO users (id, name) VALUES (9, 'mallory')", 0)
	require.Error(t, err)
}

func TestSQLiteWritableExec(t *testing.T) {
	cfg := &models.ConnectionConfig{
		Name:     "rw",
		Type:     models.SQLite,
		Path:     seedSQLite(t),
		Writable: true,
	}
	cfg.ApplyDefaults()

	a := newSQLite(cfg)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Close()

	affected, err := a.Exec(context.Background(), "INSERT INTO users (id, name) VALUES (9, 'dave')")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}

func TestSQLiteExecRejectedWhenReadOnly(t *testing.T) {
	a := openSQLiteAdapter(t)

	_, err := a.Exec(context.Background(), "INSERT INTO users (id, name) VALUES (9, 'dave')")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindRejectedOperation, models.KindOf(err))
}

func TestSQLiteExplain(t *testing.T) {
	a := openSQLiteAdapter(t)

	plan, err := a.Explain(context.Background(), "SELECT * FROM users WHERE email = 'alice@example.com'")
	require.NoError(t, err)
	assert.NotEmpty(t, plan)
}

func TestSQLiteTableStats(t *testing.T) {
	a := openSQLiteAdapter(t)

	stats, err := a.TableStats(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.RowCount)
	assert.Equal(t, 4, stats.ColumnCount)

	byName := make(map[string]models.ColumnStats)
	for _, cs := range stats.Columns {
		byName[cs.Name] = cs
	}
	assert.Equal(t, int64(1), byName["email"].NullCount)
	assert.Equal(t, int64(0), byName["name"].NullCount)
}

func TestSQLiteTableConstraints(t *testing.T) {
	a := openSQLiteAdapter(t)

	constraints, err := a.TableConstraints(context.Background(), "orders")
	require.NoError(t, err)

	var kinds []string
	for _, c := range constraints {
		kinds = append(kinds, c.Type)
	}
	assert.Contains(t, kinds, "PRIMARY KEY")
	assert.Contains(t, kinds, "FOREIGN KEY")

	for _, c := range constraints {
		if c.Type == "FOREIGN KEY" {
			assert.Equal(t, []string{"user_id"}, c.Columns)
			assert.Equal(t, "users(id)", c.References)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	quoted, err := quoteIdent("users", '"')
	require.NoError(t, err)
	assert.Equal(t, `"users"`, quoted)

	_, err = quoteIdent(`users"; DROP TABLE x --`, '"')
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindRejectedOperation, models.KindOf(err))
}

func TestNewRegistry(t *testing.T) {
	for _, typ := range []models.DatabaseType{
		models.PostgreSQL, models.MySQL, models.SQLite, models.ClickHouse, models.Redis,
	} {
		cfg := &models.ConnectionConfig{Name: "c", Type: typ, Path: "x.db", Host: "h", Database: "d"}
		cfg.ApplyDefaults()
		a, err := New(cfg, credentialsBundle())
		require.NoError(t, err)
		assert.Equal(t, typ, a.Type())
	}

	_, err := New(&models.ConnectionConfig{Name: "c", Type: "mongodb"}, credentialsBundle())
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindConfiguration, models.KindOf(err))
}
