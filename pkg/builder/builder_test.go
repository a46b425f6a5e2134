package builder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "builder.db")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO items (id, name) VALUES (1, 'widget')`).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	return path
}

func TestBuilderServerDefaults(t *testing.T) {
	cfg := New().Build()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "info", cfg.Server.LogLevel)
}

func TestBuiltConfigServesQueries(t *testing.T) {
	cfg := New().
		AddSQLiteConnection("local", seedDatabase(t)).
		Build()

	g, err := gateway.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	// connection defaults land when the gateway is assembled, so a built
	// config never runs with zero pool sizes or timeouts
	conn, ok := cfg.Connection("local")
	require.True(t, ok)
	assert.Equal(t, models.DefaultPoolMaxSize, conn.Pool.MaxSize)
	assert.Equal(t, models.DefaultConnectTimeout, conn.ConnectTimeout)
	assert.Equal(t, models.DefaultQueryTimeout, conn.QueryTimeout)
	assert.Equal(t, models.DefaultMaxRows, conn.MaxRows)

	res, err := g.RunQuery(context.Background(), &models.OperationRequest{
		Connection: "local",
		SQL:        "SELECT name FROM items",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
}

func TestBuiltConfigRejectsInvalidConnection(t *testing.T) {
	cfg := New().
		AddConnection("bad", models.ConnectionConfig{Type: models.SQLite}).
		Build()

	_, err := gateway.New(cfg)
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindConfiguration, models.KindOf(err))
}
