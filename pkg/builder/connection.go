package builder

import (
	"github.com/adaptive-sql/querygate/internal/models"
)

// AddConnection registers a fully specified connection. Defaults are applied
// and the config is validated when the server starts.
func (b *Builder) AddConnection(name string, cfg models.ConnectionConfig) *Builder {
	cfg.Name = name
	b.cfg.Connections[name] = &cfg
	return b
}

// AddSQLiteConnection adds a read-only SQLite connection for a database file.
func (b *Builder) AddSQLiteConnection(name, path string) *Builder {
	return b.AddConnection(name, models.ConnectionConfig{
		Type: models.SQLite,
		Path: path,
	})
}

// AddPostgresConnection adds a read-only PostgreSQL connection. The password
// may be a literal or a ${VAR} environment reference.
func (b *Builder) AddPostgresConnection(name, host string, port int, database, username, password string) *Builder {
	return b.AddConnection(name, models.ConnectionConfig{
		Type:     models.PostgreSQL,
		Host:     host,
		Port:     port,
		Database: database,
		Username: username,
		Password: password,
	})
}

// AddMySQLConnection adds a read-only MySQL connection.
func (b *Builder) AddMySQLConnection(name, host string, port int, database, username, password string) *Builder {
	return b.AddConnection(name, models.ConnectionConfig{
		Type:     models.MySQL,
		Host:     host,
		Port:     port,
		Database: database,
		Username: username,
		Password: password,
	})
}

// AddClickHouseConnection adds a read-only ClickHouse connection.
func (b *Builder) AddClickHouseConnection(name, host string, port int, database, username, password string) *Builder {
	return b.AddConnection(name, models.ConnectionConfig{
		Type:     models.ClickHouse,
		Host:     host,
		Port:     port,
		Database: database,
		Username: username,
		Password: password,
	})
}

// AddRedisConnection adds a Redis connection restricted to read commands.
func (b *Builder) AddRedisConnection(name, host string, port int, password string) *Builder {
	return b.AddConnection(name, models.ConnectionConfig{
		Type:     models.Redis,
		Host:     host,
		Port:     port,
		Password: password,
	})
}

// WithAudit configures the audit trail sinks.
func (b *Builder) WithAudit(cfg models.AuditConfig) *Builder {
	cfg.ApplyDefaults()
	b.cfg.Audit = cfg
	return b
}
