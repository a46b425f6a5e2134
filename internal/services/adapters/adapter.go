// Package adapters hides backend differences behind one interface. Every
// adapter opens its backend in the most read-only mode the backend offers,
// and introspection is expressed in each backend's native catalog.
package adapters

import (
	"context"
	"fmt"
	"regexp"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/credentials"
)

// Adapter is the uniform surface the gateway drives. Connect is called
// lazily by the pool; all other methods require a prior successful Connect.
type Adapter interface {
	Type() models.DatabaseType
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error

	ListTables(ctx context.Context) ([]string, error)
	GetSchema(ctx context.Context, table string) (*models.TableSchema, error)
	GetDDL(ctx context.Context, table string) (string, error)
	ListIndexes(ctx context.Context, table string) ([]models.IndexInfo, error)
	TableStats(ctx context.Context, table string) (*models.TableStats, error)
	TableConstraints(ctx context.Context, table string) ([]models.ConstraintInfo, error)

	Query(ctx context.Context, sql string, maxRows int) (*models.TableResult, error)
	Exec(ctx context.Context, sql string) (int64, error)
	Explain(ctx context.Context, sql string) (string, error)

	Close() error
}

// New builds the adapter for a connection definition. The credential bundle
// is resolved by the caller so adapters never read the environment.
func New(cfg *models.ConnectionConfig, creds credentials.Bundle) (Adapter, error) {
	switch cfg.Type {
	case models.PostgreSQL:
		return newPostgres(cfg, creds), nil
	case models.MySQL:
		return newMySQL(cfg, creds), nil
	case models.SQLite:
		return newSQLite(cfg), nil
	case models.ClickHouse:
		return newClickHouse(cfg, creds), nil
	case models.Redis:
		return newRedis(cfg, creds), nil
	default:
		return nil, models.NewConfigurationError(
			fmt.Sprintf("unsupported database type: %s", cfg.Type), nil)
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteIdent validates a table name and wraps it in the given quote rune.
// Introspection statements that cannot take bind parameters go through this.
func quoteIdent(name string, quote byte) (string, error) {
	if !identPattern.MatchString(name) {
		return "", models.NewRejectedOperationError(
			fmt.Sprintf("invalid identifier: %q", name))
	}
	return string(quote) + name + string(quote), nil
}
