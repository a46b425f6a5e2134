package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/credentials"

	"gorm.io/driver/clickhouse"
	"gorm.io/gorm"
)

// ClickHouseAdapter relies on the server-side readonly setting; ClickHouse
// has no transactions to wrap queries in.
type ClickHouseAdapter struct {
	sqlBase
	creds credentials.Bundle
}

func newClickHouse(cfg *models.ConnectionConfig, creds credentials.Bundle) *ClickHouseAdapter {
	a := &ClickHouseAdapter{creds: creds}
	a.cfg = cfg
	return a
}

func (a *ClickHouseAdapter) Type() models.DatabaseType { return models.ClickHouse }

func (a *ClickHouseAdapter) dsn() string {
	dsn := fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s?dial_timeout=%s",
		a.cfg.Username,
		a.creds.Password.Reveal(),
		a.cfg.Host,
		a.cfg.Port,
		a.cfg.Database,
		a.cfg.ConnectTimeout,
	)
	if !a.cfg.Writable {
		// passed through as a server setting for the session
		dsn += "&readonly=1"
	}
	return dsn
}

func (a *ClickHouseAdapter) Connect(ctx context.Context) error {
	if a.connected() {
		return nil
	}

	dialector := clickhouse.New(clickhouse.Config{DSN: a.dsn()})
	// prepared statements are unreliable with the ClickHouse driver
	if err := a.open(dialector, &gorm.Config{PrepareStmt: false}); err != nil {
		return err
	}
	return a.Ping(ctx)
}

func (a *ClickHouseAdapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT name FROM system.tables
		WHERE database = currentDatabase() AND NOT is_temporary
		ORDER BY name`)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan table name", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (a *ClickHouseAdapter) GetSchema(ctx context.Context, table string) (*models.TableSchema, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT name, type, default_expression, is_in_primary_key
		FROM system.columns
		WHERE database = currentDatabase() AND table = ?
		ORDER BY position`, table)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	schema := &models.TableSchema{Table: table}
	for rows.Next() {
		var name, colType, dflt string
		var inPK uint8
		if err := rows.Scan(&name, &colType, &dflt, &inPK); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan column info", err)
		}
		col := models.ColumnInfo{
			Name: name, Type: colType,
			Nullable: strings.HasPrefix(colType, "Nullable("),
			Default:  dflt,
		}
		if inPK == 1 {
			col.Key = "PRI"
		}
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	if len(schema.Columns) == 0 {
		return nil, models.NewQueryExecutionError(fmt.Sprintf("table %q not found", table), nil)
	}

	schema.Indexes, err = a.ListIndexes(ctx, table)
	if err != nil {
		return nil, err
	}
	return schema, nil
}

func (a *ClickHouseAdapter) GetDDL(ctx context.Context, table string) (string, error) {
	quoted, err := quoteIdent(table, '`')
	if err != nil {
		return "", err
	}

	var ddl string
	if err := a.sqlDB.QueryRowContext(ctx, "SHOW CREATE TABLE "+quoted).Scan(&ddl); err != nil {
		return "", models.NewQueryExecutionError(fmt.Sprintf("table %q not found", table), err)
	}
	return ddl, nil
}

// ListIndexes reports the sorting key; ClickHouse tables have no secondary
// indexes in the conventional sense.
func (a *ClickHouseAdapter) ListIndexes(ctx context.Context, table string) ([]models.IndexInfo, error) {
	var sortingKey string
	err := a.sqlDB.QueryRowContext(ctx, `
		SELECT sorting_key FROM system.tables
		WHERE database = currentDatabase() AND name = ?`, table).Scan(&sortingKey)
	if err != nil {
		return nil, models.NewQueryExecutionError(fmt.Sprintf("table %q not found", table), err)
	}

	if sortingKey == "" {
		return nil, nil
	}
	cols := strings.Split(sortingKey, ", ")
	return []models.IndexInfo{{Name: "sorting_key", Columns: cols}}, nil
}

func (a *ClickHouseAdapter) TableStats(ctx context.Context, table string) (*models.TableStats, error) {
	stats := &models.TableStats{Table: table}

	err := a.sqlDB.QueryRowContext(ctx, `
		SELECT COALESCE(total_rows, 0), COALESCE(total_bytes, 0)
		FROM system.tables
		WHERE database = currentDatabase() AND name = ?`, table).
		Scan(&stats.RowCount, &stats.SizeBytes)
	if err != nil {
		return nil, models.NewQueryExecutionError(fmt.Sprintf("table %q not found", table), err)
	}

	err = a.sqlDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM system.columns
		WHERE database = currentDatabase() AND table = ?`, table).
		Scan(&stats.ColumnCount)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	return stats, nil
}

func (a *ClickHouseAdapter) TableConstraints(ctx context.Context, table string) ([]models.ConstraintInfo, error) {
	var primaryKey string
	err := a.sqlDB.QueryRowContext(ctx, `
		SELECT primary_key FROM system.tables
		WHERE database = currentDatabase() AND name = ?`, table).Scan(&primaryKey)
	if err != nil {
		return nil, models.NewQueryExecutionError(fmt.Sprintf("table %q not found", table), err)
	}

	if primaryKey == "" {
		return nil, nil
	}
	return []models.ConstraintInfo{{
		Type:    "PRIMARY KEY",
		Columns: strings.Split(primaryKey, ", "),
	}}, nil
}

func (a *ClickHouseAdapter) Query(ctx context.Context, query string, maxRows int) (*models.TableResult, error) {
	return a.runQuery(ctx, query, maxRows, false)
}

func (a *ClickHouseAdapter) Exec(ctx context.Context, query string) (int64, error) {
	return a.exec(ctx, query)
}

func (a *ClickHouseAdapter) Explain(ctx context.Context, query string) (string, error) {
	stmt := query
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "EXPLAIN") {
		stmt = "EXPLAIN " + query
	}
	result, err := a.runQuery(ctx, stmt, 0, false)
	if err != nil {
		return "", err
	}
	return explainRows(result), nil
}
