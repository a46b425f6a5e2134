package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"

	"gorm.io/driver/sqlite"
)

// SQLiteAdapter opens the database file in read-only mode at the driver
// level and sets PRAGMA query_only as a second line of defense.
type SQLiteAdapter struct {
	sqlBase
}

func newSQLite(cfg *models.ConnectionConfig) *SQLiteAdapter {
	a := &SQLiteAdapter{}
	a.cfg = cfg
	return a
}

func (a *SQLiteAdapter) Type() models.DatabaseType { return models.SQLite }

func (a *SQLiteAdapter) Connect(ctx context.Context) error {
	if a.connected() {
		return nil
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_query_only=true", a.cfg.Path)
	if a.cfg.Writable {
		dsn = fmt.Sprintf("file:%s", a.cfg.Path)
	}
	if err := a.open(sqlite.Open(dsn), nil); err != nil {
		return err
	}

	if !a.cfg.Writable {
		if _, err := a.sqlDB.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			_ = a.Close()
			return classifyDialError(a.cfg.Name, err)
		}
	}
	return a.Ping(ctx)
}

func (a *SQLiteAdapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.sqlDB.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
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

func (a *SQLiteAdapter) GetSchema(ctx context.Context, table string) (*models.TableSchema, error) {
	quoted, err := quoteIdent(table, '"')
	if err != nil {
		return nil, err
	}

	// PRAGMA table_info returns: cid, name, type, notnull, dflt_value, pk
	rows, err := a.sqlDB.QueryContext(ctx, "PRAGMA table_info("+quoted+")")
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	schema := &models.TableSchema{Table: table}
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var dflt *string
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan column info", err)
		}

		col := models.ColumnInfo{Name: name, Type: colType, Nullable: notNull == 0}
		if dflt != nil {
			col.Default = *dflt
		}
		if pk > 0 {
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

func (a *SQLiteAdapter) GetDDL(ctx context.Context, table string) (string, error) {
	var ddl *string
	err := a.sqlDB.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&ddl)
	if err != nil {
		return "", models.NewQueryExecutionError(fmt.Sprintf("table %q not found", table), err)
	}
	if ddl == nil {
		return "", models.NewQueryExecutionError(fmt.Sprintf("no DDL recorded for %q", table), nil)
	}
	return *ddl, nil
}

func (a *SQLiteAdapter) ListIndexes(ctx context.Context, table string) ([]models.IndexInfo, error) {
	quoted, err := quoteIdent(table, '"')
	if err != nil {
		return nil, err
	}

	rows, err := a.sqlDB.QueryContext(ctx, "PRAGMA index_list("+quoted+")")
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	type indexEntry struct {
		name   string
		unique bool
	}
	var entries []indexEntry
	for rows.Next() {
		// seq, name, unique, origin, partial
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan index list", err)
		}
		entries = append(entries, indexEntry{name: name, unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryError(ctx, err)
	}

	var indexes []models.IndexInfo
	for _, e := range entries {
		cols, err := a.indexColumns(ctx, e.name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, models.IndexInfo{Name: e.name, Columns: cols, Unique: e.unique})
	}
	return indexes, nil
}

func (a *SQLiteAdapter) indexColumns(ctx context.Context, index string) ([]string, error) {
	quoted, err := quoteIdent(index, '"')
	if err != nil {
		return nil, err
	}

	rows, err := a.sqlDB.QueryContext(ctx, "PRAGMA index_info("+quoted+")")
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name *string
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan index info", err)
		}
		if name != nil {
			cols = append(cols, *name)
		}
	}
	return cols, rows.Err()
}

func (a *SQLiteAdapter) TableStats(ctx context.Context, table string) (*models.TableStats, error) {
	schema, err := a.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}

	quoted, _ := quoteIdent(table, '"')
	stats := &models.TableStats{Table: table, ColumnCount: len(schema.Columns)}

	if err := a.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoted).Scan(&stats.RowCount); err != nil {
		return nil, classifyQueryError(ctx, err)
	}

	for _, col := range schema.Columns {
		quotedCol, err := quoteIdent(col.Name, '"')
		if err != nil {
			continue
		}
		var nulls int64
		if err := a.sqlDB.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) - COUNT(%s) FROM %s", quotedCol, quoted)).Scan(&nulls); err != nil {
			return nil, classifyQueryError(ctx, err)
		}
		stats.Columns = append(stats.Columns, models.ColumnStats{Name: col.Name, NullCount: nulls})
	}
	return stats, nil
}

func (a *SQLiteAdapter) TableConstraints(ctx context.Context, table string) ([]models.ConstraintInfo, error) {
	schema, err := a.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}

	var constraints []models.ConstraintInfo

	var pkCols []string
	for _, col := range schema.Columns {
		if col.Key == "PRI" {
			pkCols = append(pkCols, col.Name)
		}
	}
	if len(pkCols) > 0 {
		constraints = append(constraints, models.ConstraintInfo{Type: "PRIMARY KEY", Columns: pkCols})
	}

	for _, idx := range schema.Indexes {
		if idx.Unique {
			constraints = append(constraints, models.ConstraintInfo{
				Name: idx.Name, Type: "UNIQUE", Columns: idx.Columns,
			})
		}
	}

	quoted, _ := quoteIdent(table, '"')
	rows, err := a.sqlDB.QueryContext(ctx, "PRAGMA foreign_key_list("+quoted+")")
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	for rows.Next() {
		// id, seq, table, from, to, on_update, on_delete, match
		var id, seq int
		var refTable, from string
		var to *string
		var onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan foreign key", err)
		}
		ref := refTable
		if to != nil {
			ref = refTable + "(" + *to + ")"
		}
		constraints = append(constraints, models.ConstraintInfo{
			Type: "FOREIGN KEY", Columns: []string{from}, References: ref,
		})
	}
	return constraints, rows.Err()
}

func (a *SQLiteAdapter) Query(ctx context.Context, query string, maxRows int) (*models.TableResult, error) {
	// mode=ro plus PRAGMA query_only make a read-only tx redundant here
	return a.runQuery(ctx, query, maxRows, false)
}

func (a *SQLiteAdapter) Exec(ctx context.Context, query string) (int64, error) {
	return a.exec(ctx, query)
}

func (a *SQLiteAdapter) Explain(ctx context.Context, query string) (string, error) {
	stmt := query
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "EXPLAIN") {
		stmt = "EXPLAIN QUERY PLAN " + query
	}
	result, err := a.runQuery(ctx, stmt, 0, false)
	if err != nil {
		return "", err
	}
	return explainRows(result), nil
}
