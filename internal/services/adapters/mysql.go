package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/credentials"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
)

// MySQLAdapter runs every query inside a read-only transaction; the session
// level READ ONLY set at connect time is defense in depth.
type MySQLAdapter struct {
	sqlBase
	creds credentials.Bundle
}

func newMySQL(cfg *models.ConnectionConfig, creds credentials.Bundle) *MySQLAdapter {
	a := &MySQLAdapter{creds: creds}
	a.cfg = cfg
	return a
}

func (a *MySQLAdapter) Type() models.DatabaseType { return models.MySQL }

func (a *MySQLAdapter) dsn() string {
	params := []string{
		"parseTime=true",
		fmt.Sprintf("charset=%s", a.cfg.Charset),
		fmt.Sprintf("timeout=%s", a.cfg.ConnectTimeout),
	}
	if a.cfg.SSL != nil && a.cfg.SSL.Mode != "" {
		params = append(params, fmt.Sprintf("tls=%s", a.cfg.SSL.Mode))
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		a.cfg.Username,
		a.creds.Password.Reveal(),
		a.cfg.Host,
		a.cfg.Port,
		a.cfg.Database,
		strings.Join(params, "&"),
	)
}

func (a *MySQLAdapter) Connect(ctx context.Context) error {
	if a.connected() {
		return nil
	}
	if err := a.open(mysql.Open(a.dsn()), nil); err != nil {
		return err
	}
	if err := a.Ping(ctx); err != nil {
		return err
	}

	if !a.cfg.Writable {
		if _, err := a.sqlDB.ExecContext(ctx, "SET SESSION TRANSACTION READ ONLY"); err != nil {
			fiberlog.Warnf("connection %s: could not set session read-only: %v", a.cfg.Name, err)
		}
	}
	return nil
}

func (a *MySQLAdapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
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

func (a *MySQLAdapter) GetSchema(ctx context.Context, table string) (*models.TableSchema, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT column_name, column_type, is_nullable, COALESCE(column_default, ''),
		       column_key, extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	schema := &models.TableSchema{Table: table}
	for rows.Next() {
		var name, colType, nullable, dflt, key, extra string
		if err := rows.Scan(&name, &colType, &nullable, &dflt, &key, &extra); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan column info", err)
		}
		schema.Columns = append(schema.Columns, models.ColumnInfo{
			Name: name, Type: colType, Nullable: nullable == "YES",
			Default: dflt, Key: key, Extra: extra,
		})
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

func (a *MySQLAdapter) GetDDL(ctx context.Context, table string) (string, error) {
	quoted, err := quoteIdent(table, '`')
	if err != nil {
		return "", err
	}

	var name, ddl string
	err = a.sqlDB.QueryRowContext(ctx, "SHOW CREATE TABLE "+quoted).Scan(&name, &ddl)
	if err != nil {
		return "", models.NewQueryExecutionError(fmt.Sprintf("table %q not found", table), err)
	}
	return ddl, nil
}

func (a *MySQLAdapter) ListIndexes(ctx context.Context, table string) ([]models.IndexInfo, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT index_name, non_unique, column_name
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY index_name, seq_in_index`, table)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	var indexes []models.IndexInfo
	byName := make(map[string]int)
	for rows.Next() {
		var name, column string
		var nonUnique int
		if err := rows.Scan(&name, &nonUnique, &column); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan index", err)
		}
		if i, ok := byName[name]; ok {
			indexes[i].Columns = append(indexes[i].Columns, column)
			continue
		}
		byName[name] = len(indexes)
		indexes = append(indexes, models.IndexInfo{
			Name: name, Columns: []string{column}, Unique: nonUnique == 0,
		})
	}
	return indexes, rows.Err()
}

func (a *MySQLAdapter) TableStats(ctx context.Context, table string) (*models.TableStats, error) {
	stats := &models.TableStats{Table: table}

	err := a.sqlDB.QueryRowContext(ctx, `
		SELECT COALESCE(table_rows, 0), COALESCE(data_length + index_length, 0)
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`, table).
		Scan(&stats.RowCount, &stats.SizeBytes)
	if err != nil {
		return nil, models.NewQueryExecutionError(fmt.Sprintf("table %q not found", table), err)
	}

	err = a.sqlDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?`, table).
		Scan(&stats.ColumnCount)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	return stats, nil
}

func (a *MySQLAdapter) TableConstraints(ctx context.Context, table string) ([]models.ConstraintInfo, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT tc.constraint_name, tc.constraint_type,
		       COALESCE(kcu.column_name, ''),
		       COALESCE(CONCAT(kcu.referenced_table_name, '(', kcu.referenced_column_name, ')'), '')
		FROM information_schema.table_constraints tc
		LEFT JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		 AND kcu.table_schema = tc.table_schema
		 AND kcu.table_name = tc.table_name
		WHERE tc.table_schema = DATABASE() AND tc.table_name = ?
		ORDER BY tc.constraint_name, kcu.ordinal_position`, table)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	var constraints []models.ConstraintInfo
	byName := make(map[string]int)
	for rows.Next() {
		var name, ctype, column, ref string
		if err := rows.Scan(&name, &ctype, &column, &ref); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan constraint", err)
		}
		if i, ok := byName[name]; ok {
			if column != "" {
				constraints[i].Columns = append(constraints[i].Columns, column)
			}
			continue
		}
		c := models.ConstraintInfo{Name: name, Type: ctype, References: ref}
		if column != "" {
			c.Columns = []string{column}
		}
		byName[name] = len(constraints)
		constraints = append(constraints, c)
	}
	return constraints, rows.Err()
}

func (a *MySQLAdapter) Query(ctx context.Context, query string, maxRows int) (*models.TableResult, error) {
	return a.runQuery(ctx, query, maxRows, true)
}

func (a *MySQLAdapter) Exec(ctx context.Context, query string) (int64, error) {
	return a.exec(ctx, query)
}

func (a *MySQLAdapter) Explain(ctx context.Context, query string) (string, error) {
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
