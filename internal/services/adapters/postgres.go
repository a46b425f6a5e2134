package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/credentials"

	"gorm.io/driver/postgres"
)

// PostgresAdapter forces default_transaction_read_only at the session level
// and runs queries inside read-only transactions on top of that.
type PostgresAdapter struct {
	sqlBase
	creds credentials.Bundle
}

func newPostgres(cfg *models.ConnectionConfig, creds credentials.Bundle) *PostgresAdapter {
	a := &PostgresAdapter{creds: creds}
	a.cfg = cfg
	return a
}

func (a *PostgresAdapter) Type() models.DatabaseType { return models.PostgreSQL }

func (a *PostgresAdapter) dsn() string {
	sslMode := models.DefaultPostgresSSLMode
	if a.cfg.SSL != nil && a.cfg.SSL.Mode != "" {
		sslMode = a.cfg.SSL.Mode
	}

	parts := []string{
		fmt.Sprintf("host=%s", a.cfg.Host),
		fmt.Sprintf("port=%d", a.cfg.Port),
		fmt.Sprintf("user=%s", a.cfg.Username),
		fmt.Sprintf("dbname=%s", a.cfg.Database),
		fmt.Sprintf("sslmode=%s", sslMode),
		fmt.Sprintf("connect_timeout=%d", int(a.cfg.ConnectTimeout.Seconds())),
	}
	if !a.cfg.Writable {
		parts = append(parts, "options='-c default_transaction_read_only=on'")
	}
	if !a.creds.Password.IsZero() {
		parts = append(parts, fmt.Sprintf("password=%s", a.creds.Password.Reveal()))
	}
	if a.cfg.SSL != nil {
		if a.cfg.SSL.Cert != "" {
			parts = append(parts, fmt.Sprintf("sslcert=%s", a.cfg.SSL.Cert))
		}
		if a.cfg.SSL.Key != "" {
			parts = append(parts, fmt.Sprintf("sslkey=%s", a.cfg.SSL.Key))
		}
		if a.cfg.SSL.RootCert != "" {
			parts = append(parts, fmt.Sprintf("sslrootcert=%s", a.cfg.SSL.RootCert))
		}
	}
	return strings.Join(parts, " ")
}

func (a *PostgresAdapter) Connect(ctx context.Context) error {
	if a.connected() {
		return nil
	}
	if err := a.open(postgres.Open(a.dsn()), nil); err != nil {
		return err
	}
	return a.Ping(ctx)
}

func (a *PostgresAdapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
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

func (a *PostgresAdapter) GetSchema(ctx context.Context, table string) (*models.TableSchema, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, COALESCE(column_default, '')
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	schema := &models.TableSchema{Table: table}
	for rows.Next() {
		var name, dataType, nullable, dflt string
		if err := rows.Scan(&name, &dataType, &nullable, &dflt); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan column info", err)
		}
		schema.Columns = append(schema.Columns, models.ColumnInfo{
			Name: name, Type: dataType, Nullable: nullable == "YES", Default: dflt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	if len(schema.Columns) == 0 {
		return nil, models.NewQueryExecutionError(fmt.Sprintf("table %q not found", table), nil)
	}

	pkCols, err := a.primaryKeyColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	for i := range schema.Columns {
		if pkCols[schema.Columns[i].Name] {
			schema.Columns[i].Key = "PRI"
		}
	}

	schema.Indexes, err = a.ListIndexes(ctx, table)
	if err != nil {
		return nil, err
	}
	return schema, nil
}

func (a *PostgresAdapter) primaryKeyColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		 AND kcu.table_schema = tc.table_schema
		WHERE tc.table_schema = 'public'
		  AND tc.table_name = $1
		  AND tc.constraint_type = 'PRIMARY KEY'`, table)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan primary key", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// GetDDL reconstructs a CREATE TABLE statement from the catalog; PostgreSQL
// has no SHOW CREATE TABLE.
func (a *PostgresAdapter) GetDDL(ctx context.Context, table string) (string, error) {
	schema, err := a.GetSchema(ctx, table)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", table)
	for i, col := range schema.Columns {
		fmt.Fprintf(&sb, "    %s %s", col.Name, col.Type)
		if !col.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if col.Default != "" {
			fmt.Fprintf(&sb, " DEFAULT %s", col.Default)
		}
		if i < len(schema.Columns)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(");")

	constraints, err := a.TableConstraints(ctx, table)
	if err != nil {
		return "", err
	}
	for _, c := range constraints {
		if c.Definition != "" {
			fmt.Fprintf(&sb, "\nALTER TABLE %s ADD CONSTRAINT %s %s;", table, c.Name, c.Definition)
		}
	}
	return sb.String(), nil
}

func (a *PostgresAdapter) ListIndexes(ctx context.Context, table string) ([]models.IndexInfo, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT i.relname,
		       ix.indisunique,
		       array_to_string(ARRAY(
		           SELECT a.attname FROM unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
		           JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		           ORDER BY k.ord
		       ), ',')
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = 'public' AND t.relname = $1
		ORDER BY i.relname`, table)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	var indexes []models.IndexInfo
	for rows.Next() {
		var name, cols string
		var unique bool
		if err := rows.Scan(&name, &unique, &cols); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan index", err)
		}
		idx := models.IndexInfo{Name: name, Unique: unique}
		if cols != "" {
			idx.Columns = strings.Split(cols, ",")
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func (a *PostgresAdapter) TableStats(ctx context.Context, table string) (*models.TableStats, error) {
	stats := &models.TableStats{Table: table}

	err := a.sqlDB.QueryRowContext(ctx, `
		SELECT c.reltuples::bigint, pg_total_relation_size(c.oid)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = 'public' AND c.relname = $1`, table).
		Scan(&stats.RowCount, &stats.SizeBytes)
	if err != nil {
		return nil, models.NewQueryExecutionError(fmt.Sprintf("table %q not found", table), err)
	}

	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT attname,
		       (null_frac * GREATEST(c.reltuples, 0))::bigint,
		       CASE WHEN n_distinct >= 0 THEN n_distinct::bigint
		            ELSE (-n_distinct * GREATEST(c.reltuples, 0))::bigint END
		FROM pg_stats s
		JOIN pg_class c ON c.relname = s.tablename
		JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = s.schemaname
		WHERE s.schemaname = 'public' AND s.tablename = $1`, table)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cs models.ColumnStats
		if err := rows.Scan(&cs.Name, &cs.NullCount, &cs.DistinctCount); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan column stats", err)
		}
		stats.Columns = append(stats.Columns, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryError(ctx, err)
	}

	stats.ColumnCount = len(stats.Columns)
	if stats.ColumnCount == 0 {
		schema, err := a.GetSchema(ctx, table)
		if err != nil {
			return nil, err
		}
		stats.ColumnCount = len(schema.Columns)
	}
	return stats, nil
}

func (a *PostgresAdapter) TableConstraints(ctx context.Context, table string) ([]models.ConstraintInfo, error) {
	rows, err := a.sqlDB.QueryContext(ctx, `
		SELECT con.conname, con.contype, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = 'public' AND c.relname = $1
		ORDER BY con.conname`, table)
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	typeNames := map[string]string{
		"p": "PRIMARY KEY",
		"f": "FOREIGN KEY",
		"u": "UNIQUE",
		"c": "CHECK",
	}

	var constraints []models.ConstraintInfo
	for rows.Next() {
		var name, contype, def string
		if err := rows.Scan(&name, &contype, &def); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan constraint", err)
		}
		kind, ok := typeNames[contype]
		if !ok {
			kind = strings.ToUpper(contype)
		}
		constraints = append(constraints, models.ConstraintInfo{
			Name: name, Type: kind, Definition: def,
		})
	}
	return constraints, rows.Err()
}

func (a *PostgresAdapter) Query(ctx context.Context, query string, maxRows int) (*models.TableResult, error) {
	return a.runQuery(ctx, query, maxRows, true)
}

func (a *PostgresAdapter) Exec(ctx context.Context, query string) (int64, error) {
	return a.exec(ctx, query)
}

func (a *PostgresAdapter) Explain(ctx context.Context, query string) (string, error) {
	stmt := query
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "EXPLAIN") {
		stmt = "EXPLAIN " + query
	}
	result, err := a.runQuery(ctx, stmt, 0, true)
	if err != nil {
		return "", err
	}
	return explainRows(result), nil
}
