package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"

	"gorm.io/gorm"
)

// sqlBase carries the shared lifecycle and row plumbing for the SQL-speaking
// adapters. The gorm handle owns the underlying *sql.DB; adapters run their
// statements through database/sql directly.
type sqlBase struct {
	cfg   *models.ConnectionConfig
	db    *gorm.DB
	sqlDB *sql.DB
}

func (b *sqlBase) open(dialector gorm.Dialector, gormCfg *gorm.Config) error {
	if gormCfg == nil {
		gormCfg = &gorm.Config{}
	}

	gormDB, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return classifyDialError(b.cfg.Name, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return models.NewInternalError("failed to unwrap sql.DB", err)
	}

	sqlDB.SetMaxOpenConns(b.cfg.Pool.MaxSize)
	sqlDB.SetMaxIdleConns(b.cfg.Pool.MinSize)
	sqlDB.SetConnMaxIdleTime(b.cfg.Pool.IdleTimeout)
	sqlDB.SetConnMaxLifetime(b.cfg.Pool.Recycle)

	b.db = gormDB
	b.sqlDB = sqlDB
	return nil
}

func (b *sqlBase) connected() bool {
	return b.sqlDB != nil
}

func (b *sqlBase) Ping(ctx context.Context) error {
	if b.sqlDB == nil {
		return models.NewConnectivityError("not connected", nil)
	}
	if err := b.sqlDB.PingContext(ctx); err != nil {
		return classifyDialError(b.cfg.Name, err)
	}
	return nil
}

func (b *sqlBase) Close() error {
	if b.sqlDB == nil {
		return nil
	}
	err := b.sqlDB.Close()
	b.sqlDB = nil
	b.db = nil
	return err
}

// runQuery executes a validated read statement and renders the uniform
// tabular result. With readOnlyTx the statement runs inside a read-only
// transaction so the backend itself rejects anything the validator missed.
func (b *sqlBase) runQuery(ctx context.Context, query string, maxRows int, readOnlyTx bool) (*models.TableResult, error) {
	if b.sqlDB == nil {
		return nil, models.NewConnectivityError("not connected", nil)
	}

	var rows *sql.Rows
	var err error

	if readOnlyTx {
		tx, txErr := b.sqlDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if txErr != nil {
			return nil, models.NewQueryExecutionError("failed to begin read-only transaction", txErr)
		}
		defer tx.Rollback() //nolint:errcheck

		rows, err = tx.QueryContext(ctx, query)
	} else {
		rows, err = b.sqlDB.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, classifyQueryError(ctx, err)
	}
	defer rows.Close()

	return collectRows(ctx, rows, maxRows)
}

// exec runs a permitted write statement. Callers gate this behind the
// writable flag and the permission checker; adapters for non-writable
// connections are opened read-only and will reject it at the backend.
func (b *sqlBase) exec(ctx context.Context, stmt string) (int64, error) {
	if b.sqlDB == nil {
		return 0, models.NewConnectivityError("not connected", nil)
	}
	if !b.cfg.Writable {
		return 0, models.NewRejectedOperationError(
			fmt.Sprintf("connection %q is read-only", b.cfg.Name))
	}

	res, err := b.sqlDB.ExecContext(ctx, stmt)
	if err != nil {
		return 0, classifyQueryError(ctx, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

// collectRows scans up to maxRows rows into the uniform result, then checks
// whether at least one more row exists so truncation is explicit.
func collectRows(ctx context.Context, rows *sql.Rows, maxRows int) (*models.TableResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, models.NewQueryExecutionError("failed to read result columns", err)
	}

	result := &models.TableResult{Columns: columns, Rows: [][]any{}}

	for rows.Next() {
		if maxRows > 0 && result.RowCount >= maxRows {
			result.Truncated = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, models.NewQueryExecutionError("failed to scan row", err)
		}
		for i, v := range values {
			if bs, ok := v.([]byte); ok {
				values[i] = string(bs)
			}
		}

		result.Rows = append(result.Rows, values)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryError(ctx, err)
	}

	return result, nil
}

// explainRows renders an EXPLAIN result as plain text, one plan row per line.
func explainRows(result *models.TableResult) string {
	var sb strings.Builder
	for _, row := range result.Rows {
		parts := make([]string, 0, len(row))
		for _, v := range row {
			if v == nil {
				continue
			}
			parts = append(parts, toString(v))
		}
		sb.WriteString(strings.Join(parts, " | "))
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
