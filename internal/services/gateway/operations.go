package gateway

import (
	"context"
	"sort"
	"time"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/adapters"
	"github.com/adaptive-sql/querygate/internal/services/audit"
	"github.com/adaptive-sql/querygate/internal/services/validator"
)

// ConnectionSummary is the credential-free view of a configured connection.
type ConnectionSummary struct {
	Name     string              `json:"name"`
	Type     models.DatabaseType `json:"type"`
	Host     string              `json:"host,omitempty"`
	Database string              `json:"database,omitempty"`
	Writable bool                `json:"writable"`
}

// ListConnections reports the configured connection names. Config only, no
// backend is touched and nothing is audited.
func (g *Gateway) ListConnections() []ConnectionSummary {
	out := make([]ConnectionSummary, 0, len(g.cfg.Connections))
	for _, conn := range g.cfg.Connections {
		out = append(out, ConnectionSummary{
			Name:     conn.Name,
			Type:     conn.Type,
			Host:     conn.Host,
			Database: conn.Database,
			Writable: conn.Writable,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListTables enumerates the tables visible on a connection.
func (g *Gateway) ListTables(ctx context.Context, req *models.OperationRequest) ([]string, error) {
	req.Action = models.ActionListTables
	var tables []string
	err := g.run(ctx, req, nil, func(ctx context.Context, ad adapters.Adapter, _ *outcome) error {
		var err error
		tables, err = ad.ListTables(ctx)
		return err
	})
	return tables, err
}

// DescribeTable returns the column-level schema of one table.
func (g *Gateway) DescribeTable(ctx context.Context, req *models.OperationRequest) (*models.TableSchema, error) {
	req.Action = models.ActionDescribeTable
	return g.tableSchema(ctx, req)
}

// GetSchema is the uniform schema operation; same shape as DescribeTable.
func (g *Gateway) GetSchema(ctx context.Context, req *models.OperationRequest) (*models.TableSchema, error) {
	req.Action = models.ActionGetSchema
	return g.tableSchema(ctx, req)
}

func (g *Gateway) tableSchema(ctx context.Context, req *models.OperationRequest) (*models.TableSchema, error) {
	var schema *models.TableSchema
	err := g.run(ctx, req, requireTable(req), func(ctx context.Context, ad adapters.Adapter, _ *outcome) error {
		var err error
		schema, err = ad.GetSchema(ctx, req.Table)
		return err
	})
	return schema, err
}

// GetDDL returns the backend's creation statement for a table.
func (g *Gateway) GetDDL(ctx context.Context, req *models.OperationRequest) (string, error) {
	req.Action = models.ActionGetDDL
	var ddl string
	err := g.run(ctx, req, requireTable(req), func(ctx context.Context, ad adapters.Adapter, _ *outcome) error {
		var err error
		ddl, err = ad.GetDDL(ctx, req.Table)
		return err
	})
	return ddl, err
}

// ListIndexes returns the indexes on a table.
func (g *Gateway) ListIndexes(ctx context.Context, req *models.OperationRequest) ([]models.IndexInfo, error) {
	req.Action = models.ActionListIndexes
	var indexes []models.IndexInfo
	err := g.run(ctx, req, requireTable(req), func(ctx context.Context, ad adapters.Adapter, _ *outcome) error {
		var err error
		indexes, err = ad.ListIndexes(ctx, req.Table)
		return err
	})
	return indexes, err
}

// RunQuery executes a validated statement. Reads always pass validation;
// writes are the explicit opt-in path gated by the writable flag and the
// per-table policy.
func (g *Gateway) RunQuery(ctx context.Context, req *models.OperationRequest) (*models.TableResult, error) {
	req.Action = models.ActionRunQuery

	var result *models.TableResult
	var parsed *validator.ParsedQuery
	var isWrite bool

	validate := func(conn *models.ConnectionConfig) error {
		// redis takes a command line, not SQL; the adapter's read whitelist is
		// the validation surface there
		if conn.Type == models.Redis {
			if err := adapters.ValidateReadCommand(req.SQL); err != nil {
				return err
			}
			parsed = &validator.ParsedQuery{SQL: req.SQL, Kind: validator.StatementOther}
			return nil
		}

		v := g.validatorFor(conn)
		var readErr error
		parsed, readErr = v.Validate(req.SQL)
		if readErr == nil {
			return nil
		}
		// the writable flag dominates: without it the read rejection stands
		if !conn.Writable {
			return readErr
		}

		classified, err := v.ClassifyStatement(req.SQL)
		if err != nil {
			return readErr
		}
		switch classified.Kind {
		case validator.StatementInsert, validator.StatementUpdate, validator.StatementDelete:
		default:
			return readErr
		}
		if len(classified.Tables) == 0 {
			return readErr
		}
		for _, table := range classified.Tables {
			if err := g.checker.Check(conn, table, string(classified.Kind)); err != nil {
				return err
			}
		}
		parsed = classified
		isWrite = true
		return nil
	}

	err := g.run(ctx, req, validate, func(ctx context.Context, ad adapters.Adapter, out *outcome) error {
		if isWrite {
			affected, err := ad.Exec(ctx, req.SQL)
			if err != nil {
				return err
			}
			result = &models.TableResult{
				Columns:  []string{"rows_affected"},
				Rows:     [][]any{{affected}},
				RowCount: 1,
			}
			return nil
		}

		conn, _ := g.cfg.Connection(req.Connection)
		res, err := ad.Query(ctx, parsed.SQL, conn.MaxRows)
		if err != nil {
			return err
		}
		result = res
		out.truncated = res.Truncated
		return nil
	})
	return result, err
}

// ExplainQuery returns the backend's plan for a validated read statement.
func (g *Gateway) ExplainQuery(ctx context.Context, req *models.OperationRequest) (string, error) {
	req.Action = models.ActionExplainQuery

	var plan string
	err := g.run(ctx, req, g.validateRead(req), func(ctx context.Context, ad adapters.Adapter, _ *outcome) error {
		var err error
		plan, err = ad.Explain(ctx, req.SQL)
		return err
	})
	return plan, err
}

// GetStats returns row and size statistics for a table.
func (g *Gateway) GetStats(ctx context.Context, req *models.OperationRequest) (*models.TableStats, error) {
	req.Action = models.ActionGetStats
	var stats *models.TableStats
	err := g.run(ctx, req, requireTable(req), func(ctx context.Context, ad adapters.Adapter, _ *outcome) error {
		var err error
		stats, err = ad.TableStats(ctx, req.Table)
		return err
	})
	return stats, err
}

// ListConstraints returns the constraints on a table.
func (g *Gateway) ListConstraints(ctx context.Context, req *models.OperationRequest) ([]models.ConstraintInfo, error) {
	req.Action = models.ActionListConstraints
	var constraints []models.ConstraintInfo
	err := g.run(ctx, req, requireTable(req), func(ctx context.Context, ad adapters.Adapter, _ *outcome) error {
		var err error
		constraints, err = ad.TableConstraints(ctx, req.Table)
		return err
	})
	return constraints, err
}

// AnalyzeQuery explains a read statement, executes it under the row cap, and
// derives optimization suggestions from the plan and the observed duration.
func (g *Gateway) AnalyzeQuery(ctx context.Context, req *models.OperationRequest) (*models.QueryAnalysis, error) {
	req.Action = models.ActionAnalyzeQuery

	var analysis *models.QueryAnalysis
	err := g.run(ctx, req, g.validateRead(req), func(ctx context.Context, ad adapters.Adapter, out *outcome) error {
		plan, err := ad.Explain(ctx, req.SQL)
		if err != nil {
			return err
		}

		conn, _ := g.cfg.Connection(req.Connection)
		start := time.Now()
		res, err := ad.Query(ctx, req.SQL, conn.MaxRows)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)
		out.truncated = res.Truncated

		analysis = &models.QueryAnalysis{
			SQL:         req.SQL,
			Plan:        plan,
			DurationMs:  float64(elapsed) / float64(time.Millisecond),
			Suggestions: optimizationSuggestions(plan, elapsed, res),
		}
		return nil
	})
	return analysis, err
}

// GetPerformance reports the per-connection aggregates collected by the
// audit trail. Config only, nothing executes on the backend.
func (g *Gateway) GetPerformance(connection string) (audit.ConnectionMetrics, error) {
	if _, err := g.connection(connection); err != nil {
		return audit.ConnectionMetrics{}, err
	}
	return g.auditLog.Metrics().Snapshot(connection), nil
}

func (g *Gateway) validateRead(req *models.OperationRequest) func(*models.ConnectionConfig) error {
	return func(conn *models.ConnectionConfig) error {
		if conn.Type == models.Redis {
			return adapters.ValidateReadCommand(req.SQL)
		}
		_, err := g.validatorFor(conn).Validate(req.SQL)
		return err
	}
}

func requireTable(req *models.OperationRequest) func(*models.ConnectionConfig) error {
	return func(*models.ConnectionConfig) error {
		if req.Table == "" {
			return models.NewRejectedOperationError("table name is required")
		}
		return nil
	}
}
