// Package validator screens SQL before it ever touches a backend. Validation
// is fail closed: a statement passes only when both the lexical screen and
// the parse-tree classification positively identify it as a read, so an
// unparseable or ambiguous statement is rejected rather than forwarded.
package validator

import (
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// StatementKind is the classified intent of a single SQL statement.
type StatementKind string

const (
	StatementSelect  StatementKind = "SELECT"
	StatementExplain StatementKind = "EXPLAIN"
	StatementShow    StatementKind = "SHOW"
	StatementInsert  StatementKind = "INSERT"
	StatementUpdate  StatementKind = "UPDATE"
	StatementDelete  StatementKind = "DELETE"
	StatementOther   StatementKind = "OTHER"
)

// ParsedQuery is the validated form of an incoming statement.
type ParsedQuery struct {
	SQL    string
	Kind   StatementKind
	Tables []string
}

// Validator checks statements for one SQL dialect. Safe for concurrent use.
type Validator struct {
	dialect models.DatabaseType
}

func New(dialect models.DatabaseType) *Validator {
	return &Validator{dialect: dialect}
}

// Validate admits a statement to the read path. Both layers must pass: the
// lexical screen catches dialect hazards the parser cannot see, and the
// parse tree must classify as SELECT, EXPLAIN of a SELECT, or SHOW.
func (v *Validator) Validate(sql string) (*ParsedQuery, error) {
	if err := v.lexicalCheck(sql); err != nil {
		return nil, err
	}

	// SHOW and DESCRIBE are metadata reads with no PostgreSQL grammar
	// equivalent on these dialects. They passed the lexical screen, which
	// already rejected piggybacked statements.
	if v.dialect == models.MySQL || v.dialect == models.ClickHouse {
		upper := strings.ToUpper(strings.TrimSpace(sql))
		if strings.HasPrefix(upper, "SHOW ") ||
			strings.HasPrefix(upper, "DESCRIBE ") || strings.HasPrefix(upper, "DESC ") {
			return &ParsedQuery{SQL: sql, Kind: StatementShow}, nil
		}
	}

	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, models.NewRejectedOperationError("statement could not be parsed: " + err.Error())
	}
	if len(result.Stmts) != 1 {
		return nil, models.NewRejectedOperationError("exactly one statement is required")
	}

	stmt := result.Stmts[0].Stmt
	kind := classifyNode(stmt)
	switch kind {
	case StatementSelect, StatementShow:
	case StatementExplain:
		if inner := explainTarget(stmt); classifyNode(inner) != StatementSelect {
			return nil, models.NewRejectedOperationError("EXPLAIN is limited to SELECT statements")
		}
	default:
		return nil, models.NewRejectedOperationError("only read statements are allowed")
	}

	seen := make(map[string]bool)
	var tables []string
	collectTables(stmt, seen, &tables)

	return &ParsedQuery{SQL: sql, Kind: kind, Tables: tables}, nil
}

// ClassifyStatement identifies a statement for the opt-in writable path. The
// common DML keyword screen is skipped, but dialect hazards and multi
// statement payloads are still rejected, and the statement must parse.
func (v *Validator) ClassifyStatement(sql string) (*ParsedQuery, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil, models.NewRejectedOperationError("empty query")
	}

	cleaned := stripLiterals(trimmed, v.dialect)
	if idx := strings.Index(cleaned, ";"); idx >= 0 && strings.TrimSpace(cleaned[idx+1:]) != "" {
		return nil, models.NewRejectedOperationError("multiple statements are not allowed")
	}
	for _, item := range dialectKeywords[v.dialect] {
		if item.re.MatchString(cleaned) {
			return nil, models.NewRejectedOperationError("query contains forbidden keyword: " + item.desc)
		}
	}

	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, models.NewRejectedOperationError("statement could not be parsed: " + err.Error())
	}
	if len(result.Stmts) != 1 {
		return nil, models.NewRejectedOperationError("exactly one statement is required")
	}

	stmt := result.Stmts[0].Stmt
	seen := make(map[string]bool)
	var tables []string
	collectTables(stmt, seen, &tables)

	return &ParsedQuery{SQL: sql, Kind: classifyNode(stmt), Tables: tables}, nil
}

// ExtractTables returns the deduplicated table names a statement references,
// in first-seen order.
func (v *Validator) ExtractTables(sql string) ([]string, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, models.NewRejectedOperationError("statement could not be parsed: " + err.Error())
	}

	seen := make(map[string]bool)
	var tables []string
	for _, stmt := range result.Stmts {
		collectTables(stmt.Stmt, seen, &tables)
	}
	return tables, nil
}

func classifyNode(node *pg_query.Node) StatementKind {
	if node == nil {
		return StatementOther
	}
	switch node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return StatementSelect
	case *pg_query.Node_ExplainStmt:
		return StatementExplain
	case *pg_query.Node_VariableShowStmt:
		return StatementShow
	case *pg_query.Node_InsertStmt:
		return StatementInsert
	case *pg_query.Node_UpdateStmt:
		return StatementUpdate
	case *pg_query.Node_DeleteStmt:
		return StatementDelete
	default:
		return StatementOther
	}
}

func explainTarget(node *pg_query.Node) *pg_query.Node {
	if n, ok := node.Node.(*pg_query.Node_ExplainStmt); ok {
		return n.ExplainStmt.Query
	}
	return nil
}
