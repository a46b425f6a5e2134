package validator

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// collectTables recursively walks a parse tree node, collecting table names
// from RangeVar references.
func collectTables(node *pg_query.Node, seen map[string]bool, tables *[]string) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		collectFromSelect(n.SelectStmt, seen, tables)
	case *pg_query.Node_ExplainStmt:
		collectTables(n.ExplainStmt.Query, seen, tables)
	case *pg_query.Node_InsertStmt:
		if n.InsertStmt.Relation != nil {
			addTable(n.InsertStmt.Relation.Relname, seen, tables)
		}
		if n.InsertStmt.SelectStmt != nil {
			collectTables(n.InsertStmt.SelectStmt, seen, tables)
		}
	case *pg_query.Node_UpdateStmt:
		if n.UpdateStmt.Relation != nil {
			addTable(n.UpdateStmt.Relation.Relname, seen, tables)
		}
		for _, from := range n.UpdateStmt.FromClause {
			collectFromFromNode(from, seen, tables)
		}
		collectFromExpr(n.UpdateStmt.WhereClause, seen, tables)
	case *pg_query.Node_DeleteStmt:
		if n.DeleteStmt.Relation != nil {
			addTable(n.DeleteStmt.Relation.Relname, seen, tables)
		}
		collectFromExpr(n.DeleteStmt.WhereClause, seen, tables)
	}
}

// collectFromSelect handles SELECT statements (including set operations).
func collectFromSelect(sel *pg_query.SelectStmt, seen map[string]bool, tables *[]string) {
	if sel == nil {
		return
	}

	// UNION/INTERSECT/EXCEPT arms
	if sel.Larg != nil {
		collectFromSelect(sel.Larg, seen, tables)
	}
	if sel.Rarg != nil {
		collectFromSelect(sel.Rarg, seen, tables)
	}

	for _, from := range sel.FromClause {
		collectFromFromNode(from, seen, tables)
	}

	collectFromExpr(sel.WhereClause, seen, tables)
	collectFromExpr(sel.HavingClause, seen, tables)

	for _, target := range sel.TargetList {
		collectFromExpr(target, seen, tables)
	}

	if sel.WithClause != nil {
		for _, cte := range sel.WithClause.Ctes {
			if c, ok := cte.Node.(*pg_query.Node_CommonTableExpr); ok {
				collectTables(c.CommonTableExpr.Ctequery, seen, tables)
			}
		}
	}
}

func collectFromFromNode(node *pg_query.Node, seen map[string]bool, tables *[]string) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		addTable(n.RangeVar.Relname, seen, tables)
	case *pg_query.Node_JoinExpr:
		collectFromFromNode(n.JoinExpr.Larg, seen, tables)
		collectFromFromNode(n.JoinExpr.Rarg, seen, tables)
	case *pg_query.Node_RangeSubselect:
		collectTables(n.RangeSubselect.Subquery, seen, tables)
	case *pg_query.Node_RangeFunction:
		// table-valued functions are not tables
	}
}

// collectFromExpr walks expression nodes looking for subqueries.
func collectFromExpr(node *pg_query.Node, seen map[string]bool, tables *[]string) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SubLink:
		collectTables(n.SubLink.Subselect, seen, tables)
	case *pg_query.Node_BoolExpr:
		for _, arg := range n.BoolExpr.Args {
			collectFromExpr(arg, seen, tables)
		}
	case *pg_query.Node_AExpr:
		collectFromExpr(n.AExpr.Lexpr, seen, tables)
		collectFromExpr(n.AExpr.Rexpr, seen, tables)
	case *pg_query.Node_ResTarget:
		collectFromExpr(n.ResTarget.Val, seen, tables)
	}
}

func addTable(name string, seen map[string]bool, tables *[]string) {
	if name == "" || seen[name] {
		return
	}
	seen[name] = true
	*tables = append(*tables, name)
}
