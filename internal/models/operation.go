package models

import "time"

// ActionKind identifies one of the uniform gateway operations.
type ActionKind string

const (
	ActionListTables      ActionKind = "list-tables"
	ActionDescribeTable   ActionKind = "describe-table"
	ActionGetSchema       ActionKind = "get-schema"
	ActionGetDDL          ActionKind = "get-ddl"
	ActionListIndexes     ActionKind = "list-indexes"
	ActionRunQuery        ActionKind = "run-query"
	ActionExplainQuery    ActionKind = "explain-query"
	ActionGetStats        ActionKind = "get-stats"
	ActionListConstraints ActionKind = "list-constraints"
	ActionAnalyzeQuery    ActionKind = "analyze-query"
	ActionGetPerformance  ActionKind = "get-performance"
)

// OperationRequest is the transient value describing one gateway call.
// Exactly one audit record is produced per request.
type OperationRequest struct {
	ID         string     `json:"id"`
	Connection string     `json:"connection"`
	Action     ActionKind `json:"action"`
	SQL        string     `json:"sql,omitempty"`
	Table      string     `json:"table,omitempty"`
	Actor      string     `json:"actor,omitempty"`
}

// AuditRecord is immutable once written. The SQL field is already sanitized
// by the time a record is constructed.
type AuditRecord struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Connection string        `json:"connection"`
	Action     ActionKind    `json:"action"`
	SQL        string        `json:"sql,omitempty"`
	Table      string        `json:"table,omitempty"`
	Actor      string        `json:"actor,omitempty"`
	Success    bool          `json:"success"`
	ErrorKind  ErrorKind     `json:"error_kind,omitempty"`
	Duration   time.Duration `json:"duration_ms"`
	Truncated  bool          `json:"truncated,omitempty"`
}
