package models

// TableResult is the uniform tabular result returned by run-query.
// Truncated is set when the backend returned more rows than the configured
// cap; excess rows are dropped with this explicit marker, never silently.
type TableResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated,omitempty"`
}

// ColumnInfo describes one column of a table schema.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
	Key      string `json:"key,omitempty"`
	Extra    string `json:"extra,omitempty"`
}

// IndexInfo describes one index on a table.
type IndexInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns,omitempty"`
	Unique  bool     `json:"unique"`
}

// TableSchema is the result of get-schema.
type TableSchema struct {
	Table   string       `json:"table"`
	Columns []ColumnInfo `json:"columns"`
	Indexes []IndexInfo  `json:"indexes,omitempty"`
}

// ConstraintInfo describes one table constraint.
type ConstraintInfo struct {
	Name       string   `json:"name,omitempty"`
	Type       string   `json:"type"` // PRIMARY KEY, FOREIGN KEY, UNIQUE, CHECK
	Columns    []string `json:"columns,omitempty"`
	References string   `json:"references,omitempty"`
	Definition string   `json:"definition,omitempty"`
}

// ColumnStats holds per-column statistics for get-stats.
type ColumnStats struct {
	Name          string `json:"name"`
	NullCount     int64  `json:"null_count"`
	DistinctCount int64  `json:"distinct_count,omitzero"`
}

// TableStats is the result of get-stats.
type TableStats struct {
	Table       string        `json:"table"`
	RowCount    int64         `json:"row_count"`
	SizeBytes   int64         `json:"size_bytes,omitzero"`
	ColumnCount int           `json:"column_count"`
	Columns     []ColumnStats `json:"columns,omitempty"`
}

// QueryAnalysis is the result of analyze-query: plan plus timing and hints.
type QueryAnalysis struct {
	SQL         string   `json:"sql"`
	Plan        string   `json:"plan"`
	DurationMs  float64  `json:"duration_ms"`
	Suggestions []string `json:"suggestions,omitempty"`
}
