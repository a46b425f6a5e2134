package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/adaptive-sql/querygate/internal/models"
)

const slowQueryThreshold = 100 * time.Millisecond

// optimizationSuggestions derives advisory hints from an execution plan and
// the observed runtime. Heuristics only, never authoritative.
func optimizationSuggestions(plan string, elapsed time.Duration, res *models.TableResult) []string {
	var out []string
	lower := strings.ToLower(plan)

	if strings.Contains(lower, "seq scan") || strings.Contains(lower, "scan table") ||
		strings.Contains(lower, "full scan") || strings.Contains(lower, "type: all") {
		out = append(out, "full table scan detected, consider adding an index on the filtered columns")
	}
	if strings.Contains(lower, "using temporary") || strings.Contains(lower, "temp b-tree") {
		out = append(out, "query materializes a temporary structure, consider an index covering the GROUP BY or DISTINCT columns")
	}
	if strings.Contains(lower, "using filesort") {
		out = append(out, "sort is not served by an index, consider an index matching the ORDER BY")
	}
	if strings.Contains(lower, "hash join") && strings.Contains(lower, "seq scan") {
		out = append(out, "hash join over a sequential scan, an index on the join key may allow a faster plan")
	}
	if strings.Contains(lower, "nested loop") && elapsed > slowQueryThreshold {
		out = append(out, "slow nested loop join, check that the inner relation is indexed on the join key")
	}
	if elapsed > slowQueryThreshold {
		out = append(out, fmt.Sprintf("query took %.0fms, consider narrowing the result with WHERE or LIMIT", float64(elapsed)/float64(time.Millisecond)))
	}
	if res != nil && res.Truncated {
		out = append(out, "result hit the row cap, add a LIMIT to bound the query yourself")
	}
	return out
}
