package audit

import (
	"regexp"
)

var (
	// credential-bearing fragments, masked unconditionally
	credentialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(password\s*=\s*)('(?:[^']|'')*'|[^\s'");]+)`),
		regexp.MustCompile(`(?i)(identified\s+by\s+)('(?:[^']|'')*'|[^\s'");]+)`),
		regexp.MustCompile(`(?i)((?:api[_-]?key|token|secret)\s*=\s*)('(?:[^']|'')*'|[^\s'");]+)`),
	}

	stringLiteral  = regexp.MustCompile(`'(?:[^']|'')*'`)
	numericLiteral = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// SanitizeSQL prepares a statement for the audit trail. Credential-looking
// fragments are always masked. With full sanitization on, every string and
// numeric literal is replaced with a placeholder so row contents never reach
// the audit sinks.
func SanitizeSQL(sql string, full bool) string {
	if sql == "" {
		return ""
	}

	for _, re := range credentialPatterns {
		sql = re.ReplaceAllString(sql, "${1}***")
	}

	if full {
		sql = stringLiteral.ReplaceAllString(sql, "'?'")
		sql = numericLiteral.ReplaceAllString(sql, "?")
	}

	return sql
}
