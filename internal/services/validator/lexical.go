package validator

import (
	"regexp"
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"
)

// keywordPattern matches a bare keyword with non-identifier boundaries so
// that column names like "updated_at" do not trip the check.
func keywordPattern(kw string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^a-zA-Z_])` + kw + `(?:[^a-zA-Z_]|$)`)
}

func funcPattern(fn string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + fn + `\s*\(`)
}

type bannedItem struct {
	re   *regexp.Regexp
	desc string
}

func keywords(kws ...string) []bannedItem {
	items := make([]bannedItem, 0, len(kws))
	for _, kw := range kws {
		items = append(items, bannedItem{keywordPattern(kw), kw})
	}
	return items
}

func functions(fns ...string) []bannedItem {
	items := make([]bannedItem, 0, len(fns))
	for _, fn := range fns {
		items = append(items, bannedItem{funcPattern(fn), fn + "()"})
	}
	return items
}

// commonKeywords are DML/DDL keywords blocked on the read path for every
// backend. The writable path never goes through the lexical layer's keyword
// screen; it is classified from the parse tree instead.
var commonKeywords = keywords(
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "GRANT", "REVOKE", "MERGE",
)

var setStatementPattern = regexp.MustCompile(`(?i)(?:^|;)\s*SET\b`)

// Per-dialect hazards: filesystem access, lock/sleep primitives and
// statements that mutate server state without being DML.
var dialectKeywords = map[models.DatabaseType][]bannedItem{
	models.SQLite: append(
		keywords("REPLACE", "ATTACH", "DETACH", "REINDEX", "VACUUM"),
		functions("load_extension", "writefile", "edit", "fts3_tokenizer")...,
	),
	models.MySQL: append(append(
		keywords("CALL", "EXECUTE", "REPLACE", "LOAD", "HANDLER", "RENAME"),
		functions("SLEEP", "BENCHMARK", "GET_LOCK", "RELEASE_LOCK", "LOAD_FILE",
			"MASTER_POS_WAIT", "SOURCE_POS_WAIT")...),
		bannedItem{regexp.MustCompile(`(?i)\bINTO\s+(OUTFILE|DUMPFILE|@)`), "INTO OUTFILE"},
	),
	models.PostgreSQL: append(append(
		keywords("CALL", "EXECUTE", "COPY", "LISTEN", "NOTIFY", "PREPARE",
			"DEALLOCATE", "VACUUM", "REINDEX", "CLUSTER"),
		functions("pg_sleep", "pg_sleep_for", "pg_sleep_until",
			"pg_read_file", "pg_read_binary_file", "pg_ls_dir",
			"lo_import", "lo_export",
			"pg_advisory_lock", "pg_advisory_xact_lock", "pg_try_advisory_lock")...),
		bannedItem{regexp.MustCompile(`(?i)\bCOPY\s+\S+\s+(TO|FROM)\b`), "COPY ... TO/FROM"},
	),
	models.ClickHouse: keywords(
		"OPTIMIZE", "SYSTEM", "KILL", "ATTACH", "DETACH", "RENAME", "EXCHANGE",
	),
}

var sqlitePragmaWrite = regexp.MustCompile(`(?i)\bPRAGMA\s+\w+\s*=`)

// lexicalCheck screens the raw statement before parsing. It works on a copy
// of the SQL with string literals and comments blanked out, so keywords
// hidden inside literals or comments cannot cause false positives, and
// keywords hidden behind comments cannot slip through.
func (v *Validator) lexicalCheck(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return models.NewRejectedOperationError("empty query")
	}

	cleaned := stripLiterals(trimmed, v.dialect)

	// A second statement after the terminating semicolon means a piggybacked
	// payload.
	if idx := strings.Index(cleaned, ";"); idx >= 0 {
		if strings.TrimSpace(cleaned[idx+1:]) != "" {
			return models.NewRejectedOperationError("multiple statements are not allowed")
		}
	}

	for _, item := range commonKeywords {
		if item.re.MatchString(cleaned) {
			return models.NewRejectedOperationError("query contains forbidden keyword: " + item.desc)
		}
	}

	if setStatementPattern.MatchString(cleaned) {
		return models.NewRejectedOperationError("SET statements are not allowed")
	}

	for _, item := range dialectKeywords[v.dialect] {
		if item.re.MatchString(cleaned) {
			return models.NewRejectedOperationError("query contains forbidden keyword: " + item.desc)
		}
	}

	if v.dialect == models.SQLite && sqlitePragmaWrite.MatchString(cleaned) {
		return models.NewRejectedOperationError("PRAGMA writes are not allowed")
	}

	return nil
}

// stripLiterals blanks string literals and removes comments so the keyword
// screens cannot be fooled by either. Identifier quoting (double quotes,
// backticks, brackets) is kept as-is because identifiers never carry
// keywords with statement meaning.
func stripLiterals(sql string, dialect models.DatabaseType) string {
	var out strings.Builder
	out.Grow(len(sql))

	i, n := 0, len(sql)
	for i < n {
		c := sql[i]

		// -- line comment
		if c == '-' && i+1 < n && sql[i+1] == '-' {
			for i < n && sql[i] != '\n' {
				i++
			}
			out.WriteByte(' ')
			continue
		}

		// # line comment (MySQL only)
		if c == '#' && dialect == models.MySQL {
			for i < n && sql[i] != '\n' {
				i++
			}
			out.WriteByte(' ')
			continue
		}

		// /* block comment */ (no nesting)
		if c == '/' && i+1 < n && sql[i+1] == '*' {
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			if i+1 < n {
				i += 2
			} else {
				i = n
			}
			out.WriteByte(' ')
			continue
		}

		// $tag$ ... $tag$ dollar quoting (PostgreSQL only)
		if c == '$' && dialect == models.PostgreSQL {
			if end := strings.IndexByte(sql[i+1:], '$'); end >= 0 && isDollarTag(sql[i+1:i+1+end]) {
				tag := sql[i : i+end+2]
				closeIdx := strings.Index(sql[i+len(tag):], tag)
				if closeIdx >= 0 {
					i += len(tag) + closeIdx + len(tag)
					out.WriteString("''")
					continue
				}
			}
		}

		// single-quoted string; '' escapes a quote, MySQL also honors backslash
		if c == '\'' {
			i++
			for i < n {
				if dialect == models.MySQL && sql[i] == '\\' && i+1 < n {
					i += 2
					continue
				}
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			out.WriteString("''")
			continue
		}

		// quoted identifiers pass through with their quoting intact
		if c == '"' || c == '`' {
			quote := c
			out.WriteByte(c)
			i++
			for i < n {
				out.WriteByte(sql[i])
				if sql[i] == quote {
					i++
					break
				}
				i++
			}
			continue
		}

		out.WriteByte(c)
		i++
	}

	return out.String()
}

func isDollarTag(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > 0 && c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
