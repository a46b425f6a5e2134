// Package permission enforces the per-connection write policy. The gateway
// is read-only by default; writes are an explicit opt-in with the writable
// flag, and the flag always dominates whatever the policy block says.
package permission

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"
)

// Write operations recognized by the policy. ALL in a table's operation list
// expands to the full set.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
	OpAll    = "ALL"
)

var writeOps = []string{OpInsert, OpUpdate, OpDelete}

// Checker evaluates statements against a connection's write policy. It is
// stateless and safe for concurrent use.
type Checker struct{}

func NewChecker() *Checker {
	return &Checker{}
}

// Check decides whether op may run against table on the given connection.
// Read operations are always allowed. Non-reads on a connection without the
// writable flag are rejected outright, regardless of any policy block.
func (c *Checker) Check(cfg *models.ConnectionConfig, table, op string) error {
	op = strings.ToUpper(op)
	if !isWriteOp(op) {
		return nil
	}

	if !cfg.Writable {
		return models.NewRejectedOperationError(
			fmt.Sprintf("connection %q is read-only", cfg.Name))
	}

	if c.allows(cfg.WritePermissions, table, op) {
		return nil
	}

	return models.NewPermissionDeniedError(
		fmt.Sprintf("%s on table %q is not permitted on connection %q", op, table, cfg.Name))
}

// AllowedOperations reports which write operations the policy grants for a
// table. Empty means read-only.
func (c *Checker) AllowedOperations(cfg *models.ConnectionConfig, table string) []string {
	if !cfg.Writable {
		return nil
	}

	var allowed []string
	for _, op := range writeOps {
		if c.allows(cfg.WritePermissions, table, op) {
			allowed = append(allowed, op)
		}
	}
	return allowed
}

// allows resolves the policy for one table and operation. An explicit table
// entry, matched exactly or by glob pattern, overrides the default policy.
func (c *Checker) allows(perms *models.WritePermissions, table, op string) bool {
	// writable with no policy block at all means all writes are allowed
	if perms == nil {
		return true
	}

	if entry, ok := lookupTable(perms.Tables, table); ok {
		return operationListed(entry.Operations, op)
	}

	return perms.DefaultPolicy == models.PolicyAllowAll
}

// lookupTable finds the policy entry for a table name. Exact matches win;
// otherwise glob patterns are tried in sorted order so resolution does not
// depend on map iteration.
func lookupTable(tables map[string]models.TablePermission, table string) (models.TablePermission, bool) {
	lower := strings.ToLower(table)

	if entry, ok := tables[lower]; ok {
		return entry, true
	}
	for name, entry := range tables {
		if strings.EqualFold(name, table) {
			return entry, true
		}
	}

	patterns := make([]string, 0, len(tables))
	for name := range tables {
		if strings.ContainsAny(name, "*?") {
			patterns = append(patterns, name)
		}
	}
	sort.Strings(patterns)

	for _, pattern := range patterns {
		if ok, err := path.Match(strings.ToLower(pattern), lower); err == nil && ok {
			return tables[pattern], true
		}
	}

	return models.TablePermission{}, false
}

func operationListed(ops []string, op string) bool {
	for _, o := range ops {
		o = strings.ToUpper(o)
		if o == OpAll || o == op {
			return true
		}
	}
	return false
}

func isWriteOp(op string) bool {
	return op == OpInsert || op == OpUpdate || op == OpDelete
}
