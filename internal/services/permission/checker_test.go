package permission

import (
	"testing"

	"github.com/adaptive-sql/querygate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writableConfig(policy string, tables map[string]models.TablePermission) *models.ConnectionConfig {
	return &models.ConnectionConfig{
		Name:     "orders-db",
		Type:     models.PostgreSQL,
		Writable: true,
		WritePermissions: &models.WritePermissions{
			DefaultPolicy: policy,
			Tables:        tables,
		},
	}
}

func TestCheckReadAlwaysAllowed(t *testing.T) {
	checker := NewChecker()

	readOnly := &models.ConnectionConfig{Name: "ro", Writable: false}
	require.NoError(t, checker.Check(readOnly, "users", "SELECT"))
	require.NoError(t, checker.Check(readOnly, "users", "EXPLAIN"))
}

func TestCheckWritableFlagDominates(t *testing.T) {
	checker := NewChecker()

	// an allow_all policy block is irrelevant when the flag is off
	cfg := &models.ConnectionConfig{
		Name:     "ro",
		Writable: false,
		WritePermissions: &models.WritePermissions{
			DefaultPolicy: models.PolicyAllowAll,
		},
	}

	err := checker.Check(cfg, "users", "INSERT")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindRejectedOperation, models.KindOf(err))
}

func TestCheckDefaultPolicies(t *testing.T) {
	checker := NewChecker()

	denyByDefault := writableConfig(models.PolicyReadOnly, nil)
	err := checker.Check(denyByDefault, "users", "DELETE")
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindPermissionDenied, models.KindOf(err))

	allowByDefault := writableConfig(models.PolicyAllowAll, nil)
	require.NoError(t, checker.Check(allowByDefault, "users", "DELETE"))

	// writable with no policy block at all means unrestricted
	open := &models.ConnectionConfig{Name: "open", Writable: true}
	require.NoError(t, checker.Check(open, "users", "UPDATE"))
}

func TestCheckPerTableOverrides(t *testing.T) {
	checker := NewChecker()

	cfg := writableConfig(models.PolicyReadOnly, map[string]models.TablePermission{
		"staging_orders": {Operations: []string{"INSERT", "UPDATE"}},
		"scratch":        {Operations: []string{"ALL"}},
	})

	require.NoError(t, checker.Check(cfg, "staging_orders", "INSERT"))
	require.NoError(t, checker.Check(cfg, "staging_orders", "UPDATE"))
	require.Error(t, checker.Check(cfg, "staging_orders", "DELETE"))

	require.NoError(t, checker.Check(cfg, "scratch", "DELETE"))

	// absent table falls through to the read_only default
	require.Error(t, checker.Check(cfg, "users", "INSERT"))
}

func TestCheckTableEntryOverridesAllowAll(t *testing.T) {
	checker := NewChecker()

	cfg := writableConfig(models.PolicyAllowAll, map[string]models.TablePermission{
		"audit_log": {Operations: []string{"INSERT"}},
	})

	require.NoError(t, checker.Check(cfg, "audit_log", "INSERT"))
	require.Error(t, checker.Check(cfg, "audit_log", "DELETE"))
	require.NoError(t, checker.Check(cfg, "anything_else", "DELETE"))
}

func TestCheckGlobPatterns(t *testing.T) {
	checker := NewChecker()

	cfg := writableConfig(models.PolicyReadOnly, map[string]models.TablePermission{
		"tmp_*":    {Operations: []string{"ALL"}},
		"shard_??": {Operations: []string{"INSERT"}},
	})

	require.NoError(t, checker.Check(cfg, "tmp_import", "DELETE"))
	require.NoError(t, checker.Check(cfg, "shard_07", "INSERT"))
	require.Error(t, checker.Check(cfg, "shard_07", "DELETE"))
	require.Error(t, checker.Check(cfg, "shard_100", "INSERT"))
	require.Error(t, checker.Check(cfg, "users", "INSERT"))
}

func TestCheckCaseInsensitiveTables(t *testing.T) {
	checker := NewChecker()

	cfg := writableConfig(models.PolicyReadOnly, map[string]models.TablePermission{
		"Staging_Orders": {Operations: []string{"INSERT"}},
	})

	require.NoError(t, checker.Check(cfg, "staging_orders", "insert"))
	require.NoError(t, checker.Check(cfg, "STAGING_ORDERS", "INSERT"))
}

func TestAllowedOperations(t *testing.T) {
	checker := NewChecker()

	cfg := writableConfig(models.PolicyReadOnly, map[string]models.TablePermission{
		"staging": {Operations: []string{"INSERT", "UPDATE"}},
		"scratch": {Operations: []string{"ALL"}},
	})

	assert.Equal(t, []string{"INSERT", "UPDATE"}, checker.AllowedOperations(cfg, "staging"))
	assert.Equal(t, []string{"INSERT", "UPDATE", "DELETE"}, checker.AllowedOperations(cfg, "scratch"))
	assert.Empty(t, checker.AllowedOperations(cfg, "users"))

	readOnly := &models.ConnectionConfig{Name: "ro"}
	assert.Empty(t, checker.AllowedOperations(readOnly, "users"))
}
