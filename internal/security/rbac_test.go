package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPolicy() ToolAccessPolicy {
	return ToolAccessPolicy{
		EmployeeTools: []string{"search_internal_kb", "create_ticket", "web_search"},
		AdminTools: []string{
			"search_internal_kb", "create_ticket", "get_user_profile",
			"web_search", "query_database", "access_sensitive_docs",
		},
	}
}

func newTestRBAC(t *testing.T) *RBACManager {
	t.Helper()
	m, err := NewRBACManager(testPolicy(), zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"employee", "admin", "system"} {
		role, err := ParseRole(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, role.String())
	}

	for _, invalid := range []string{"", "Employee", "root", "superuser"} {
		_, err := ParseRole(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestCreateUser(t *testing.T) {
	m := newTestRBAC(t)

	t.Run("employee gets employee permissions", func(t *testing.T) {
		user, err := m.CreateUser("u-1", "employee", "support")
		require.NoError(t, err)
		assert.Equal(t, RoleEmployee, user.Role)
		assert.Equal(t, "support", user.Department)
		assert.True(t, m.CheckPermission(user, PermUseInternalKB))
		assert.False(t, m.CheckPermission(user, PermQueryDatabases))
		assert.False(t, m.CheckPermission(user, PermViewPII))
	})

	t.Run("admin is a superset of employee", func(t *testing.T) {
		user, err := m.CreateUser("u-2", "admin", "")
		require.NoError(t, err)
		assert.True(t, m.CheckPermission(user, PermUseInternalKB))
		assert.True(t, m.CheckPermission(user, PermQueryDatabases))
		assert.True(t, m.CheckPermission(user, PermViewPII))
		assert.False(t, m.CheckPermission(user, PermBypassGuardrails))
	})

	t.Run("system holds every permission", func(t *testing.T) {
		user, err := m.CreateUser("svc", "system", "")
		require.NoError(t, err)
		for _, p := range allPermissions {
			assert.True(t, m.CheckPermission(user, p), string(p))
		}
	})

	t.Run("unknown role is rejected, not downgraded", func(t *testing.T) {
		_, err := m.CreateUser("u-3", "superuser", "")
		assert.Error(t, err)
	})
}

func TestCheckToolAccess(t *testing.T) {
	m := newTestRBAC(t)

	employee, err := m.CreateUser("u-1", "employee", "")
	require.NoError(t, err)
	admin, err := m.CreateUser("u-2", "admin", "")
	require.NoError(t, err)

	assert.True(t, m.CheckToolAccess(employee, "search_internal_kb"))
	assert.False(t, m.CheckToolAccess(employee, "query_database"))
	assert.True(t, m.CheckToolAccess(admin, "query_database"))
	assert.False(t, m.CheckToolAccess(admin, "drop_all_tables"))
}

func TestToolAccessIndependentOfPermissions(t *testing.T) {
	// The allow-list table and the permission table are separate mechanisms.
	// Here the employee allow-list is configured to include query_database
	// even though employees never hold PermQueryDatabases; both answers must
	// come back as configured, not reconciled.
	policy := testPolicy()
	policy.EmployeeTools = append(policy.EmployeeTools, "query_database")
	m, err := NewRBACManager(policy, zap.NewNop())
	require.NoError(t, err)

	employee, err := m.CreateUser("u-1", "employee", "")
	require.NoError(t, err)

	assert.True(t, m.CheckToolAccess(employee, "query_database"))
	assert.False(t, m.CheckPermission(employee, PermQueryDatabases))
}

func TestAccessibleTools(t *testing.T) {
	m := newTestRBAC(t)

	employee, err := m.CreateUser("u-1", "employee", "")
	require.NoError(t, err)

	tools := m.AccessibleTools(employee)
	assert.ElementsMatch(t, []string{"search_internal_kb", "create_ticket", "web_search"}, tools)

	// Mutating the returned slice must not leak into the manager's table.
	tools[0] = "query_database"
	assert.False(t, m.CheckToolAccess(employee, "query_database"))
}

func TestNewRBACManagerRejectsEmptyAllowLists(t *testing.T) {
	_, err := NewRBACManager(ToolAccessPolicy{}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewRBACManager(ToolAccessPolicy{EmployeeTools: []string{"x"}}, zap.NewNop())
	assert.Error(t, err)
}
