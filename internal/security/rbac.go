package security

import (
	"fmt"

	"go.uber.org/zap"
)

// Role is a coarse access level. Roles are closed: anything outside this set
// is a parse error, never a silent downgrade.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func (r Role) String() string {
	return string(r)
}

// ParseRole maps a wire-format role string to a Role. Unknown values are
// rejected; the caller decides whether to fail the request or substitute a
// role of its own choosing.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleEmployee, RoleAdmin, RoleSystem:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Permission is a fine-grained capability tag checked against the role table.
type Permission string

const (
	PermUseSearchTools      Permission = "use_search_tools"
	PermUseInternalKB       Permission = "use_internal_kb"
	PermCreateTickets       Permission = "create_tickets"
	PermAccessUserProfiles  Permission = "access_user_profiles"
	PermQueryDatabases      Permission = "query_databases"
	PermAccessSensitiveDocs Permission = "access_sensitive_docs"
	PermViewPII             Permission = "view_pii"
	PermExportData          Permission = "export_data"
	PermBypassGuardrails    Permission = "bypass_guardrails"
	PermAdminFunctions      Permission = "admin_functions"
)

var allPermissions = []Permission{
	PermUseSearchTools, PermUseInternalKB, PermCreateTickets,
	PermAccessUserProfiles, PermQueryDatabases, PermAccessSensitiveDocs,
	PermViewPII, PermExportData, PermBypassGuardrails, PermAdminFunctions,
}

// User carries the identity evaluations are made against. The permission set
// is derived from the role once at construction and never mutated.
type User struct {
	ID          string
	Role        Role
	Department  string
	Permissions map[Permission]struct{}
}

// ToolAccessPolicy is the per-role tool allow-list table, loaded from
// configuration. It is deliberately independent of the Permission table: the
// two gate different things and are allowed to drift.
type ToolAccessPolicy struct {
	EmployeeTools []string
	AdminTools    []string
	SystemTools   []string
}

// RBACManager answers permission and tool-access questions. All tables are
// fixed at construction; the manager is safe for concurrent use.
type RBACManager struct {
	logger          *zap.Logger
	rolePermissions map[Role][]Permission
	toolAllowLists  map[Role][]string
}

// NewRBACManager builds the role tables. An empty allow-list for employee or
// admin is treated as a broken security configuration and refused: running
// with no tool policy at all must not look like running with a strict one.
func NewRBACManager(policy ToolAccessPolicy, logger *zap.Logger) (*RBACManager, error) {
	if len(policy.EmployeeTools) == 0 || len(policy.AdminTools) == 0 {
		return nil, fmt.Errorf("tool allow-lists for employee and admin roles must be configured")
	}

	systemTools := policy.SystemTools
	if len(systemTools) == 0 {
		systemTools = policy.AdminTools
	}

	return &RBACManager{
		logger: logger.Named("rbac"),
		rolePermissions: map[Role][]Permission{
			RoleEmployee: {
				PermUseSearchTools,
				PermUseInternalKB,
				PermCreateTickets,
			},
			RoleAdmin: {
				PermUseSearchTools,
				PermUseInternalKB,
				PermCreateTickets,
				PermAccessUserProfiles,
				PermQueryDatabases,
				PermAccessSensitiveDocs,
				PermViewPII,
				PermExportData,
				PermAdminFunctions,
			},
			RoleSystem: allPermissions,
		},
		toolAllowLists: map[Role][]string{
			RoleEmployee: policy.EmployeeTools,
			RoleAdmin:    policy.AdminTools,
			RoleSystem:   systemTools,
		},
	}, nil
}

// CreateUser builds a User with the permission set for its role. An
// unrecognized role string is an error; there is no fallback role.
func (m *RBACManager) CreateUser(id, roleString, department string) (*User, error) {
	role, err := ParseRole(roleString)
	if err != nil {
		m.logger.Warn("rejected user with invalid role",
			zap.String("user_id", id),
			zap.String("role", roleString))
		return nil, err
	}

	permissions := make(map[Permission]struct{}, len(m.rolePermissions[role]))
	for _, p := range m.rolePermissions[role] {
		permissions[p] = struct{}{}
	}

	user := &User{
		ID:          id,
		Role:        role,
		Department:  department,
		Permissions: permissions,
	}

	m.logger.Info("user created",
		zap.String("user_id", id),
		zap.String("role", role.String()),
		zap.Int("permissions", len(permissions)))

	return user, nil
}

// CheckPermission is set membership against the role-derived permission set.
func (m *RBACManager) CheckPermission(user *User, permission Permission) bool {
	_, ok := user.Permissions[permission]
	m.logger.Debug("permission check",
		zap.String("user_id", user.ID),
		zap.String("role", user.Role.String()),
		zap.String("permission", string(permission)),
		zap.Bool("granted", ok))
	return ok
}

// CheckToolAccess consults the configured per-role allow-list. This check is
// not derived from CheckPermission and the two may disagree.
func (m *RBACManager) CheckToolAccess(user *User, toolName string) bool {
	granted := false
	for _, tool := range m.toolAllowLists[user.Role] {
		if tool == toolName {
			granted = true
			break
		}
	}

	if granted {
		m.logger.Info("tool access granted",
			zap.String("user_id", user.ID),
			zap.String("role", user.Role.String()),
			zap.String("tool", toolName))
	} else {
		m.logger.Warn("tool access denied",
			zap.String("user_id", user.ID),
			zap.String("role", user.Role.String()),
			zap.String("tool", toolName),
			zap.String("event_type", "access_denied"))
	}

	return granted
}

// AccessibleTools returns a copy of the allow-list for the user's role.
func (m *RBACManager) AccessibleTools(user *User) []string {
	tools := m.toolAllowLists[user.Role]
	out := make([]string, len(tools))
	copy(out, tools)
	return out
}

// AuditAccessAttempt emits a structured audit record. It is side-effect only;
// callers never consume a return value.
func (m *RBACManager) AuditAccessAttempt(user *User, resource, action string, granted bool, details map[string]any) {
	m.logger.Info("access audit",
		zap.String("user_id", user.ID),
		zap.String("role", user.Role.String()),
		zap.String("resource", resource),
		zap.String("action", action),
		zap.Bool("granted", granted),
		zap.Any("details", details),
		zap.String("event_type", "access_audit"))
}
