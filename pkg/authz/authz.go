// Package authz implements role-based access control for manifest
// operations. Roles grant permissions directly or by inheriting other
// roles; users hold roles.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	ErrPermissionDenied  = errors.New("authz: permission denied")
	ErrUnknownRole       = errors.New("authz: unknown role")
	ErrUnknownPermission = errors.New("authz: unknown permission")
	ErrInvalidRole       = errors.New("authz: invalid role")
	ErrInvalidUser       = errors.New("authz: invalid user")
)

// Permission is a single grantable capability.
type Permission string

const (
	ManifestCreate Permission = "manifest:create"
	ManifestRead   Permission = "manifest:read"
	ManifestUpdate Permission = "manifest:update"
	ManifestDelete Permission = "manifest:delete"
	ManifestSign   Permission = "manifest:sign"

	WorkflowInitiate Permission = "workflow:initiate"
	WorkflowReview   Permission = "workflow:review"
	WorkflowApprove  Permission = "workflow:approve"
	WorkflowReject   Permission = "workflow:reject"

	ComplianceCheck    Permission = "compliance:check"
	ComplianceOverride Permission = "compliance:override"

	AdminUserManage   Permission = "admin:user:manage"
	AdminRoleManage   Permission = "admin:role:manage"
	AdminPolicyManage Permission = "admin:policy:manage"
	AdminSystemConfig Permission = "admin:system:config"
)

var allPermissions = []Permission{
	ManifestCreate, ManifestRead, ManifestUpdate, ManifestDelete, ManifestSign,
	WorkflowInitiate, WorkflowReview, WorkflowApprove, WorkflowReject,
	ComplianceCheck, ComplianceOverride,
	AdminUserManage, AdminRoleManage, AdminPolicyManage, AdminSystemConfig,
}

// AllPermissions lists every known permission.
func AllPermissions() []Permission {
	return append([]Permission(nil), allPermissions...)
}

func (p Permission) Valid() bool {
	for _, known := range allPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// Role is a named permission set. Inherits names roles whose permissions
// are granted as well, transitively.
type Role struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
	Inherits    []string     `json:"inherits,omitempty" yaml:"inherits,omitempty"`
}

// User is an account holding roles. A disabled user holds no permissions.
type User struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Email      string   `json:"email,omitempty" yaml:"email,omitempty"`
	Department string   `json:"department,omitempty" yaml:"department,omitempty"`
	Roles      []string `json:"roles" yaml:"roles"`
	Disabled   bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// DefaultRoles returns the built-in roles: creator, reviewer, approver,
// editor, manager and administrator.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:        "creator",
			Description: "Content creator with basic manifest creation permissions",
			Permissions: []Permission{ManifestCreate, ManifestRead, WorkflowInitiate},
		},
		{
			Name:        "reviewer",
			Description: "Content reviewer with review permissions",
			Permissions: []Permission{ManifestRead, WorkflowReview, ComplianceCheck},
		},
		{
			Name:        "approver",
			Description: "Content approver with approval permissions",
			Permissions: []Permission{ManifestRead, ManifestSign, WorkflowApprove, WorkflowReject, ComplianceCheck},
		},
		{
			Name:        "editor",
			Description: "Content editor with full editing permissions",
			Permissions: []Permission{ManifestUpdate},
			Inherits:    []string{"creator"},
		},
		{
			Name:        "manager",
			Description: "Department manager with full workflow permissions",
			Permissions: []Permission{ManifestDelete, ComplianceOverride},
			Inherits:    []string{"editor", "reviewer", "approver"},
		},
		{
			Name:        "administrator",
			Description: "System administrator with all permissions",
			Permissions: AllPermissions(),
		},
	}
}

// Engine resolves user permissions. It is safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	roles  map[string]Role
	users  map[string]User
	logger *slog.Logger
}

// NewEngine returns an engine holding the default roles and no users.
func NewEngine() *Engine {
	e := &Engine{
		roles:  make(map[string]Role),
		users:  make(map[string]User),
		logger: slog.Default().With("component", "authz"),
	}
	for _, r := range DefaultRoles() {
		e.roles[r.Name] = r
	}
	return e
}

// AddRole adds or replaces a role. Inherited roles may be added later.
func (e *Engine) AddRole(r Role) error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRole)
	}
	for _, p := range r.Permissions {
		if !p.Valid() {
			return fmt.Errorf("%w: %q in role %s", ErrUnknownPermission, p, r.Name)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roles[r.Name] = r
	return nil
}

// Role returns a role by name.
func (e *Engine) Role(name string) (Role, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.roles[name]
	return r, ok
}

// AddUser adds or replaces a user. Every role must already exist.
func (e *Engine) AddUser(u User) error {
	if u.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidUser)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, name := range u.Roles {
		if _, ok := e.roles[name]; !ok {
			return fmt.Errorf("%w: %q for user %s", ErrUnknownRole, name, u.ID)
		}
	}
	e.users[u.ID] = u
	return nil
}

// User returns a user by id.
func (e *Engine) User(id string) (User, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	u, ok := e.users[id]
	return u, ok
}

// Permissions returns the sorted permissions of a user. Unknown and
// disabled users have none.
func (e *Engine) Permissions(userID string) []Permission {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set := e.grants(userID)
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// grants expects e.mu to be held.
func (e *Engine) grants(userID string) map[Permission]struct{} {
	set := make(map[Permission]struct{})
	u, ok := e.users[userID]
	if !ok || u.Disabled {
		return set
	}
	visited := make(map[string]bool)
	var walk func(name string)
	walk = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		r, ok := e.roles[name]
		if !ok {
			return
		}
		for _, p := range r.Permissions {
			set[p] = struct{}{}
		}
		for _, parent := range r.Inherits {
			walk(parent)
		}
	}
	for _, name := range u.Roles {
		walk(name)
	}
	return set
}

// Check reports whether the user holds every listed permission.
func (e *Engine) Check(userID string, perms ...Permission) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set := e.grants(userID)
	for _, p := range perms {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}

// Authorize returns ErrPermissionDenied unless the user holds perm.
func (e *Engine) Authorize(ctx context.Context, userID string, perm Permission) error {
	if e.Check(userID, perm) {
		return nil
	}
	e.logger.WarnContext(ctx, "permission denied", "user_id", userID, "permission", perm)
	return fmt.Errorf("%w: user %q lacks %s", ErrPermissionDenied, userID, perm)
}
