package rbac

import "context"

// Repository defines persistence operations for roles, permissions and the
// three assignment relations. Edge operations carry exact set semantics:
// attach is idempotent and reports whether a new edge was created, detach
// treats an absent edge as already satisfied, sync replaces the whole edge
// set and reports the difference.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleBySlug(ctx context.Context, slug string) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	GetPermissionBySlug(ctx context.Context, slug string) (Permission, error)
	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	UpdatePermission(ctx context.Context, perm Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	// LoadSubject loads the full authorization snapshot for a subject in a
	// single consistent read. An unknown subject yields an empty snapshot.
	LoadSubject(ctx context.Context, subjectID int64) (Subject, error)
	// LoadRoleGrant loads one role with its permission slugs, used for the
	// guest fallback. Returns shared.ErrNotFound when the slug is unknown.
	LoadRoleGrant(ctx context.Context, slug string) (RoleGrant, error)

	AttachRoleToSubject(ctx context.Context, subjectID, roleID int64) (bool, error)
	DetachRoleFromSubject(ctx context.Context, subjectID, roleID int64) (bool, error)
	SyncSubjectRoles(ctx context.Context, subjectID int64, roleIDs []int64) (ChangeSet, error)

	AttachPermissionToSubject(ctx context.Context, subjectID, permissionID int64) (bool, error)
	DetachPermissionFromSubject(ctx context.Context, subjectID, permissionID int64) (bool, error)
	SyncSubjectPermissions(ctx context.Context, subjectID int64, permissionIDs []int64) (ChangeSet, error)

	AttachPermissionToRole(ctx context.Context, roleID, permissionID int64) (bool, error)
	DetachPermissionFromRole(ctx context.Context, roleID, permissionID int64) (bool, error)
	SyncRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (ChangeSet, error)
	SyncPermissionRoles(ctx context.Context, permissionID int64, roleIDs []int64) (ChangeSet, error)
}
