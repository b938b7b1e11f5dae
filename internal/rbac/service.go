package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/accessgate/accessgate/internal/shared"
)

// Service orchestrates RBAC operations: snapshot loads feeding the pure
// resolver, entity management and assignment mutations.
type Service struct {
	repo      Repository
	guestSlug string
}

// NewService constructs a Service. guestSlug names the role evaluated for
// unauthenticated requests; empty disables the guest fallback.
func NewService(repo Repository, guestSlug string) *Service {
	return &Service{repo: repo, guestSlug: guestSlug}
}

// Subject loads the authorization snapshot for a subject id.
func (s *Service) Subject(ctx context.Context, subjectID int64) (Subject, error) {
	return s.repo.LoadSubject(ctx, subjectID)
}

// Guest loads the synthetic subject wrapping the configured guest role.
// Returns shared.ErrNotFound when no guest role is configured or present.
func (s *Service) Guest(ctx context.Context) (Subject, error) {
	if s.guestSlug == "" {
		return Subject{}, shared.ErrNotFound
	}
	grant, err := s.repo.LoadRoleGrant(ctx, s.guestSlug)
	if err != nil {
		return Subject{}, err
	}
	return GuestSubject(grant), nil
}

// Can reports whether the subject holds the permission slug.
func (s *Service) Can(ctx context.Context, subjectID int64, slug string) (bool, error) {
	subject, err := s.repo.LoadSubject(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return subject.Can(slug), nil
}

// CanAtLeast reports whether the subject holds at least one of the slugs.
func (s *Service) CanAtLeast(ctx context.Context, subjectID int64, slugs []string) (bool, error) {
	subject, err := s.repo.LoadSubject(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return subject.CanAtLeast(slugs), nil
}

// Is reports whether the subject holds the role slug (case-insensitive).
func (s *Service) Is(ctx context.Context, subjectID int64, slug string) (bool, error) {
	subject, err := s.repo.LoadSubject(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return subject.Is(slug), nil
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRoleBySlug fetches one role.
func (s *Service) GetRoleBySlug(ctx context.Context, slug string) (Role, error) {
	return s.repo.GetRoleBySlug(ctx, slug)
}

// CreateRole validates and inserts a new role.
func (s *Service) CreateRole(ctx context.Context, role Role) (Role, error) {
	role, err := normalizeRole(role)
	if err != nil {
		return Role{}, err
	}
	return s.repo.CreateRole(ctx, role)
}

// UpdateRole validates and updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, role Role) (Role, error) {
	role, err := normalizeRole(role)
	if err != nil {
		return Role{}, err
	}
	return s.repo.UpdateRole(ctx, role)
}

// DeleteRole removes a role and, via cascade, all of its assignment edges.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	return s.repo.DeleteRole(ctx, id)
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetPermissionBySlug fetches one permission.
func (s *Service) GetPermissionBySlug(ctx context.Context, slug string) (Permission, error) {
	return s.repo.GetPermissionBySlug(ctx, slug)
}

// CreatePermission validates and inserts a new permission.
func (s *Service) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	perm.Slug = strings.TrimSpace(perm.Slug)
	if perm.Slug == "" {
		return Permission{}, fmt.Errorf("%w: permission slug required", shared.ErrValidation)
	}
	perm.Name = strings.TrimSpace(perm.Name)
	perm.Description = strings.TrimSpace(perm.Description)
	return s.repo.CreatePermission(ctx, perm)
}

// UpdatePermission validates and updates an existing permission.
func (s *Service) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	perm.Slug = strings.TrimSpace(perm.Slug)
	if perm.Slug == "" {
		return Permission{}, fmt.Errorf("%w: permission slug required", shared.ErrValidation)
	}
	return s.repo.UpdatePermission(ctx, perm)
}

// DeletePermission removes a permission and cascades its edges.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	return s.repo.DeletePermission(ctx, id)
}

// AssignRole attaches a role to a subject. Re-assigning is a no-op
// reported as created=false.
func (s *Service) AssignRole(ctx context.Context, subjectID, roleID int64) (bool, error) {
	return s.repo.AttachRoleToSubject(ctx, subjectID, roleID)
}

// RevokeRole detaches a role from a subject. Absent edges succeed.
func (s *Service) RevokeRole(ctx context.Context, subjectID, roleID int64) (bool, error) {
	return s.repo.DetachRoleFromSubject(ctx, subjectID, roleID)
}

// SyncRoles replaces the subject's role set.
func (s *Service) SyncRoles(ctx context.Context, subjectID int64, roleIDs []int64) (ChangeSet, error) {
	return s.repo.SyncSubjectRoles(ctx, subjectID, roleIDs)
}

// RevokeAllRoles removes every role from the subject.
func (s *Service) RevokeAllRoles(ctx context.Context, subjectID int64) (ChangeSet, error) {
	return s.repo.SyncSubjectRoles(ctx, subjectID, nil)
}

// AssignPermission grants a permission directly to a subject.
func (s *Service) AssignPermission(ctx context.Context, subjectID, permissionID int64) (bool, error) {
	return s.repo.AttachPermissionToSubject(ctx, subjectID, permissionID)
}

// RevokePermission removes a direct permission grant.
func (s *Service) RevokePermission(ctx context.Context, subjectID, permissionID int64) (bool, error) {
	return s.repo.DetachPermissionFromSubject(ctx, subjectID, permissionID)
}

// SyncPermissions replaces the subject's direct permission set.
func (s *Service) SyncPermissions(ctx context.Context, subjectID int64, permissionIDs []int64) (ChangeSet, error) {
	return s.repo.SyncSubjectPermissions(ctx, subjectID, permissionIDs)
}

// RevokeAllPermissions removes every direct permission from the subject.
func (s *Service) RevokeAllPermissions(ctx context.Context, subjectID int64) (ChangeSet, error) {
	return s.repo.SyncSubjectPermissions(ctx, subjectID, nil)
}

// AttachRolePermission adds a permission to a role.
func (s *Service) AttachRolePermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	return s.repo.AttachPermissionToRole(ctx, roleID, permissionID)
}

// DetachRolePermission removes a permission from a role.
func (s *Service) DetachRolePermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	return s.repo.DetachPermissionFromRole(ctx, roleID, permissionID)
}

// SyncRolePermissions replaces a role's permission set.
func (s *Service) SyncRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (ChangeSet, error) {
	return s.repo.SyncRolePermissions(ctx, roleID, permissionIDs)
}

// SyncPermissionRoles replaces the set of roles carrying a permission.
func (s *Service) SyncPermissionRoles(ctx context.Context, permissionID int64, roleIDs []int64) (ChangeSet, error) {
	return s.repo.SyncPermissionRoles(ctx, permissionID, roleIDs)
}

// RolePermissions returns a role's permission slugs.
func (s *Service) RolePermissions(ctx context.Context, slug string) ([]string, error) {
	grant, err := s.repo.LoadRoleGrant(ctx, slug)
	if err != nil {
		return nil, err
	}
	return grant.Permissions, nil
}

func normalizeRole(role Role) (Role, error) {
	role.Slug = strings.TrimSpace(role.Slug)
	if role.Slug == "" {
		return Role{}, fmt.Errorf("%w: role slug required", shared.ErrValidation)
	}
	role.Name = strings.TrimSpace(role.Name)
	role.Description = strings.TrimSpace(role.Description)
	if !role.Special.Valid() {
		return Role{}, fmt.Errorf("%w: unknown special flag %q", shared.ErrValidation, role.Special)
	}
	return role, nil
}

// IsNotFound reports whether err is the not-found sentinel. Resolution
// callers treat that as a plain false, never an error.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
