package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accessgate/accessgate/internal/platform/db"
	"github.com/accessgate/accessgate/internal/shared"
)

// Advisory lock classes, one per assignment relation. Sync operations
// serialize on pg_advisory_xact_lock so two concurrent syncs cannot
// interleave their diff computations. The subject relations lock per
// subject; permission_role locks at relation level (id 0) because its two
// sync orientations would not conflict under per-entity keys.
const (
	lockSubjectRoles       = 1
	lockSubjectPermissions = 2
	lockRolePermissions    = 3
)

func lockKey(class uint8, id int64) int64 {
	return int64(class)<<56 ^ id
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const roleColumns = `id, slug, name, description, special, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Slug, &role.Name, &role.Description, &role.Special, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by slug.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// GetRoleBySlug fetches a role by its exact slug.
func (r *PGRepository) GetRoleBySlug(ctx context.Context, slug string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE slug = $1`, slug))
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO roles (slug, name, description, special, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 RETURNING `+roleColumns,
		role.Slug, role.Name, role.Description, role.Special)
	created, err := scanRole(row)
	if err != nil {
		return Role{}, mapPgError(err)
	}
	return created, nil
}

// UpdateRole updates an existing role.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE roles SET slug = $2, name = $3, description = $4, special = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+roleColumns,
		role.ID, role.Slug, role.Name, role.Description, role.Special)
	updated, err := scanRole(row)
	if err != nil {
		return Role{}, mapPgError(err)
	}
	return updated, nil
}

// DeleteRole removes a role. Assignment edges go with it via cascade.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const permissionColumns = `id, slug, name, description, created_at, updated_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Slug, &perm.Name, &perm.Description, &perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

// ListPermissions returns all permissions ordered by slug.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// GetPermission fetches a permission by ID.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
}

// GetPermissionBySlug fetches a permission by its exact slug.
func (r *PGRepository) GetPermissionBySlug(ctx context.Context, slug string) (Permission, error) {
	return scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE slug = $1`, slug))
}

// CreatePermission inserts a new permission.
func (r *PGRepository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (slug, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 RETURNING `+permissionColumns,
		perm.Slug, perm.Name, perm.Description)
	created, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapPgError(err)
	}
	return created, nil
}

// UpdatePermission updates an existing permission.
func (r *PGRepository) UpdatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE permissions SET slug = $2, name = $3, description = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+permissionColumns,
		perm.ID, perm.Slug, perm.Name, perm.Description)
	updated, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapPgError(err)
	}
	return updated, nil
}

// DeletePermission removes a permission and cascades its assignment edges.
func (r *PGRepository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// LoadSubject loads the subject's roles, each role's permissions and the
// subject's direct permissions inside one RepeatableRead transaction.
func (r *PGRepository) LoadSubject(ctx context.Context, subjectID int64) (Subject, error) {
	subject := Subject{ID: subjectID}
	err := db.WithSnapshotTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT r.id, r.slug, r.name, r.description, r.special, r.created_at, r.updated_at
			 FROM roles r
			 JOIN role_subject rs ON rs.role_id = r.id
			 WHERE rs.subject_id = $1
			 ORDER BY r.slug`, subjectID)
		if err != nil {
			return err
		}
		defer rows.Close()
		var roleIDs []int64
		index := make(map[int64]int)
		for rows.Next() {
			role, err := scanRole(rows)
			if err != nil {
				return err
			}
			index[role.ID] = len(subject.Roles)
			subject.Roles = append(subject.Roles, RoleGrant{Role: role})
			roleIDs = append(roleIDs, role.ID)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if len(roleIDs) > 0 {
			permRows, err := tx.Query(ctx,
				`SELECT pr.role_id, p.slug
				 FROM permission_role pr
				 JOIN permissions p ON p.id = pr.permission_id
				 WHERE pr.role_id = ANY($1)`, roleIDs)
			if err != nil {
				return err
			}
			defer permRows.Close()
			for permRows.Next() {
				var roleID int64
				var slug string
				if err := permRows.Scan(&roleID, &slug); err != nil {
					return err
				}
				i := index[roleID]
				subject.Roles[i].Permissions = append(subject.Roles[i].Permissions, slug)
			}
			if err := permRows.Err(); err != nil {
				return err
			}
		}

		directRows, err := tx.Query(ctx,
			`SELECT p.slug
			 FROM permissions p
			 JOIN permission_subject ps ON ps.permission_id = p.id
			 WHERE ps.subject_id = $1`, subjectID)
		if err != nil {
			return err
		}
		defer directRows.Close()
		for directRows.Next() {
			var slug string
			if err := directRows.Scan(&slug); err != nil {
				return err
			}
			subject.Direct = append(subject.Direct, slug)
		}
		return directRows.Err()
	})
	if err != nil {
		return Subject{}, err
	}
	return subject, nil
}

// LoadRoleGrant loads one role and its permission slugs by slug.
func (r *PGRepository) LoadRoleGrant(ctx context.Context, slug string) (RoleGrant, error) {
	grant := RoleGrant{}
	err := db.WithSnapshotTx(ctx, r.pool, func(tx pgx.Tx) error {
		role, err := scanRole(tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE slug = $1`, slug))
		if err != nil {
			return err
		}
		grant.Role = role
		rows, err := tx.Query(ctx,
			`SELECT p.slug
			 FROM permissions p
			 JOIN permission_role pr ON pr.permission_id = p.id
			 WHERE pr.role_id = $1`, role.ID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var permSlug string
			if err := rows.Scan(&permSlug); err != nil {
				return err
			}
			grant.Permissions = append(grant.Permissions, permSlug)
		}
		return rows.Err()
	})
	if err != nil {
		return RoleGrant{}, err
	}
	return grant, nil
}

// AttachRoleToSubject adds one subject-role edge; reports whether it was new.
func (r *PGRepository) AttachRoleToSubject(ctx context.Context, subjectID, roleID int64) (bool, error) {
	return r.attach(ctx,
		`INSERT INTO role_subject (role_id, subject_id, created_at) VALUES ($1, $2, now())
		 ON CONFLICT DO NOTHING`, roleID, subjectID)
}

// DetachRoleFromSubject removes the edge; absent edges are already satisfied.
func (r *PGRepository) DetachRoleFromSubject(ctx context.Context, subjectID, roleID int64) (bool, error) {
	return r.detach(ctx,
		`DELETE FROM role_subject WHERE role_id = $1 AND subject_id = $2`, roleID, subjectID)
}

// SyncSubjectRoles replaces the subject's role set with exactly roleIDs.
func (r *PGRepository) SyncSubjectRoles(ctx context.Context, subjectID int64, roleIDs []int64) (ChangeSet, error) {
	return r.sync(ctx, syncSpec{
		lock:       lockKey(lockSubjectRoles, subjectID),
		currentSQL: `SELECT role_id FROM role_subject WHERE subject_id = $1`,
		insertSQL:  `INSERT INTO role_subject (role_id, subject_id, created_at) VALUES ($1, $2, now()) ON CONFLICT DO NOTHING`,
		deleteSQL:  `DELETE FROM role_subject WHERE subject_id = $1 AND role_id = ANY($2)`,
		ownerID:    subjectID,
	}, roleIDs)
}

// AttachPermissionToSubject adds one direct permission grant.
func (r *PGRepository) AttachPermissionToSubject(ctx context.Context, subjectID, permissionID int64) (bool, error) {
	return r.attach(ctx,
		`INSERT INTO permission_subject (permission_id, subject_id, created_at) VALUES ($1, $2, now())
		 ON CONFLICT DO NOTHING`, permissionID, subjectID)
}

// DetachPermissionFromSubject removes one direct permission grant.
func (r *PGRepository) DetachPermissionFromSubject(ctx context.Context, subjectID, permissionID int64) (bool, error) {
	return r.detach(ctx,
		`DELETE FROM permission_subject WHERE permission_id = $1 AND subject_id = $2`, permissionID, subjectID)
}

// SyncSubjectPermissions replaces the subject's direct permission set.
func (r *PGRepository) SyncSubjectPermissions(ctx context.Context, subjectID int64, permissionIDs []int64) (ChangeSet, error) {
	return r.sync(ctx, syncSpec{
		lock:       lockKey(lockSubjectPermissions, subjectID),
		currentSQL: `SELECT permission_id FROM permission_subject WHERE subject_id = $1`,
		insertSQL:  `INSERT INTO permission_subject (permission_id, subject_id, created_at) VALUES ($1, $2, now()) ON CONFLICT DO NOTHING`,
		deleteSQL:  `DELETE FROM permission_subject WHERE subject_id = $1 AND permission_id = ANY($2)`,
		ownerID:    subjectID,
	}, permissionIDs)
}

// AttachPermissionToRole adds one role-permission edge.
func (r *PGRepository) AttachPermissionToRole(ctx context.Context, roleID, permissionID int64) (bool, error) {
	return r.attach(ctx,
		`INSERT INTO permission_role (permission_id, role_id, created_at) VALUES ($1, $2, now())
		 ON CONFLICT DO NOTHING`, permissionID, roleID)
}

// DetachPermissionFromRole removes one role-permission edge.
func (r *PGRepository) DetachPermissionFromRole(ctx context.Context, roleID, permissionID int64) (bool, error) {
	return r.detach(ctx,
		`DELETE FROM permission_role WHERE permission_id = $1 AND role_id = $2`, permissionID, roleID)
}

// SyncRolePermissions replaces a role's permission set.
func (r *PGRepository) SyncRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (ChangeSet, error) {
	return r.sync(ctx, syncSpec{
		lock:       lockKey(lockRolePermissions, 0),
		currentSQL: `SELECT permission_id FROM permission_role WHERE role_id = $1`,
		insertSQL:  `INSERT INTO permission_role (permission_id, role_id, created_at) VALUES ($1, $2, now()) ON CONFLICT DO NOTHING`,
		deleteSQL:  `DELETE FROM permission_role WHERE role_id = $1 AND permission_id = ANY($2)`,
		ownerID:    roleID,
	}, permissionIDs)
}

// SyncPermissionRoles replaces the set of roles carrying a permission. Same
// relation as SyncRolePermissions, owned from the other endpoint.
func (r *PGRepository) SyncPermissionRoles(ctx context.Context, permissionID int64, roleIDs []int64) (ChangeSet, error) {
	return r.sync(ctx, syncSpec{
		lock:       lockKey(lockRolePermissions, 0),
		currentSQL: `SELECT role_id FROM permission_role WHERE permission_id = $1`,
		insertSQL:  `INSERT INTO permission_role (role_id, permission_id, created_at) VALUES ($1, $2, now()) ON CONFLICT DO NOTHING`,
		deleteSQL:  `DELETE FROM permission_role WHERE permission_id = $1 AND role_id = ANY($2)`,
		ownerID:    permissionID,
	}, roleIDs)
}

func (r *PGRepository) attach(ctx context.Context, sql string, targetID, ownerID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, sql, targetID, ownerID)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepository) detach(ctx context.Context, sql string, targetID, ownerID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, sql, targetID, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type syncSpec struct {
	lock       int64
	currentSQL string
	insertSQL  string
	deleteSQL  string
	ownerID    int64
}

func (r *PGRepository) sync(ctx context.Context, spec syncSpec, targetIDs []int64) (ChangeSet, error) {
	keep := make(map[int64]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		keep[id] = struct{}{}
	}

	var change ChangeSet
	// ReadCommitted, not RepeatableRead: the lock statement may block, and
	// the current-edge read below must see what the previous lock holder
	// committed. A pinned snapshot here would diff against stale edges.
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, spec.lock); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, spec.currentSQL, spec.ownerID)
		if err != nil {
			return err
		}
		existing := make(map[int64]struct{})
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			existing[id] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		change = ChangeSet{}
		for id := range keep {
			if _, ok := existing[id]; !ok {
				if _, err := tx.Exec(ctx, spec.insertSQL, id, spec.ownerID); err != nil {
					return mapPgError(err)
				}
				change.Attached = append(change.Attached, id)
			}
		}
		var detach []int64
		for id := range existing {
			if _, ok := keep[id]; !ok {
				detach = append(detach, id)
			}
		}
		if len(detach) > 0 {
			if _, err := tx.Exec(ctx, spec.deleteSQL, spec.ownerID, detach); err != nil {
				return err
			}
			change.Detached = detach
		}
		return nil
	})
	if err != nil {
		return ChangeSet{}, err
	}
	return change, nil
}

// mapPgError translates Postgres constraint violations into domain sentinels.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return fmt.Errorf("%w: %s", shared.ErrIntegrity, pgErr.ConstraintName)
		case "23505":
			return fmt.Errorf("%w: %s", shared.ErrDuplicate, pgErr.ConstraintName)
		}
	}
	return err
}
