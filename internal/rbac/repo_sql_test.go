package rbac

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/platform/db"
)

// These tests exercise the advisory-lock serialization against a live
// Postgres. They run only when ACCESSGATE_TEST_PG_DSN points at a database
// with scripts/schema.sql applied.

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("ACCESSGATE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("set ACCESSGATE_TEST_PG_DSN to a database with scripts/schema.sql applied")
	}
	pool, err := db.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func uniqSlug(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

type syncResult struct {
	change ChangeSet
	err    error
}

// A sync that blocks on the per-entity advisory lock must, once unblocked,
// diff against the edges the previous lock holder committed. A transaction
// level that pins its snapshot before the lock is granted would instead
// diff against stale edges and silently lose the competing update.
func TestSyncSeesCommitOfPriorLockHolder(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	role, err := repo.CreateRole(ctx, Role{Slug: uniqSlug("sync-race"), Name: "Sync Race"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.DeleteRole(context.Background(), role.ID) })

	const subjectID = 900001

	// Stand in for a competing sync: take the subject's lock, attach the
	// edge, and commit while the repository call below is blocked.
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(lockSubjectRoles, subjectID))
	require.NoError(t, err)
	_, err = tx.Exec(ctx,
		`INSERT INTO role_subject (role_id, subject_id, created_at) VALUES ($1, $2, now())`,
		role.ID, subjectID)
	require.NoError(t, err)

	done := make(chan syncResult, 1)
	go func() {
		change, err := repo.SyncSubjectRoles(context.Background(), subjectID, nil)
		done <- syncResult{change, err}
	}()

	// Give the sync time to reach the lock and block.
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, tx.Commit(ctx))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, []int64{role.ID}, res.change.Detached,
		"blocked sync must observe the edge committed by the previous lock holder")

	subject, err := repo.LoadSubject(ctx, subjectID)
	require.NoError(t, err)
	assert.Empty(t, subject.Roles)
}

// Both sync orientations of permission_role take the same relation-level
// lock, so a permission-side sync blocks behind a role-side one and then
// observes its commit.
func TestPermissionRoleSyncOrientationsShareLock(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	role, err := repo.CreateRole(ctx, Role{Slug: uniqSlug("orient-role"), Name: "Orient Role"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.DeleteRole(context.Background(), role.ID) })
	perm, err := repo.CreatePermission(ctx, Permission{Slug: uniqSlug("orient-perm"), Name: "Orient Perm"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.DeletePermission(context.Background(), perm.ID) })

	// Stand in for a role-side sync holding the relation lock.
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(lockRolePermissions, 0))
	require.NoError(t, err)
	_, err = tx.Exec(ctx,
		`INSERT INTO permission_role (permission_id, role_id, created_at) VALUES ($1, $2, now())`,
		perm.ID, role.ID)
	require.NoError(t, err)

	done := make(chan syncResult, 1)
	go func() {
		change, err := repo.SyncPermissionRoles(context.Background(), perm.ID, nil)
		done <- syncResult{change, err}
	}()

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, tx.Commit(ctx))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, []int64{role.ID}, res.change.Detached,
		"permission-side sync must serialize behind the role-side lock")

	grant, err := repo.LoadRoleGrant(ctx, role.Slug)
	require.NoError(t, err)
	assert.Empty(t, grant.Permissions)
}
