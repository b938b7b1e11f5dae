package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integrity holds the handlers for the RBAC maintenance tasks.
type Integrity struct {
	Pool      *pgxpool.Pool
	Logger    *slog.Logger
	GuestSlug string
}

// Orphaned edges should be impossible with the cascade FKs in place; a
// non-zero count means the schema was altered or rows were written around
// the constraints.
var orphanQueries = map[string]string{
	"permission_role": `
		SELECT count(*) FROM permission_role pr
		LEFT JOIN roles r ON r.id = pr.role_id
		LEFT JOIN permissions p ON p.id = pr.permission_id
		WHERE r.id IS NULL OR p.id IS NULL`,
	"role_subject": `
		SELECT count(*) FROM role_subject rs
		LEFT JOIN roles r ON r.id = rs.role_id
		WHERE r.id IS NULL`,
	"permission_subject": `
		SELECT count(*) FROM permission_subject ps
		LEFT JOIN permissions p ON p.id = ps.permission_id
		WHERE p.id IS NULL`,
}

// HandleIntegritySweep processes TaskIntegritySweep tasks.
func (i *Integrity) HandleIntegritySweep(ctx context.Context, _ *asynq.Task) error {
	for relation, query := range orphanQueries {
		var count int64
		if err := i.Pool.QueryRow(ctx, query).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			i.Logger.Warn("orphaned assignment edges found",
				slog.String("relation", relation),
				slog.Int64("count", count))
			continue
		}
		i.Logger.Info("assignment relation clean", slog.String("relation", relation))
	}
	return nil
}

// HandleGuestCheck processes TaskGuestCheck tasks. A missing guest role
// means permission-gated routes are currently open to anonymous traffic.
func (i *Integrity) HandleGuestCheck(ctx context.Context, _ *asynq.Task) error {
	if i.GuestSlug == "" {
		i.Logger.Info("guest fallback disabled")
		return nil
	}
	var id int64
	err := i.Pool.QueryRow(ctx, `SELECT id FROM roles WHERE slug = $1`, i.GuestSlug).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			i.Logger.Warn("guest role missing, anonymous requests pass permission gates",
				slog.String("slug", i.GuestSlug))
			return nil
		}
		return err
	}
	i.Logger.Info("guest role present", slog.String("slug", i.GuestSlug), slog.Int64("role_id", id))
	return nil
}
