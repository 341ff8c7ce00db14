package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulse-inbox/internal/domain"
)

type ModerationRepo struct {
	pool *pgxpool.Pool
}

func NewModerationRepo(pool *pgxpool.Pool) *ModerationRepo {
	return &ModerationRepo{pool: pool}
}

// Append only ever inserts; the log has no update or delete path.
func (r *ModerationRepo) Append(ctx context.Context, a *domain.ModerationAction) error {
	query := `
		INSERT INTO moderation_actions (id, actor_id, object_type, object_id, action_type, reason, report_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		a.ID, a.ActorID, string(a.ObjectType), a.ObjectID, string(a.ActionType), a.Reason, a.ReportID, a.CreatedAt,
	)
	return wrapErr("append moderation action", err)
}

func (r *ModerationRepo) ListForActor(ctx context.Context, actorID uuid.UUID, objectType domain.ObjectType, objectIDs []string) ([]domain.ModerationAction, error) {
	if len(objectIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, actor_id, object_type, object_id, action_type, reason, report_id, created_at
		FROM moderation_actions
		WHERE actor_id = $1 AND object_type = $2 AND object_id = ANY($3)
		ORDER BY created_at DESC, seq DESC`

	rows, err := r.pool.Query(ctx, query, actorID, string(objectType), objectIDs)
	if err != nil {
		return nil, wrapErr("list moderation actions", err)
	}
	defer rows.Close()

	var actions []domain.ModerationAction
	for rows.Next() {
		var a domain.ModerationAction
		if err := rows.Scan(
			&a.ID, &a.ActorID, &a.ObjectType, &a.ObjectID, &a.ActionType, &a.Reason, &a.ReportID, &a.CreatedAt,
		); err != nil {
			return nil, wrapErr("scan moderation action", err)
		}
		actions = append(actions, a)
	}
	return actions, wrapErr("list moderation actions", rows.Err())
}
