package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulse-inbox/internal/domain"
	"github.com/vedran77/pulse-inbox/internal/repository"
)

type MemberRepo struct {
	pool *pgxpool.Pool
}

func NewMemberRepo(pool *pgxpool.Pool) *MemberRepo {
	return &MemberRepo{pool: pool}
}

func (r *MemberRepo) GetMember(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.ConversationMember, error) {
	query := `
		SELECT conversation_id, actor_id, role, is_active, joined_at
		FROM conversation_members
		WHERE conversation_id = $1 AND actor_id = $2`
	var m domain.ConversationMember
	err := r.pool.QueryRow(ctx, query, conversationID, actorID).Scan(
		&m.ConversationID, &m.ActorID, &m.Role, &m.IsActive, &m.JoinedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get member", err)
	}
	return &m, nil
}

// InsertMember treats a unique violation as success: a concurrent writer got
// there first and the row exists.
func (r *MemberRepo) InsertMember(ctx context.Context, m *domain.ConversationMember) error {
	query := `
		INSERT INTO conversation_members (conversation_id, actor_id, role, is_active, joined_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, m.ConversationID, m.ActorID, m.Role, m.IsActive, m.JoinedAt)
	if isUniqueViolation(err) {
		return nil
	}
	return wrapErr("insert member", err)
}

func (r *MemberRepo) SetMemberActive(ctx context.Context, conversationID, actorID uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversation_members SET is_active = $3 WHERE conversation_id = $1 AND actor_id = $2`,
		conversationID, actorID, active)
	if err != nil {
		return wrapErr("set member active", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
