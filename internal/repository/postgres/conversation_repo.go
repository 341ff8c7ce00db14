package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulse-inbox/internal/domain"
)

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

const conversationColumns = `id, is_group, is_stealth, created_by_actor_id, title, avatar_url,
	last_message_id, last_message_at, realm_id, created_at`

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	var c domain.Conversation
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.IsGroup, &c.IsStealth, &c.CreatedByActor, &c.Title, &c.AvatarURL,
		&c.LastMessageID, &c.LastMessageAt, &c.RealmID, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get conversation", err)
	}
	return &c, nil
}

// OpenAtomic calls the open_conversation function, which performs the member
// upsert, the inbox upsert and the read inside one transaction. A missing
// conversation is raised as no_data_found and surfaces as
// repository.ErrNotFound.
func (r *ConversationRepo) OpenAtomic(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.Conversation, *domain.InboxEntry, error) {
	query := `
		SELECT conv_id, conv_is_group, conv_is_stealth, conv_created_by, conv_title, conv_avatar_url,
			conv_last_message_id, conv_last_message_at, conv_realm_id, conv_created_at,
			entry_folder, entry_archived, entry_archived_until_new, entry_pinned, entry_muted,
			entry_unread_count, entry_last_message_id, entry_last_message_at, entry_last_read_at,
			entry_updated_at, entry_partner_name, entry_partner_photo_url
		FROM open_conversation($1, $2)`

	var c domain.Conversation
	var e domain.InboxEntry
	err := r.pool.QueryRow(ctx, query, conversationID, actorID).Scan(
		&c.ID, &c.IsGroup, &c.IsStealth, &c.CreatedByActor, &c.Title, &c.AvatarURL,
		&c.LastMessageID, &c.LastMessageAt, &c.RealmID, &c.CreatedAt,
		&e.Folder, &e.Archived, &e.ArchivedUntilNew, &e.Pinned, &e.Muted,
		&e.UnreadCount, &e.LastMessageID, &e.LastMessageAt, &e.LastReadAt,
		&e.UpdatedAt, &e.PartnerName, &e.PartnerPhotoURL,
	)
	if err != nil {
		return nil, nil, wrapErr("open conversation", err)
	}
	e.ConversationID = c.ID
	e.ActorID = actorID
	return &c, &e, nil
}
