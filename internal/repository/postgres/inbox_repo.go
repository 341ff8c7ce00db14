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

type InboxRepo struct {
	pool *pgxpool.Pool
}

func NewInboxRepo(pool *pgxpool.Pool) *InboxRepo {
	return &InboxRepo{pool: pool}
}

const entryColumns = `conversation_id, actor_id, folder, archived, archived_until_new, pinned, muted,
	unread_count, last_message_id, last_message_at, last_read_at, last_read_message_id, updated_at,
	partner_name, partner_photo_url`

func scanEntry(row pgx.Row) (*domain.InboxEntry, error) {
	var e domain.InboxEntry
	err := row.Scan(
		&e.ConversationID, &e.ActorID, &e.Folder, &e.Archived, &e.ArchivedUntilNew, &e.Pinned, &e.Muted,
		&e.UnreadCount, &e.LastMessageID, &e.LastMessageAt, &e.LastReadAt, &e.LastReadMessageID, &e.UpdatedAt,
		&e.PartnerName, &e.PartnerPhotoURL,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *InboxRepo) GetEntry(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM inbox_entries WHERE conversation_id = $1 AND actor_id = $2`
	e, err := scanEntry(r.pool.QueryRow(ctx, query, conversationID, actorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get inbox entry", err)
	}
	return e, nil
}

func (r *InboxRepo) ListByActor(ctx context.Context, actorID uuid.UUID) ([]domain.InboxEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM inbox_entries
		WHERE actor_id = $1
		ORDER BY pinned DESC, last_message_at DESC NULLS LAST, conversation_id`

	rows, err := r.pool.Query(ctx, query, actorID)
	if err != nil {
		return nil, wrapErr("list inbox entries", err)
	}
	defer rows.Close()

	var entries []domain.InboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, wrapErr("scan inbox entry", err)
		}
		entries = append(entries, *e)
	}
	return entries, wrapErr("list inbox entries", rows.Err())
}

// UpsertVisible relies on the (conversation_id, actor_id) primary key. A new
// row copies the conversation's last message pointer; an existing row keeps its
// unread count and pointer.
func (r *InboxRepo) UpsertVisible(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error) {
	query := `
		INSERT INTO inbox_entries AS e (conversation_id, actor_id, folder, archived, archived_until_new,
			last_message_id, last_message_at, updated_at)
		SELECT c.id, $2, 'inbox', false, false, c.last_message_id, c.last_message_at, now()
		FROM conversations c
		WHERE c.id = $1
		ON CONFLICT (conversation_id, actor_id) DO UPDATE
		SET folder = 'inbox', archived = false, archived_until_new = false, updated_at = now()
		RETURNING ` + entryColumns

	e, err := scanEntry(r.pool.QueryRow(ctx, query, conversationID, actorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("upsert inbox entry", err)
	}
	return e, nil
}

// entryState mirrors domain.InboxEntry.State.
const entryState = `CASE
	WHEN folder = 'spam' THEN 'spam'
	WHEN archived THEN 'archived'
	WHEN archived_until_new THEN 'hidden_until_new'
	ELSE 'inbox' END`

// Update applies the patch in a single statement. With p.From set, the state
// check happens in the WHERE clause so a concurrent transition cannot slip in
// between the caller's read and this write.
func (r *InboxRepo) Update(ctx context.Context, conversationID, actorID uuid.UUID, p repository.EntryPatch) (*domain.InboxEntry, error) {
	var folder *string
	if p.Folder != nil {
		f := string(*p.Folder)
		folder = &f
	}
	var from []string
	for _, st := range p.From {
		from = append(from, string(st))
	}

	query := `
		UPDATE inbox_entries SET
			folder = COALESCE($3::text, folder),
			archived = COALESCE($4::boolean, archived),
			archived_until_new = COALESCE($5::boolean, archived_until_new),
			pinned = COALESCE($6::boolean, pinned),
			muted = COALESCE($7::boolean, muted),
			updated_at = now()
		WHERE conversation_id = $1 AND actor_id = $2
			AND ($8::text[] IS NULL OR (` + entryState + `) = ANY($8::text[]))
		RETURNING ` + entryColumns

	e, err := scanEntry(r.pool.QueryRow(ctx, query, conversationID, actorID,
		folder, p.Archived, p.ArchivedUntilNew, p.Pinned, p.Muted, from))
	if errors.Is(err, pgx.ErrNoRows) {
		if len(from) == 0 {
			return nil, repository.ErrNotFound
		}
		return nil, r.missOrConflict(ctx, conversationID, actorID)
	}
	if err != nil {
		return nil, wrapErr("update inbox entry", err)
	}
	return e, nil
}

func (r *InboxRepo) missOrConflict(ctx context.Context, conversationID, actorID uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inbox_entries WHERE conversation_id = $1 AND actor_id = $2)`,
		conversationID, actorID).Scan(&exists)
	if err != nil {
		return wrapErr("check inbox entry", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrStateChanged
}

// MarkRead zeroes the unread counter. last_read_at only moves forward, and the
// read pointer is only replaced by the current last message or when unset, so
// a stale pointer from another device cannot roll it back. A resurfaced
// hide-until-new entry becomes a plain inbox entry once read.
func (r *InboxRepo) MarkRead(ctx context.Context, conversationID, actorID uuid.UUID, lastMessageID *uuid.UUID) (*domain.InboxEntry, error) {
	query := `
		UPDATE inbox_entries SET
			archived_until_new = CASE
				WHEN unread_count > 0 AND NOT archived THEN false
				ELSE archived_until_new END,
			unread_count = 0,
			last_read_at = GREATEST(last_read_at, now()),
			last_read_message_id = CASE
				WHEN $3::uuid IS NOT NULL AND (last_read_message_id IS NULL OR $3::uuid = last_message_id) THEN $3::uuid
				ELSE last_read_message_id END,
			updated_at = now()
		WHERE conversation_id = $1 AND actor_id = $2
		RETURNING ` + entryColumns

	e, err := scanEntry(r.pool.QueryRow(ctx, query, conversationID, actorID, lastMessageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("mark read", err)
	}
	return e, nil
}

// Leave uses data-modifying CTEs so the delete and the deactivation commit
// together. The member update does not depend on the delete, so a retry after
// an earlier partial cleanup still converges.
func (r *InboxRepo) Leave(ctx context.Context, conversationID, actorID uuid.UUID) error {
	query := `
		WITH deleted AS (
			DELETE FROM inbox_entries
			WHERE conversation_id = $1 AND actor_id = $2
			RETURNING 1
		), deactivated AS (
			UPDATE conversation_members SET is_active = false
			WHERE conversation_id = $1 AND actor_id = $2
			RETURNING 1
		)
		SELECT (SELECT count(*) FROM deleted), (SELECT count(*) FROM deactivated)`

	var deleted, deactivated int
	err := r.pool.QueryRow(ctx, query, conversationID, actorID).Scan(&deleted, &deactivated)
	if err != nil {
		return wrapErr("leave conversation", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *InboxRepo) SumUnread(ctx context.Context, actorID uuid.UUID) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(unread_count), 0)::int FROM inbox_entries WHERE actor_id = $1`,
		actorID).Scan(&total)
	if err != nil {
		return 0, wrapErr("sum unread", err)
	}
	return total, nil
}
