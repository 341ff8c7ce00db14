package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/domain"
)

var (
	// ErrNotFound is returned by mutations that matched no row.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable marks transport-level failures: the store could not be
	// reached or the connection broke mid-request.
	ErrUnavailable = errors.New("store unavailable")
	// ErrStateChanged is returned by a guarded update when the row exists but
	// is no longer in one of the expected states.
	ErrStateChanged = errors.New("record state changed")
)

// TransportError wraps a driver error that never reached a business rule.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + ErrUnavailable.Error() + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrUnavailable }

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Get* methods return (nil, nil) when the row does not exist.

type ConversationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	// OpenAtomic applies membership, inbox visibility and the conversation read
	// in one server-side transaction.
	OpenAtomic(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.Conversation, *domain.InboxEntry, error)
}

type MemberRepository interface {
	GetMember(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.ConversationMember, error)
	// InsertMember returns nil when the row already exists.
	InsertMember(ctx context.Context, member *domain.ConversationMember) error
	SetMemberActive(ctx context.Context, conversationID, actorID uuid.UUID, active bool) error
}

// EntryPatch lists the InboxEntry fields a transition may change. Nil fields
// are left untouched. A non-empty From makes the write conditional on the
// entry still being in one of those states.
type EntryPatch struct {
	From             []domain.InboxState
	Folder           *domain.Folder
	Archived         *bool
	ArchivedUntilNew *bool
	Pinned           *bool
	Muted            *bool
}

type InboxRepository interface {
	GetEntry(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error)
	ListByActor(ctx context.Context, actorID uuid.UUID) ([]domain.InboxEntry, error)
	// UpsertVisible makes the entry visible in the inbox, creating it if
	// needed, without touching unread state.
	UpsertVisible(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error)
	Update(ctx context.Context, conversationID, actorID uuid.UUID, patch EntryPatch) (*domain.InboxEntry, error)
	MarkRead(ctx context.Context, conversationID, actorID uuid.UUID, lastMessageID *uuid.UUID) (*domain.InboxEntry, error)
	// Leave deletes the entry and deactivates the membership in one atomic
	// write. It returns ErrNotFound when there was no entry; the membership is
	// deactivated regardless.
	Leave(ctx context.Context, conversationID, actorID uuid.UUID) error
	SumUnread(ctx context.Context, actorID uuid.UUID) (int, error)
}

type ReportRepository interface {
	Create(ctx context.Context, report *domain.ConversationReport) error
}

type ModerationRepository interface {
	Append(ctx context.Context, action *domain.ModerationAction) error
	// ListForActor returns actions newest-first.
	ListForActor(ctx context.Context, actorID uuid.UUID, objectType domain.ObjectType, objectIDs []string) ([]domain.ModerationAction, error)
}
