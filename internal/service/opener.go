package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/domain"
	"github.com/vedran77/pulse-inbox/internal/metrics"
	"github.com/vedran77/pulse-inbox/internal/repository"
)

// ConversationOpener makes a conversation joined and visible in an actor's
// inbox. Open is safe to call any number of times, concurrently, for the same
// pair: both paths only upsert against the (conversation, actor) keys.
type ConversationOpener struct {
	convRepo   repository.ConversationRepository
	memberRepo repository.MemberRepository
	inboxRepo  repository.InboxRepository
	notifier   ChangeNotifier
	metrics    *metrics.Metrics
	logger     *log.Logger
	now        func() time.Time
}

func NewConversationOpener(
	convRepo repository.ConversationRepository,
	memberRepo repository.MemberRepository,
	inboxRepo repository.InboxRepository,
	m *metrics.Metrics,
) *ConversationOpener {
	return &ConversationOpener{
		convRepo:   convRepo,
		memberRepo: memberRepo,
		inboxRepo:  inboxRepo,
		metrics:    m,
		logger:     log.Default(),
		now:        time.Now,
	}
}

func (o *ConversationOpener) SetLogger(l *log.Logger) {
	o.logger = l
}

// SetNotifier sets the realtime publisher told about every successful open.
func (o *ConversationOpener) SetNotifier(n ChangeNotifier) {
	o.notifier = n
}

// Open runs the atomic store call first. Only a transport failure sends it to
// the step-by-step fallback, and only once; business errors surface as is.
func (o *ConversationOpener) Open(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.ConversationSummary, error) {
	conv, entry, err := o.convRepo.OpenAtomic(ctx, conversationID, actorID)
	if err == nil {
		o.metrics.Open(string(domain.OpenPathPrimary))
		o.changed(ctx, actorID, conversationID)
		return &domain.ConversationSummary{Conversation: *conv, Entry: *entry, Path: domain.OpenPathPrimary}, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if !repository.IsTransport(err) {
		o.metrics.OpenFailed(string(domain.OpenPathPrimary))
		return nil, fmt.Errorf("opening conversation: %w", err)
	}

	o.logger.Warn("open: atomic path unavailable, falling back",
		"conversation", conversationID, "actor", actorID, "err", err)

	summary, err := o.openFallback(ctx, conversationID, actorID)
	if err != nil {
		o.metrics.OpenFailed(string(domain.OpenPathFallback))
		return nil, err
	}
	o.metrics.Open(string(domain.OpenPathFallback))
	o.changed(ctx, actorID, conversationID)
	return summary, nil
}

// changed is best effort; the open already committed.
func (o *ConversationOpener) changed(ctx context.Context, actorID, conversationID uuid.UUID) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.InboxChanged(ctx, actorID, conversationID, OpUpdate); err != nil {
		o.logger.Warn("open: publishing change failed", "actor", actorID, "conversation", conversationID, "err", err)
	}
}

// openFallback reproduces the atomic call as separate idempotent writes. A run
// that stops halfway is finished by the next Open.
func (o *ConversationOpener) openFallback(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.ConversationSummary, error) {
	conv, err := o.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("fallback: reading conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	if err := o.ensureMember(ctx, conv, actorID); err != nil {
		return nil, fmt.Errorf("fallback: ensuring membership: %w", err)
	}

	entry, err := o.inboxRepo.UpsertVisible(ctx, conversationID, actorID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fallback: upserting inbox entry: %w", err)
	}

	// Re-read so the summary carries the latest message pointer, as the atomic
	// call does.
	latest, err := o.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("fallback: reading conversation: %w", err)
	}
	if latest == nil {
		return nil, ErrConversationNotFound
	}

	return &domain.ConversationSummary{Conversation: *latest, Entry: *entry, Path: domain.OpenPathFallback}, nil
}

func (o *ConversationOpener) ensureMember(ctx context.Context, conv *domain.Conversation, actorID uuid.UUID) error {
	member, err := o.memberRepo.GetMember(ctx, conv.ID, actorID)
	if err != nil {
		return err
	}
	if member != nil && member.IsActive {
		return nil
	}

	if member == nil {
		err := o.memberRepo.InsertMember(ctx, &domain.ConversationMember{
			ConversationID: conv.ID,
			ActorID:        actorID,
			Role:           conv.RoleFor(actorID),
			IsActive:       true,
			JoinedAt:       o.now(),
		})
		if err != nil {
			return err
		}
	}

	// A conflicting insert means another writer created the row, possibly
	// inactive, so reactivate either way.
	return o.memberRepo.SetMemberActive(ctx, conv.ID, actorID, true)
}
