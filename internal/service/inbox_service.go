package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/domain"
	"github.com/vedran77/pulse-inbox/internal/repository"
	"github.com/vedran77/pulse-inbox/pkg/validator"
)

// Change operations reported to a ChangeNotifier.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ChangeNotifier publishes inbox entry changes to the realtime feed. Stores
// that emit changes themselves (Postgres triggers) need no notifier.
type ChangeNotifier interface {
	InboxChanged(ctx context.Context, actorID, conversationID uuid.UUID, op string) error
}

// maxTransitionAttempts bounds how often a transition is re-decided after
// losing a race to another writer.
const maxTransitionAttempts = 3

// UnreadInvalidator drops an actor's cached unread count.
type UnreadInvalidator interface {
	Invalidate(actorID uuid.UUID)
}

// InboxService owns the state transitions of an actor's inbox entries. It
// never creates entries; that is the opener's job.
type InboxService struct {
	inboxRepo   repository.InboxRepository
	reportRepo  repository.ReportRepository
	notifier    ChangeNotifier
	invalidator UnreadInvalidator
	logger      *log.Logger
	now         func() time.Time
}

func NewInboxService(
	inboxRepo repository.InboxRepository,
	reportRepo repository.ReportRepository,
) *InboxService {
	return &InboxService{
		inboxRepo:  inboxRepo,
		reportRepo: reportRepo,
		logger:     log.Default(),
		now:        time.Now,
	}
}

// SetNotifier sets the realtime publisher (optional dependency).
func (s *InboxService) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

// SetInvalidator sets the unread cache to invalidate on count changes.
func (s *InboxService) SetInvalidator(i UnreadInvalidator) {
	s.invalidator = i
}

func (s *InboxService) SetLogger(l *log.Logger) {
	s.logger = l
}

// ListFolder returns the actor's entries visible in one folder view, pinned
// first, then by latest activity. Inbox and archived views only consider
// entries stored in the inbox folder, so spam and requests never leak into
// them.
func (s *InboxService) ListFolder(ctx context.Context, actorID uuid.UUID, folder domain.Folder) ([]domain.InboxEntry, error) {
	entries, err := s.inboxRepo.ListByActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	visible := []domain.InboxEntry{}
	for _, e := range entries {
		if folder != domain.FolderSpam && e.Folder != domain.FolderInbox {
			continue
		}
		if domain.Classify(e).In(folder) {
			visible = append(visible, e)
		}
	}
	return visible, nil
}

// Archive moves an Inbox or HiddenUntilNew entry to Archived.
func (s *InboxService) Archive(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error) {
	return s.transition(ctx, conversationID, actorID, domain.StateArchived,
		[]domain.InboxState{domain.StateInbox, domain.StateHiddenUntilNew},
		repository.EntryPatch{
			Archived:         ptr(true),
			ArchivedUntilNew: ptr(false),
		})
}

// Unarchive moves an Archived entry back to the Inbox.
func (s *InboxService) Unarchive(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error) {
	return s.transition(ctx, conversationID, actorID, domain.StateInbox,
		[]domain.InboxState{domain.StateArchived},
		repository.EntryPatch{
			Archived:         ptr(false),
			ArchivedUntilNew: ptr(false),
		})
}

// HideUntilNew hides an Inbox entry until a new unread message arrives.
func (s *InboxService) HideUntilNew(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error) {
	return s.transition(ctx, conversationID, actorID, domain.StateHiddenUntilNew,
		[]domain.InboxState{domain.StateInbox},
		repository.EntryPatch{
			ArchivedUntilNew: ptr(true),
		})
}

// transition writes patch only while the entry is still in the state it was
// read in. An entry already in target is returned unchanged. When another
// writer moves the entry first, the transition is decided again against the
// new state.
func (s *InboxService) transition(
	ctx context.Context,
	conversationID, actorID uuid.UUID,
	target domain.InboxState,
	from []domain.InboxState,
	patch repository.EntryPatch,
) (*domain.InboxEntry, error) {
	for range maxTransitionAttempts {
		e, err := s.getEntry(ctx, conversationID, actorID)
		if err != nil {
			return nil, err
		}

		state := e.State()
		if state == target {
			return e, nil
		}
		if !slices.Contains(from, state) {
			return nil, ErrInvalidTransition
		}

		patch.From = []domain.InboxState{state}
		e, err = s.update(ctx, conversationID, actorID, patch)
		if errors.Is(err, repository.ErrStateChanged) {
			continue
		}
		return e, err
	}
	return nil, ErrInvalidTransition
}

// MarkSpam moves the entry to the spam folder from any state and records a
// report so the action can be audited.
func (s *InboxService) MarkSpam(ctx context.Context, conversationID, actorID uuid.UUID, reason string) (*domain.InboxEntry, error) {
	if errs := validator.ValidateSpamReason(reason); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, errs.Error())
	}

	if _, err := s.getEntry(ctx, conversationID, actorID); err != nil {
		return nil, err
	}

	report := &domain.ConversationReport{
		ID:             uuid.New(),
		ConversationID: conversationID,
		ReporterID:     actorID,
		Reason:         reason,
		CreatedAt:      s.now(),
	}
	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("recording spam report: %w", err)
	}

	spam := domain.FolderSpam
	return s.update(ctx, conversationID, actorID, repository.EntryPatch{
		Folder:           &spam,
		Archived:         ptr(false),
		ArchivedUntilNew: ptr(false),
	})
}

// MarkRead zeroes the entry's unread count. Repeating it, or passing an older
// message id, leaves the count at zero.
func (s *InboxService) MarkRead(ctx context.Context, conversationID, actorID uuid.UUID, lastMessageID *uuid.UUID) (*domain.InboxEntry, error) {
	e, err := s.inboxRepo.MarkRead(ctx, conversationID, actorID, lastMessageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInboxEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("marking read: %w", err)
	}

	s.changed(ctx, actorID, conversationID, OpUpdate)
	s.invalidate(actorID)
	return e, nil
}

// DeleteForMe removes the actor's entry and deactivates their membership in
// one write. Other participants keep theirs. Opening the conversation again
// restores both.
func (s *InboxService) DeleteForMe(ctx context.Context, conversationID, actorID uuid.UUID) error {
	err := s.inboxRepo.Leave(ctx, conversationID, actorID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInboxEntryNotFound
	}
	if err != nil {
		return fmt.Errorf("leaving conversation: %w", err)
	}

	s.changed(ctx, actorID, conversationID, OpDelete)
	s.invalidate(actorID)
	return nil
}

type SettingsInput struct {
	Pinned *bool `json:"pinned"`
	Muted  *bool `json:"muted"`
}

// UpdateSettings changes pinned/muted on an existing entry.
func (s *InboxService) UpdateSettings(ctx context.Context, conversationID, actorID uuid.UUID, input SettingsInput) (*domain.InboxEntry, error) {
	if input.Pinned == nil && input.Muted == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	return s.update(ctx, conversationID, actorID, repository.EntryPatch{
		Pinned: input.Pinned,
		Muted:  input.Muted,
	})
}

func (s *InboxService) getEntry(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error) {
	e, err := s.inboxRepo.GetEntry(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrInboxEntryNotFound
	}
	return e, nil
}

func (s *InboxService) update(ctx context.Context, conversationID, actorID uuid.UUID, patch repository.EntryPatch) (*domain.InboxEntry, error) {
	e, err := s.inboxRepo.Update(ctx, conversationID, actorID, patch)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInboxEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating inbox entry: %w", err)
	}

	s.changed(ctx, actorID, conversationID, OpUpdate)
	return e, nil
}

// changed is best effort: the write already happened and the poll loop
// catches anything a lost notification misses.
func (s *InboxService) changed(ctx context.Context, actorID, conversationID uuid.UUID, op string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.InboxChanged(ctx, actorID, conversationID, op); err != nil {
		s.logger.Warn("inbox: publishing change failed", "actor", actorID, "conversation", conversationID, "err", err)
	}
}

func (s *InboxService) invalidate(actorID uuid.UUID) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(actorID)
	}
}

func ptr[T any](v T) *T {
	return &v
}
