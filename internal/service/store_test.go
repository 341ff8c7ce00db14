package service

import (
	"context"
	"errors"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/domain"
	"github.com/vedran77/pulse-inbox/internal/repository"
)

type key struct {
	conv  uuid.UUID
	actor uuid.UUID
}

// memStore is an in-memory stand-in for the Postgres repositories. Writes are
// keyed by (conversation, actor) like the real unique constraints. failures
// injects errors per operation name.
type memStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]domain.Conversation
	members       map[key]domain.ConversationMember
	entries       map[key]domain.InboxEntry
	reports       []domain.ConversationReport
	actions       []domain.ModerationAction
	failures      map[string]error
	calls         map[string]int

	// afterGetEntry runs once GetEntry has released the lock, letting a test
	// slip another writer in before the caller's next write.
	afterGetEntry func()
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[uuid.UUID]domain.Conversation),
		members:       make(map[key]domain.ConversationMember),
		entries:       make(map[key]domain.InboxEntry),
		failures:      make(map[string]error),
		calls:         make(map[string]int),
	}
}

var errConnReset = &repository.TransportError{Op: "open conversation", Err: io.ErrUnexpectedEOF}

func (s *memStore) addConversation(createdBy uuid.UUID) domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgID := uuid.New()
	at := time.Now()
	c := domain.Conversation{
		ID:             uuid.New(),
		CreatedByActor: createdBy,
		LastMessageID:  &msgID,
		LastMessageAt:  &at,
		CreatedAt:      at,
	}
	s.conversations[c.ID] = c
	return c
}

func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *memStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter records the call and returns the injected error. Callers hold s.mu.
func (s *memStore) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

func (s *memStore) entry(conv, actor uuid.UUID) (domain.InboxEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key{conv, actor}]
	return e, ok
}

func (s *memStore) member(conv, actor uuid.UUID) (domain.ConversationMember, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[key{conv, actor}]
	return m, ok
}

func (s *memStore) setEntry(e domain.InboxEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key{e.ConversationID, e.ActorID}] = e
}

// ConversationRepository

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetByID"); err != nil {
		return nil, err
	}
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memStore) OpenAtomic(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.Conversation, *domain.InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("OpenAtomic"); err != nil {
		return nil, nil, err
	}
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}

	k := key{conversationID, actorID}
	m, ok := s.members[k]
	if !ok {
		m = domain.ConversationMember{ConversationID: c.ID, ActorID: actorID, Role: c.RoleFor(actorID), JoinedAt: time.Now()}
	}
	m.IsActive = true
	s.members[k] = m

	e := s.upsertVisibleLocked(c, actorID)
	return &c, &e, nil
}

// MemberRepository

func (s *memStore) GetMember(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetMember"); err != nil {
		return nil, err
	}
	m, ok := s.members[key{conversationID, actorID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *memStore) InsertMember(ctx context.Context, member *domain.ConversationMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("InsertMember"); err != nil {
		return err
	}
	k := key{member.ConversationID, member.ActorID}
	if _, ok := s.members[k]; ok {
		return nil
	}
	s.members[k] = *member
	return nil
}

func (s *memStore) SetMemberActive(ctx context.Context, conversationID, actorID uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetMemberActive"); err != nil {
		return err
	}
	k := key{conversationID, actorID}
	m, ok := s.members[k]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsActive = active
	s.members[k] = m
	return nil
}

// InboxRepository

func (s *memStore) GetEntry(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error) {
	s.mu.Lock()
	if err := s.enter("GetEntry"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	e, ok := s.entries[key{conversationID, actorID}]
	hook := s.afterGetEntry
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *memStore) ListByActor(ctx context.Context, actorID uuid.UUID) ([]domain.InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListByActor"); err != nil {
		return nil, err
	}
	var out []domain.InboxEntry
	for k, e := range s.entries {
		if k.actor == actorID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *memStore) UpsertVisible(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertVisible"); err != nil {
		return nil, err
	}
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e := s.upsertVisibleLocked(c, actorID)
	return &e, nil
}

func (s *memStore) upsertVisibleLocked(c domain.Conversation, actorID uuid.UUID) domain.InboxEntry {
	k := key{c.ID, actorID}
	e, ok := s.entries[k]
	if !ok {
		e = domain.InboxEntry{
			ConversationID: c.ID,
			ActorID:        actorID,
			LastMessageID:  c.LastMessageID,
			LastMessageAt:  c.LastMessageAt,
		}
	}
	e.Folder = domain.FolderInbox
	e.Archived = false
	e.ArchivedUntilNew = false
	e.UpdatedAt = time.Now()
	s.entries[k] = e
	return e
}

func (s *memStore) Update(ctx context.Context, conversationID, actorID uuid.UUID, p repository.EntryPatch) (*domain.InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Update"); err != nil {
		return nil, err
	}
	k := key{conversationID, actorID}
	e, ok := s.entries[k]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if len(p.From) > 0 && !slices.Contains(p.From, e.State()) {
		return nil, repository.ErrStateChanged
	}
	if p.Folder != nil {
		e.Folder = *p.Folder
	}
	if p.Archived != nil {
		e.Archived = *p.Archived
	}
	if p.ArchivedUntilNew != nil {
		e.ArchivedUntilNew = *p.ArchivedUntilNew
	}
	if p.Pinned != nil {
		e.Pinned = *p.Pinned
	}
	if p.Muted != nil {
		e.Muted = *p.Muted
	}
	e.UpdatedAt = time.Now()
	s.entries[k] = e
	return &e, nil
}

func (s *memStore) MarkRead(ctx context.Context, conversationID, actorID uuid.UUID, lastMessageID *uuid.UUID) (*domain.InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkRead"); err != nil {
		return nil, err
	}
	k := key{conversationID, actorID}
	e, ok := s.entries[k]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if e.UnreadCount > 0 && !e.Archived {
		e.ArchivedUntilNew = false
	}
	e.UnreadCount = 0
	now := time.Now()
	e.LastReadAt = &now
	if lastMessageID != nil && (e.LastReadMessageID == nil || (e.LastMessageID != nil && *lastMessageID == *e.LastMessageID)) {
		id := *lastMessageID
		e.LastReadMessageID = &id
	}
	s.entries[k] = e
	return &e, nil
}

func (s *memStore) Leave(ctx context.Context, conversationID, actorID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Leave"); err != nil {
		return err
	}
	k := key{conversationID, actorID}
	if m, ok := s.members[k]; ok {
		m.IsActive = false
		s.members[k] = m
	}
	if _, ok := s.entries[k]; !ok {
		return repository.ErrNotFound
	}
	delete(s.entries, k)
	return nil
}

func (s *memStore) SumUnread(ctx context.Context, actorID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SumUnread"); err != nil {
		return 0, err
	}
	total := 0
	for k, e := range s.entries {
		if k.actor == actorID {
			total += e.UnreadCount
		}
	}
	return total, nil
}

// ReportRepository

func (s *memStore) Create(ctx context.Context, report *domain.ConversationReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Create"); err != nil {
		return err
	}
	s.reports = append(s.reports, *report)
	return nil
}

// ModerationRepository

func (s *memStore) Append(ctx context.Context, action *domain.ModerationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Append"); err != nil {
		return err
	}
	s.actions = append(s.actions, *action)
	return nil
}

func (s *memStore) ListForActor(ctx context.Context, actorID uuid.UUID, objectType domain.ObjectType, objectIDs []string) ([]domain.ModerationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListForActor"); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(objectIDs))
	for _, id := range objectIDs {
		want[id] = true
	}
	var out []domain.ModerationAction
	for i := len(s.actions) - 1; i >= 0; i-- {
		a := s.actions[i]
		if a.ActorID == actorID && a.ObjectType == objectType && want[a.ObjectID] {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *recordingNotifier) InboxChanged(ctx context.Context, actorID, conversationID uuid.UUID, op string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, op)
	return n.err
}

type recordingInvalidator struct {
	mu     sync.Mutex
	actors []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(actorID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors = append(r.actors, actorID)
}

var errBoom = errors.New("constraint violated")
