package domain

import (
	"time"

	"github.com/google/uuid"
)

type Folder string

const (
	FolderInbox    Folder = "inbox"
	FolderSpam     Folder = "spam"
	FolderRequests Folder = "requests"
	// FolderArchived is a view derived from InboxEntry.Archived, never stored.
	FolderArchived Folder = "archived"
)

// InboxState is the state-machine position of an entry, derived from its flags.
type InboxState string

const (
	StateInbox          InboxState = "inbox"
	StateHiddenUntilNew InboxState = "hidden_until_new"
	StateArchived       InboxState = "archived"
	StateSpam           InboxState = "spam"
)

// InboxEntry is the per-actor visibility record for one conversation.
type InboxEntry struct {
	ConversationID    uuid.UUID  `json:"conversation_id"`
	ActorID           uuid.UUID  `json:"actor_id"`
	Folder            Folder     `json:"folder"`
	Archived          bool       `json:"archived"`
	ArchivedUntilNew  bool       `json:"archived_until_new"`
	Pinned            bool       `json:"pinned"`
	Muted             bool       `json:"muted"`
	UnreadCount       int        `json:"unread_count"`
	LastMessageID     *uuid.UUID `json:"last_message_id,omitempty"`
	LastMessageAt     *time.Time `json:"last_message_at,omitempty"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty"`
	LastReadMessageID *uuid.UUID `json:"last_read_message_id,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
	// Read-only projections maintained elsewhere
	PartnerName     *string `json:"partner_name,omitempty"`
	PartnerPhotoURL *string `json:"partner_photo_url,omitempty"`
}

// State maps the stored flags onto the four transition states. Spam wins over
// archived so a spam entry never shows up as archivable.
func (e *InboxEntry) State() InboxState {
	switch {
	case e.Folder == FolderSpam:
		return StateSpam
	case e.Archived:
		return StateArchived
	case e.ArchivedUntilNew:
		return StateHiddenUntilNew
	default:
		return StateInbox
	}
}

// Resurfaced reports whether a hidden-until-new entry is back in the inbox
// because a new unread message arrived.
func (e *InboxEntry) Resurfaced() bool {
	return !e.Archived && e.ArchivedUntilNew && e.UnreadCount > 0
}

// FolderVisibility answers each folder question independently.
type FolderVisibility struct {
	InboxVisible    bool `json:"inbox"`
	ArchivedVisible bool `json:"archived"`
	SpamVisible     bool `json:"spam"`
}

// Classify decides which folder views an entry belongs to. It does not enforce
// mutual exclusivity, so a single view renders correctly even when the flags
// disagree.
func Classify(e InboxEntry) FolderVisibility {
	return FolderVisibility{
		InboxVisible:    !e.Archived && (!e.ArchivedUntilNew || e.UnreadCount > 0),
		ArchivedVisible: e.Archived,
		SpamVisible:     e.Folder == FolderSpam,
	}
}

// In reports visibility for a single folder view. Unknown folders are never
// visible.
func (v FolderVisibility) In(f Folder) bool {
	switch f {
	case FolderInbox:
		return v.InboxVisible
	case FolderArchived:
		return v.ArchivedVisible
	case FolderSpam:
		return v.SpamVisible
	default:
		return false
	}
}

// ParseFolderView validates a folder view name coming from a caller.
func ParseFolderView(s string) (Folder, bool) {
	switch Folder(s) {
	case FolderInbox, FolderArchived, FolderSpam:
		return Folder(s), true
	case "":
		return FolderInbox, true
	default:
		return "", false
	}
}
