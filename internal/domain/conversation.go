package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleMember Role = "member"
	RoleOwner  Role = "owner"
)

// Conversation is read here but owned by the messaging subsystem.
// LastMessageID/LastMessageAt are maintained by message delivery.
type Conversation struct {
	ID             uuid.UUID  `json:"id"`
	IsGroup        bool       `json:"is_group"`
	IsStealth      bool       `json:"is_stealth"`
	CreatedByActor uuid.UUID  `json:"created_by_actor_id"`
	Title          *string    `json:"title,omitempty"`
	AvatarURL      *string    `json:"avatar_url,omitempty"`
	LastMessageID  *uuid.UUID `json:"last_message_id,omitempty"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	RealmID        *uuid.UUID `json:"realm_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RoleFor returns the role an actor joins the conversation with.
func (c *Conversation) RoleFor(actorID uuid.UUID) Role {
	if c.CreatedByActor == actorID {
		return RoleOwner
	}
	return RoleMember
}

type ConversationMember struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	ActorID        uuid.UUID `json:"actor_id"`
	Role           Role      `json:"role"`
	IsActive       bool      `json:"is_active"`
	JoinedAt       time.Time `json:"joined_at"`
}

// OpenPath records which protocol branch produced a ConversationSummary.
type OpenPath string

const (
	OpenPathPrimary  OpenPath = "primary"
	OpenPathFallback OpenPath = "fallback"
)

// ConversationSummary is what a caller gets back from opening a conversation.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	Entry        InboxEntry   `json:"entry"`
	Path         OpenPath     `json:"-"`
}

// ConversationReport is the audit row appended when an actor marks a
// conversation as spam.
type ConversationReport struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ReporterID     uuid.UUID `json:"reporter_actor_id"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}
