package domain

import (
	"time"

	"github.com/google/uuid"
)

type ActionType string

const (
	ActionHide   ActionType = "hide"
	ActionUnhide ActionType = "unhide"
)

type ObjectType string

const (
	ObjectComment ObjectType = "comment"
	ObjectPost    ObjectType = "post"
	ObjectMessage ObjectType = "message"
)

// ModerationAction is one row of the append-only moderation log. Rows are
// never updated; the current state of an object is derived from the newest
// row for it.
type ModerationAction struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    uuid.UUID  `json:"actor_id"`
	ObjectType ObjectType `json:"object_type"`
	ObjectID   string     `json:"object_id"`
	ActionType ActionType `json:"action_type"`
	Reason     *string    `json:"reason,omitempty"`
	ReportID   *uuid.UUID `json:"report_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CommentNode mirrors the reply hierarchy supplied by the comment subsystem.
type CommentNode struct {
	ID      string         `json:"id"`
	Replies []*CommentNode `json:"replies,omitempty"`
}
