// Package realtime delivers per-actor inbox change notifications and the
// process-wide refresh signal.
package realtime

import (
	"context"

	"github.com/google/uuid"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	// OpResync is emitted after a feed reconnects, since notifications sent
	// while it was down are gone.
	OpResync = "resync"
)

// Change is a notification that one of an actor's inbox entries changed.
type Change struct {
	Op             string    `json:"op"`
	ActorID        uuid.UUID `json:"actor_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

// Feed delivers changes for one actor. The returned channel is closed once ctx
// is done; nothing is delivered after that.
type Feed interface {
	Subscribe(ctx context.Context, actorID uuid.UUID) (<-chan Change, error)
}

const subscriberBuffer = 8
