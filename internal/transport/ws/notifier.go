package ws

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/service"
)

// HubNotifier implements service.ChangeNotifier: it tells the actor's open
// sockets on this instance which conversation changed, then hands the change
// to next (the cross-instance publisher) when there is one.
type HubNotifier struct {
	hub  *Hub
	next service.ChangeNotifier
}

func NewHubNotifier(hub *Hub, next service.ChangeNotifier) *HubNotifier {
	return &HubNotifier{hub: hub, next: next}
}

func (n *HubNotifier) InboxChanged(ctx context.Context, actorID, conversationID uuid.UUID, op string) error {
	evt, err := NewEvent(EventTypeInboxChanged, InboxChangedPayload{ConversationID: conversationID, Op: op})
	if err != nil {
		return err
	}
	n.hub.SendToActor(actorID, evt)

	if n.next == nil {
		return nil
	}
	return n.next.InboxChanged(ctx, actorID, conversationID, op)
}
