package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/transport/http/middleware"
	"github.com/vedran77/pulse-inbox/internal/unread"
)

type UnreadCounter interface {
	Get(ctx context.Context, actorID uuid.UUID, opts unread.GetOptions) int
	Status(actorID uuid.UUID) unread.Status
}

type UnreadHandler struct {
	counter UnreadCounter
}

func NewUnreadHandler(counter UnreadCounter) *UnreadHandler {
	return &UnreadHandler{counter: counter}
}

// Get always answers 200; a failed refresh is reported in the body, never as
// an error status.
func (h *UnreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	count := h.counter.Get(r.Context(), actorID, unread.GetOptions{Force: force})

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  count,
		"failed": h.counter.Status(actorID).Failed,
	})
}
