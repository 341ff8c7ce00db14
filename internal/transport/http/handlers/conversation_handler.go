package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/domain"
	"github.com/vedran77/pulse-inbox/internal/service"
	"github.com/vedran77/pulse-inbox/internal/transport/http/middleware"
	"github.com/vedran77/pulse-inbox/pkg/validator"
)

type Opener interface {
	Open(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.ConversationSummary, error)
}

type Inbox interface {
	ListFolder(ctx context.Context, actorID uuid.UUID, folder domain.Folder) ([]domain.InboxEntry, error)
	Archive(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error)
	Unarchive(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error)
	HideUntilNew(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error)
	MarkSpam(ctx context.Context, conversationID, actorID uuid.UUID, reason string) (*domain.InboxEntry, error)
	MarkRead(ctx context.Context, conversationID, actorID uuid.UUID, lastMessageID *uuid.UUID) (*domain.InboxEntry, error)
	DeleteForMe(ctx context.Context, conversationID, actorID uuid.UUID) error
	UpdateSettings(ctx context.Context, conversationID, actorID uuid.UUID, input service.SettingsInput) (*domain.InboxEntry, error)
}

type ConversationHandler struct {
	opener Opener
	inbox  Inbox
}

func NewConversationHandler(opener Opener, inbox Inbox) *ConversationHandler {
	return &ConversationHandler{opener: opener, inbox: inbox}
}

func (h *ConversationHandler) Open(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	convID, ok := pathConversationID(w, r)
	if !ok {
		return
	}

	summary, err := h.opener.Open(r.Context(), convID, actorID)
	if err != nil {
		writeServiceError(w, "open conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())

	folder, ok := domain.ParseFolderView(r.URL.Query().Get("folder"))
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_FOLDER", "folder must be inbox, archived, or spam")
		return
	}

	entries, err := h.inbox.ListFolder(r.Context(), actorID, folder)
	if err != nil {
		writeServiceError(w, "list inbox", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"folder":  folder,
		"entries": entries,
	})
}

func (h *ConversationHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "archive", h.inbox.Archive)
}

func (h *ConversationHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "unarchive", h.inbox.Unarchive)
}

func (h *ConversationHandler) HideUntilNew(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "hide until new", h.inbox.HideUntilNew)
}

func (h *ConversationHandler) MarkSpam(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	convID, ok := pathConversationID(w, r)
	if !ok {
		return
	}

	var input struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateSpamReason(input.Reason); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	entry, err := h.inbox.MarkSpam(r.Context(), convID, actorID, input.Reason)
	if err != nil {
		writeServiceError(w, "mark spam", err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	convID, ok := pathConversationID(w, r)
	if !ok {
		return
	}

	var input struct {
		LastMessageID *uuid.UUID `json:"last_message_id"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}

	entry, err := h.inbox.MarkRead(r.Context(), convID, actorID, input.LastMessageID)
	if err != nil {
		writeServiceError(w, "mark read", err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (h *ConversationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	convID, ok := pathConversationID(w, r)
	if !ok {
		return
	}

	var input service.SettingsInput
	if !decodeJSON(w, r, &input) {
		return
	}

	entry, err := h.inbox.UpdateSettings(r.Context(), convID, actorID, input)
	if err != nil {
		writeServiceError(w, "update settings", err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (h *ConversationHandler) DeleteForMe(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	convID, ok := pathConversationID(w, r)
	if !ok {
		return
	}

	if err := h.inbox.DeleteForMe(r.Context(), convID, actorID); err != nil {
		writeServiceError(w, "delete for me", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type transitionFunc func(ctx context.Context, conversationID, actorID uuid.UUID) (*domain.InboxEntry, error)

func (h *ConversationHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn transitionFunc) {
	actorID := middleware.GetActorID(r.Context())
	convID, ok := pathConversationID(w, r)
	if !ok {
		return
	}

	entry, err := fn(r.Context(), convID, actorID)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}
