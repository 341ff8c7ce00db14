package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/domain"
	"github.com/vedran77/pulse-inbox/internal/moderation"
	"github.com/vedran77/pulse-inbox/internal/service"
	"github.com/vedran77/pulse-inbox/internal/transport/http/middleware"
	"github.com/vedran77/pulse-inbox/pkg/validator"
)

const maxObjectIDs = 1000

type Moderation interface {
	Record(ctx context.Context, actorID uuid.UUID, input service.ModerationInput) (*domain.ModerationAction, error)
	HiddenObjects(ctx context.Context, actorID uuid.UUID, objectType domain.ObjectType, objectIDs []string) (moderation.Set, error)
	HiddenInTree(ctx context.Context, actorID uuid.UUID, objectType domain.ObjectType, roots []*domain.CommentNode) (moderation.Set, error)
}

type ModerationHandler struct {
	moderation Moderation
}

func NewModerationHandler(m Moderation) *ModerationHandler {
	return &ModerationHandler{moderation: m}
}

func (h *ModerationHandler) Record(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())

	var input service.ModerationInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateModerationAction(input.ObjectType, input.ObjectID, input.Action, input.Reason); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	action, err := h.moderation.Record(r.Context(), actorID, input)
	if err != nil {
		writeServiceError(w, "record moderation action", err)
		return
	}

	writeJSON(w, http.StatusCreated, action)
}

func (h *ModerationHandler) Hidden(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())

	var input struct {
		ObjectType string   `json:"object_type"`
		ObjectIDs  []string `json:"object_ids"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if errs := validator.ValidateObjectType(input.ObjectType); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}
	if len(input.ObjectIDs) > maxObjectIDs {
		writeError(w, http.StatusBadRequest, "TOO_MANY_IDS", "Too many object ids")
		return
	}

	hidden, err := h.moderation.HiddenObjects(r.Context(), actorID, domain.ObjectType(input.ObjectType), input.ObjectIDs)
	if err != nil {
		writeServiceError(w, "resolve hidden objects", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"hidden": hidden.IDs()})
}

func (h *ModerationHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())

	var input struct {
		ObjectType string                `json:"object_type"`
		Roots      []*domain.CommentNode `json:"roots"`
	}
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.ObjectType == "" {
		input.ObjectType = string(domain.ObjectComment)
	}
	if errs := validator.ValidateObjectType(input.ObjectType); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	hidden, err := h.moderation.HiddenInTree(r.Context(), actorID, domain.ObjectType(input.ObjectType), input.Roots)
	if err != nil {
		writeServiceError(w, "resolve tree visibility", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"hidden": hidden.IDs()})
}
