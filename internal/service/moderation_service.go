package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/domain"
	"github.com/vedran77/pulse-inbox/internal/moderation"
	"github.com/vedran77/pulse-inbox/internal/repository"
	"github.com/vedran77/pulse-inbox/pkg/validator"
)

type ModerationService struct {
	repo repository.ModerationRepository
	now  func() time.Time
}

func NewModerationService(repo repository.ModerationRepository) *ModerationService {
	return &ModerationService{repo: repo, now: time.Now}
}

type ModerationInput struct {
	ObjectType string     `json:"object_type"`
	ObjectID   string     `json:"object_id"`
	Action     string     `json:"action"`
	Reason     *string    `json:"reason"`
	ReportID   *uuid.UUID `json:"report_id"`
}

// Record appends a hide or unhide row for the actor. Earlier rows are never
// touched; the new row shadows them because it is newer.
func (s *ModerationService) Record(ctx context.Context, actorID uuid.UUID, input ModerationInput) (*domain.ModerationAction, error) {
	if errs := validator.ValidateModerationAction(input.ObjectType, input.ObjectID, input.Action, input.Reason); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, errs.Error())
	}

	a := &domain.ModerationAction{
		ID:         uuid.New(),
		ActorID:    actorID,
		ObjectType: domain.ObjectType(input.ObjectType),
		ObjectID:   input.ObjectID,
		ActionType: domain.ActionType(input.Action),
		Reason:     input.Reason,
		ReportID:   input.ReportID,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Append(ctx, a); err != nil {
		return nil, fmt.Errorf("recording moderation action: %w", err)
	}
	return a, nil
}

// HiddenObjects returns which of the given objects are hidden for the actor.
func (s *ModerationService) HiddenObjects(ctx context.Context, actorID uuid.UUID, objectType domain.ObjectType, objectIDs []string) (moderation.Set, error) {
	actions, err := s.repo.ListForActor(ctx, actorID, objectType, objectIDs)
	if err != nil {
		return nil, fmt.Errorf("loading moderation actions: %w", err)
	}
	return moderation.HiddenSet(actions, objectIDs), nil
}

// HiddenInTree returns every node of the reply forest hidden for the actor,
// either explicitly or through a hidden ancestor.
func (s *ModerationService) HiddenInTree(ctx context.Context, actorID uuid.UUID, objectType domain.ObjectType, roots []*domain.CommentNode) (moderation.Set, error) {
	if errs := validator.ValidateObjectType(string(objectType)); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, errs.Error())
	}

	ids := moderation.TreeIDs(roots)
	if len(ids) == 0 {
		return moderation.Set{}, nil
	}

	hidden, err := s.HiddenObjects(ctx, actorID, objectType, ids)
	if err != nil {
		return nil, err
	}
	return moderation.ExpandToDescendants(roots, hidden), nil
}
