package service

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInboxEntryNotFound   = errors.New("inbox entry not found")
	ErrInvalidTransition    = errors.New("transition not allowed from the current state")
	ErrInvalidInput         = errors.New("invalid input")
)
