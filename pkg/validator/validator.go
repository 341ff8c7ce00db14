package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for field, msg := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return strings.Join(parts, "; ")
}

const (
	maxReasonLength   = 500
	maxObjectIDLength = 200
)

var objectTypes = map[string]struct{}{
	"comment": {},
	"post":    {},
	"message": {},
}

func ValidateSpamReason(reason string) ValidationErrors {
	errs := make(ValidationErrors)

	reason = strings.TrimSpace(reason)
	if reason == "" {
		errs.Add("reason", "Reason is required")
	} else if utf8.RuneCountInString(reason) > maxReasonLength {
		errs.Add("reason", fmt.Sprintf("Reason must be at most %d characters", maxReasonLength))
	}

	return errs
}

func ValidateModerationAction(objectType, objectID, action string, reason *string) ValidationErrors {
	errs := make(ValidationErrors)

	if _, ok := objectTypes[objectType]; !ok {
		errs.Add("object_type", "Object type must be comment, post, or message")
	}

	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		errs.Add("object_id", "Object ID is required")
	} else if len(objectID) > maxObjectIDLength {
		errs.Add("object_id", "Object ID is too long")
	}

	if action != "hide" && action != "unhide" {
		errs.Add("action", "Action must be hide or unhide")
	}

	if reason != nil && utf8.RuneCountInString(*reason) > maxReasonLength {
		errs.Add("reason", fmt.Sprintf("Reason must be at most %d characters", maxReasonLength))
	}

	return errs
}

func ValidateObjectType(objectType string) ValidationErrors {
	errs := make(ValidationErrors)
	if _, ok := objectTypes[objectType]; !ok {
		errs.Add("object_type", "Object type must be comment, post, or message")
	}
	return errs
}
