package flow

import "errors"

var (
	// ErrFlowNotFound is returned for unknown or finished flow ids.
	ErrFlowNotFound = errors.New("flow: not found")

	// ErrUnknownStep is returned when a menu selects a step that does not exist.
	ErrUnknownStep = errors.New("flow: unknown step")
)

// Field error codes returned in Result.Errors.
const (
	ErrCodeRequired      = "required"
	ErrCodeInvalidNumber = "invalid_number"
	ErrCodeNotPositive   = "must_be_positive"
	ErrCodeNegative      = "must_not_be_negative"
	ErrCodeNotInteger    = "must_be_integer"
	ErrCodeNoMembers     = "no_members"
	ErrCodeUnknownMember = "unknown_member"
)

// Abort reasons.
const (
	AbortGroupsNotEditable = "groups_not_editable"
	AbortEntryNotFound     = "entry_not_found"
)
