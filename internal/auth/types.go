package auth

import (
	"errors"
	"regexp"
)

// subjectPattern is the accepted format for token subjects: alphanumeric,
// dots, hyphens, underscores, 1-64 characters.
var subjectPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidSubject checks if a token subject meets format requirements.
func IsValidSubject(subject string) bool {
	return subjectPattern.MatchString(subject)
}

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can only read.
	RoleViewer Role = "viewer"

	// RoleOperator can read and record doses and refills. Suits a wall
	// panel or a home automation bridge.
	RoleOperator Role = "operator"

	// RoleAdmin can additionally add, reconfigure and remove medications.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrInvalidSubject = errors.New("invalid token subject")
	ErrInvalidRole    = errors.New("invalid role")
	ErrForbidden      = errors.New("insufficient permissions")
)
