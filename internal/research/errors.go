package research

import (
	"errors"
	"strings"
)

// ErrAuthRequired is the recoverable credential failure: callers clear the
// stored session and send the user back through sign-in.
var ErrAuthRequired = errors.New("research: authentication required")

// CreationError reports a failed task creation, carrying the upstream message
// for inline display.
type CreationError struct {
	Message string
}

func (e *CreationError) Error() string {
	return "research: task creation failed: " + e.Message
}

// StatusError reports a failed status check that is not an auth failure.
type StatusError struct {
	Message string
}

func (e *StatusError) Error() string {
	return "research: status check failed: " + e.Message
}

// tokenErrorMarkers are upstream error-payload fragments that mean the bearer
// token is invalid or expired even when the status code is not 401/403.
var tokenErrorMarkers = []string{
	"invalid token",
	"invalid_token",
	"token expired",
	"token_expired",
	"expired token",
	"jwt expired",
	"invalid jwt",
}

func looksLikeAuthError(message string) bool {
	m := strings.ToLower(message)
	for _, marker := range tokenErrorMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}
