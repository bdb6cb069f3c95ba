package frontendtool

import "errors"

var (
	// ErrToolNotFound is returned when execution is requested for a name
	// that has no registered handler.
	ErrToolNotFound = errors.New("frontend tool not found")

	// ErrNoActiveFlow is returned when a tool requires state that only
	// exists after login_user_start ran in this caller-side session.
	ErrNoActiveFlow = errors.New("no active login flow")
)

// Error codes surfaced to the model inside tool results.
const (
	CodeNoActiveFlow = "NO_ACTIVE_FLOW"
	CodeInvalidCode  = "INVALID_CODE"
	CodeSendFailed   = "SEND_FAILED"
)
