package errors

import "errors"

// This package defines a centralized set of sentinel errors for the application.
// Using sentinel errors allows services to return specific, recognizable error types
// without coupling them to implementation details like HTTP status codes. The API
// layer can then use `errors.Is()` to check for these specific errors and map
// them to the correct HTTP responses.

var (
	// ErrUnauthorized signifies that no caller identity could be resolved,
	// neither an authenticated user nor an anonymous session.
	// This is typically mapped to a 401 Unauthorized HTTP status.
	ErrUnauthorized = errors.New("no caller identity")

	// ErrNotFound signifies that a requested resource could not be located.
	// This is typically mapped to a 404 Not Found HTTP status.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation signifies that input data provided by a client failed
	// business rule validation.
	// This is typically mapped to a 400 Bad Request HTTP status.
	ErrValidation = errors.New("validation failed")

	// ErrConflict signifies that an operation could not be completed because
	// it conflicts with the current state of a resource.
	// This is typically mapped to a 409 Conflict HTTP status.
	ErrConflict = errors.New("resource conflict")

	// ErrPermission signifies that the resolved identity does not own the
	// resource it is trying to act on.
	// This is typically mapped to a 403 Forbidden HTTP status.
	ErrPermission = errors.New("permission denied")

	// ErrInternal signifies an unexpected error on the server. This is a generic
	// error used to prevent leaking sensitive implementation details to the client.
	// This is typically mapped to a 500 Internal Server Error HTTP status.
	ErrInternal = errors.New("internal server error")
)
