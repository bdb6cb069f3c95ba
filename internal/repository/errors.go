package repository

import "errors"

// ErrNotFound is a repository-specific sentinel error. It is returned when a
// query for a single entity (e.g., GetChat) finds no rows.
//
// The service layer should check for this specific error and translate it
// into a domain-level error (like `app_errors.ErrNotFound`), decoupling the
// business logic from the data access implementation. This abstracts away
// the underlying database driver's error (e.g., `sql.ErrNoRows`).
var ErrNotFound = errors.New("repository: not found")
