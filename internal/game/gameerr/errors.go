// Package gameerr defines the error taxonomy shared by the lobby, match, and
// settlement subsystems. Handlers classify failures with errors.Is against
// these sentinels and map them to a single error message on the originating
// connection; failures never mutate shared state.
package gameerr

import "errors"

// ErrNotFound indicates an unknown lobby code, session code, or player ID.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized indicates a non-owner attempting an owner-only action.
var ErrUnauthorized = errors.New("unauthorized")

// ErrValidation indicates a malformed or incomplete request (missing
// settings, mismatched stake amount, empty chat text).
var ErrValidation = errors.New("validation failed")

// ErrConflict indicates a duplicate of an already-applied action (second
// stake from the same player, starting an already-started session).
// Conflicts are resolved as idempotent no-ops wherever possible.
var ErrConflict = errors.New("conflict")

// ErrTimeout indicates an expired window (staking). Timeouts trigger a
// degrade-and-continue path rather than a hard failure.
var ErrTimeout = errors.New("timeout")

// ErrExternal indicates a settlement collaborator failure. External failures
// are logged and never roll back in-memory state.
var ErrExternal = errors.New("external failure")
