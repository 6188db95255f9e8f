package domain

import "errors"

// Errors returned by the domain and its collaborators. Callers wrap them with
// context and match with errors.Is; the HTTP layer maps each one to a status
// code and user-facing message.
var (
	// ErrInvalidCredential is returned by login when the key matches neither
	// configured secret.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrUnauthorized means no session is present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means a session is present but its role is insufficient.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for empty or oversized post text.
	ErrValidation = errors.New("validation failed")

	// ErrPayloadTooLarge is returned when an upload exceeds the byte limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBadFile is returned when an upload is missing or not an allowed type.
	ErrBadFile = errors.New("bad file")

	// ErrPersistence wraps a failed durable write. The triggering request must
	// not report success.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound is returned by persistence collaborators when the durable
	// copy does not exist yet.
	ErrNotFound = errors.New("not found")
)
