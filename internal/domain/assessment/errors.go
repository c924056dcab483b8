package assessment

import "errors"

// Sentinel errors mapped to HTTP statuses by the handler. Services wrap them
// with context via fmt.Errorf("...: %w", Err...).
var (
	ErrNotFound   = errors.New("assessment not found")
	ErrConflict   = errors.New("conflict")
	ErrExpired    = errors.New("assessment expired")
	ErrValidation = errors.New("invalid input")
	ErrInvariant  = errors.New("invariant violation")
)
