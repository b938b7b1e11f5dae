package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrIntegrity indicates a referential integrity violation at the store.
	ErrIntegrity = errors.New("referential integrity violation")
	// ErrValidation indicates malformed request input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized indicates a request without an authenticated subject.
	ErrUnauthorized = errors.New("unauthenticated")
	// ErrForbidden indicates an authenticated subject lacking authority.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
