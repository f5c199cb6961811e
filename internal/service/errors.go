package service

import "errors"

var (
	// ErrNotFound is returned when a code is unknown or past its logical
	// expiry. Callers cannot distinguish the two.
	ErrNotFound = errors.New("link not found")

	// ErrInvalidURL is returned when the submitted URL fails validation
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInvalidTTL is returned when a requested TTL is not positive
	ErrInvalidTTL = errors.New("ttl must be positive")
)
