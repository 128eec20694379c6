package domain

import "errors"

var (
	// ErrValidation marks malformed input rejected before any side effect.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing entity (delivery, template).
	ErrNotFound = errors.New("not found")
	// ErrSignature marks a webhook whose authenticity check failed.
	ErrSignature = errors.New("invalid signature")
	// ErrNotConfigured marks an operation whose provider integration is
	// missing credentials.
	ErrNotConfigured = errors.New("not configured")
)
