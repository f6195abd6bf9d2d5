package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrCredentialsMissing = errors.New("collaborator credentials not configured")
	ErrBusinessRule       = errors.New("business rule violation")
)
