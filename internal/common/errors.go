// Package common defines shared constants and sentinel errors used across
// client and server layers of atlas-kanban. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Transport-level errors.
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")

	// Service-level errors.
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Validation errors, rejected before any network or storage call.
	ErrMissingID     = errors.New("record has no id")
	ErrEmptyBatch    = errors.New("empty batch")
	ErrBatchTooLarge = errors.New("batch exceeds per-call limit")
	ErrUnknownTable  = errors.New("unknown table")

	// Auth errors.
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrLoginAlreadyExists  = errors.New("login already exists")
	ErrInvalidCredentials  = errors.New("invalid email/password")
)
