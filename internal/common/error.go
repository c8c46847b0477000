// Package common defines sentinel errors and constants shared by the server
// and the sync client. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")
	ErrStorage  = errors.New("storage error")

	// Request validation.
	ErrValidation = errors.New("validation error")

	// Transcription errors.
	ErrFileNotFound = errors.New("file not found")
	ErrUpstream     = errors.New("upstream error")

	// Client transport errors.
	ErrUnavailable = errors.New("server unavailable")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
