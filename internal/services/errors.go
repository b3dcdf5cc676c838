// Package services defines the business logic for conversations, advisory
// turns, and the car catalog. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrConversationNotFound indicates that the requested conversation does
	// not exist or is not accessible to the current user.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyPrompt is returned when a turn request contains an empty
	// message.
	ErrEmptyPrompt = errors.New("message is empty")

	// ErrTooLong is returned when a turn request exceeds the maximum
	// configured message length.
	ErrTooLong = errors.New("message too long")

	// ErrInvalidLanguage is returned when a requested language is outside
	// the supported set (en, zh).
	ErrInvalidLanguage = errors.New("unsupported language")

	// ErrStorage indicates a persistence failure on the critical path of a
	// turn (the user message write). Best-effort writes never surface it.
	ErrStorage = errors.New("storage failure")

	// ErrCarNotFound indicates that the requested catalog record does not
	// exist.
	ErrCarNotFound = errors.New("car not found")
)
