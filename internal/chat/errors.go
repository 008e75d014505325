// internal/chat/errors.go

package chat

import "errors"

var (
	// ErrNotFound covers conversations, messages and members that are
	// absent or soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller is not a member of the
	// conversation, or not the sender for recall/edit.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidArgument is returned for malformed requests: missing
	// content, missing media reference, conflicting reply/forward.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTransition is returned for illegal message-status changes.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConflict signals a uniqueness race, e.g. two callers creating the
	// same private conversation. It is retried internally and should not
	// normally reach the caller.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable marks transient store failures that the caller may
	// retry.
	ErrUnavailable = errors.New("store unavailable")
)
