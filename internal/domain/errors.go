// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates a request failed input validation.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition indicates a workflow action is not valid from the
// entity's current status.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrInsufficientRole indicates the acting principal may not perform the action.
var ErrInsufficientRole = errors.New("insufficient role")

// ErrPayloadTooLarge indicates an upload exceeds the size limit.
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrUnsupportedType indicates an upload has a file type that is not accepted.
var ErrUnsupportedType = errors.New("unsupported file type")
