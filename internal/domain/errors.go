package domain

import "fmt"

// Error types for consistent error handling across the POS core.

// ErrUnauthorized indicates the session is invalid or expired.
// It is the sole signal that demotes the session to unauthenticated.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrRequestFailed indicates the backend rejected the request
// (validation, processor decline, not-found). The message is surfaced
// verbatim to the user.
type ErrRequestFailed struct {
	Status  int
	Message string
}

func (e *ErrRequestFailed) Error() string {
	return e.Message
}

// ErrNetworkUnavailable indicates a transport-level failure: the request
// never produced an HTTP response.
type ErrNetworkUnavailable struct {
	Err error
}

func (e *ErrNetworkUnavailable) Error() string {
	return fmt.Sprintf("network unavailable: %v", e.Err)
}

func (e *ErrNetworkUnavailable) Unwrap() error {
	return e.Err
}

// ErrValidation indicates bad input caught before any network call.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrBusy indicates a submission was rejected because another one is
// already in flight on the same orchestrator instance.
type ErrBusy struct {
	Operation string
}

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("operation already in progress: %s", e.Operation)
}

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}
