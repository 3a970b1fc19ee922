package models

import "errors"

var (
	// ErrInvalidInput marks malformed or semantically invalid requests. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing order or vendor order.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition marks an operation the record's current status does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict marks a lost optimistic-concurrency race; callers may retry.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrDependencyUnavailable marks an unreachable store, lock or broker.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
