package errors

import "errors"

var (
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized worker")
	ErrLeaseHeld       = errors.New("build has already started")
	ErrNoLease         = errors.New("build did not start")
	ErrWrongState      = errors.New("order is not in the expected state")
	ErrStateConflict   = errors.New("order state changed concurrently")
	ErrInvalidPayload  = errors.New("invalid order payload")
	ErrInvalidPriority = errors.New("invalid order priority")
	ErrInvalidWorker   = errors.New("invalid worker")
)
