package storage

import "errors"

// Common client storage errors
var (
	// ErrNotFound indicates that record, queue entry or metadata key was not found
	ErrNotFound = errors.New("not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidRecord indicates that record violates store constraints
	ErrInvalidRecord = errors.New("invalid record")

	// ErrVersionMismatch indicates that stored record version differs from the expected one
	ErrVersionMismatch = errors.New("record version mismatch")
)
