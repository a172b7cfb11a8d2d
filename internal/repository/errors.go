// Package repository defines errors shared by all storage backends.
package repository

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	// Callers translate it into their own domain errors.
	ErrNotFound = errors.New("repository: not found")
	// ErrNotImplemented signals the operation is not available on the chosen backend.
	ErrNotImplemented = errors.New("repository: not implemented")
)
