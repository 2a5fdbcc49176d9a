package models

import "errors"

var (
	// ErrNotFound means the requested id is absent from the active data source.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput means a caller-supplied value failed validation.
	ErrInvalidInput = errors.New("invalid input")
)
