package service

import (
	"errors"
)

// Error kinds surfaced by the services. Concrete failures wrap one of these, so callers
// branch with errors.Is.
var (
	// ErrExtraction means the extractor was unavailable or returned unusable output.
	ErrExtraction = errors.New("extraction failed")
	// ErrNotFound means an edit or delete referenced an unknown or already deleted transaction.
	ErrNotFound = errors.New("transaction not found")
	// ErrPersistence means a ledger or inventory write failed.
	ErrPersistence = errors.New("persistence failed")
	// ErrValidation means a command was malformed and was rejected before any store access.
	ErrValidation = errors.New("invalid command")
)
