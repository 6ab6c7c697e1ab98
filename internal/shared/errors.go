package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrRecalcInProgress occurs when a recalculation for the same project is already running.
	ErrRecalcInProgress = errors.New("recalculation already in progress")
)
