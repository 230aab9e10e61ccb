package models

import "errors"

// Error taxonomy shared by the store, the engine and the HTTP layer.
// Deduplicated raises are not errors; see AlertService.Raise.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid alert state transition")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrEvaluationFailure = errors.New("evaluation failure")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
)
