package valuation

import "errors"

// Stage-entry contract violations surfaced to callers as typed failures.
// Engineering-stage issues (missing optional columns) are recovered locally
// by omission and never reach this taxonomy.
var (
	// ErrValidation covers missing required inputs, e.g. no label column at
	// training time.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyDataset is returned when filtering leaves zero rows for the
	// requested property type.
	ErrEmptyDataset = errors.New("no records for property type")

	// ErrInsufficientData is returned when too few rows remain to split into
	// train and validation sets.
	ErrInsufficientData = errors.New("insufficient records to train")

	// ErrModelNotFound is returned when prediction is requested for a
	// property type that has no trained artifact, in memory or on disk.
	ErrModelNotFound = errors.New("model not found")

	// ErrUnknownPropertyType is returned for a type outside the supported set.
	ErrUnknownPropertyType = errors.New("unknown property type")
)
