package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors are fatal for the request and never retried
	ErrConfiguration    = errors.New("configuration error")
	ErrZeroExposure     = fmt.Errorf("%w: total exposure is zero", ErrConfiguration)
	ErrNoTarget         = fmt.Errorf("%w: no target variable", ErrConfiguration)
	ErrUnknownVariable  = fmt.Errorf("%w: unknown variable", ErrConfiguration)
	ErrMissingColumn    = fmt.Errorf("%w: missing column", ErrConfiguration)
	ErrInvalidValue     = fmt.Errorf("%w: invalid value", ErrConfiguration)
	ErrInvalidModelSpec = fmt.Errorf("%w: invalid model spec", ErrConfiguration)

	// Parse errors are reported per term and never abort a computation
	ErrMalformedTerm = errors.New("malformed coefficient term")

	// Numeric degeneracy is recovered locally with a documented default
	ErrNumericDegeneracy = errors.New("numeric degeneracy")

	// Oracle failures are propagated to the caller without retry
	ErrOracleFailure = errors.New("oracle failure")

	// Lookups
	ErrNotFound         = errors.New("resource not found")
	ErrArtifactNotFound = fmt.Errorf("%w: artifact", ErrNotFound)
	ErrDatasetNotFound  = fmt.Errorf("%w: dataset", ErrNotFound)
)

// Error constructors with context
func NewConfigurationError(modelID ModelID, detail string) error {
	return fmt.Errorf("%w: model %s: %s", ErrConfiguration, modelID, detail)
}

func NewZeroExposureError(modelID ModelID, column string) error {
	if column == "" {
		column = "uniform weight"
	}
	return fmt.Errorf("%w (model %s, weight column %s)", ErrZeroExposure, modelID, column)
}

func NewMissingColumnError(column string, row int) error {
	return fmt.Errorf("%w %q at row %d", ErrMissingColumn, column, row)
}

func NewInvalidValueError(column string, row int, reason string) error {
	return fmt.Errorf("%w for %q at row %d: %s", ErrInvalidValue, column, row, reason)
}

func NewUnknownVariableError(modelID ModelID, variable string) error {
	return fmt.Errorf("%w %q in model %s", ErrUnknownVariable, variable, modelID)
}

func NewMalformedTermError(term string) error {
	return fmt.Errorf("%w: %q", ErrMalformedTerm, term)
}

func NewNumericDegeneracyError(variable string, value string, reason string) error {
	return fmt.Errorf("%w for %s=%s: %s", ErrNumericDegeneracy, variable, value, reason)
}

func NewOracleError(modelID ModelID, operation string, err error) error {
	return fmt.Errorf("%w: model %s: %s: %v", ErrOracleFailure, modelID, operation, err)
}

// Error checking helpers
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsParseError(err error) bool {
	return errors.Is(err, ErrMalformedTerm)
}

func IsOracleError(err error) bool {
	return errors.Is(err, ErrOracleFailure)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
