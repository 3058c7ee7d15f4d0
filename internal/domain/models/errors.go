package models

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable is returned when the predictive model artifact cannot be loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrAggregationEmpty is returned when no holding of a client has a volatility record.
	ErrAggregationEmpty = errors.New("no volatility available for any holding")
	// ErrNotFound is returned by stores when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports malformed input. It is fatal for the invocation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// InsufficientDataError reports a series too short or too sparse to estimate from.
// Callers treat it as a benign skip.
type InsufficientDataError struct {
	Instrument string
	Need       int
	Have       int
	Reason     string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("insufficient data for %q: need %d, have %d", e.Instrument, e.Need, e.Have)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// IsInsufficientData reports whether err wraps an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
