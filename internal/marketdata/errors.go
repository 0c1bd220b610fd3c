package marketdata

import (
	"errors"
	"fmt"
)

// ErrDataUnavailable is matched by every DataUnavailableError.
var ErrDataUnavailable = errors.New("market data unavailable")

// ErrEmptySeries is returned when a provider answers with no usable rows.
var ErrEmptySeries = errors.New("empty series")

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int {
	return e.Status
}

// DataUnavailableError is returned when every source of an operation failed.
type DataUnavailableError struct {
	Operation string
	Err       error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: all sources failed: %v", e.Operation, e.Err)
}

// Unwrap returns the joined per-source errors.
func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrDataUnavailable.
func (e *DataUnavailableError) Is(target error) bool {
	return target == ErrDataUnavailable
}
