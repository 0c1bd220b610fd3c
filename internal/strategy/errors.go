package strategy

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is matched by every InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError reports which derived feature could not be computed.
type InsufficientDataError struct {
	Feature string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s unavailable", e.Feature)
}

// Is lets errors.Is match ErrInsufficientData.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
