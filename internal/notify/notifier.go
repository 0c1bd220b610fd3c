// Package notify formats signal messages and delivers them to a chat.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrDelivery is matched by every DeliveryError.
var ErrDelivery = errors.New("notification delivery failed")

// Notifier delivers a formatted message to the operator.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// DeliveryError wraps a failed delivery. It is never fatal to the run.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrDelivery.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}
