package storage

import "errors"

// ErrNoDecision is returned when no signal decision has been stored yet
var ErrNoDecision = errors.New("no stored signal decision")
