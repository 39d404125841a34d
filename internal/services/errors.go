package services

import "github.com/pkg/errors"

// Precondition failures surfaced before a scheduling pass is attempted.
// Anything that only affects a single job or order is reported inside the
// result instead, so the rest of the batch still gets scheduled.
var (
	ErrNoLinesConfigured = errors.New("process has no configured lines")
	ErrPinNotFound       = errors.New("pin not found")
	ErrUnknownLine       = errors.New("line does not belong to the process")
	ErrInvalidWeights    = errors.New("priority weights must be positive")
	ErrNoOrders          = errors.New("scenario has no pending orders")
)
