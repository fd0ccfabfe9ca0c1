package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrProviderNotFound = errors.New("provider not found")
	ErrSlotTaken        = errors.New("slot no longer available")
	ErrInvalidTimeRange = errors.New("end time must be after start time")
	ErrStartInPast      = errors.New("start time must be in the future")
	ErrInvalidEvent     = errors.New("invalid payment event")
	ErrGatewayTransient = errors.New("payment gateway temporarily unavailable")
	ErrGatewayRejected  = errors.New("payment gateway rejected the request")
	ErrCorrelationInUse = errors.New("payment correlation id already attached")
	// ErrStaleTransition is returned when a conditional state update matched no row.
	ErrStaleTransition  = errors.New("reservation is no longer in the expected state")
)

// ConflictError rejects a reservation before any payment is attempted.
type ConflictError struct {
	Result ConflictResult
}

func (e *ConflictError) Error() string {
	if e.Result.Detail == "" {
		return fmt.Sprintf("slot conflict: %s", e.Result.Type)
	}
	return fmt.Sprintf("slot conflict: %s: %s", e.Result.Type, e.Result.Detail)
}

// RefundFailureError means the gateway refused a refund and no local record
// exists. It must reach an operator.
type RefundFailureError struct {
	PaymentCorrelationID string
	Err                  error
}

func (e *RefundFailureError) Error() string {
	return fmt.Sprintf("refund for payment %s failed: %v", e.PaymentCorrelationID, e.Err)
}

func (e *RefundFailureError) Unwrap() error {
	return e.Err
}
