package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidState     = errors.New("invalid state for operation")
	ErrAlreadyFinalized = errors.New("order already finalized")
	ErrAlreadyUsed      = errors.New("ticket already used")
	ErrNotRefundable    = errors.New("ticket not refundable")
	ErrEventOccurred    = errors.New("event already occurred")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrVersionConflict  = errors.New("concurrent seat map update")
)

// SeatConflictError reports which seats lost the race so the caller can
// re-query availability and let the customer pick again.
type SeatConflictError struct {
	ShowInstanceID string
	Seats          []int
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats %v are unavailable for show %s", e.Seats, e.ShowInstanceID)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
