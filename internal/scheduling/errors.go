package scheduling

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"coiffeur-booking/internal/data/entity"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrSlotConflict    = errors.New("slot no longer available")
	ErrNotOwner        = errors.New("actor does not own this booking")
	ErrInvalidState    = errors.New("action not allowed in current booking state")
	ErrTooEarly        = errors.New("appointment has not started yet")
	ErrTooLateToCancel = errors.New("too late to cancel this booking")
	ErrPaymentMismatch = errors.New("payment reference does not match booking")
	ErrPayment         = errors.New("payment failed")
)

// ValidationError carries per-field messages and matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(msgs)
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StateError reports a refused transition with the state it was refused in.
type StateError struct {
	Action Action
	Status entity.BookingStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a booking in status %s", e.Action, e.Status)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}
