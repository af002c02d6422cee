package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusDeclined       BookingStatus = "declined"
	BookingStatusCancelled      BookingStatus = "cancelled"
	BookingStatusCompleted      BookingStatus = "completed"
	BookingStatusNoShow         BookingStatus = "no_show"
)

// ActiveBookingStatuses hold a provider's time slot.
var ActiveBookingStatuses = []BookingStatus{BookingStatusPendingPayment, BookingStatusConfirmed}

func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusDeclined, BookingStatusCancelled, BookingStatusCompleted, BookingStatusNoShow:
		return true
	}
	return false
}

func (s BookingStatus) HoldsSlot() bool {
	return s == BookingStatusPendingPayment || s == BookingStatusConfirmed
}

type BookingLocation string

const (
	LocationSalon       BookingLocation = "salon"
	LocationHomeService BookingLocation = "home_service"
)

type Booking struct {
	BaseNoDelete
	Reference       string          `db:"reference"`
	ClientID        uuid.UUID       `db:"client_id"`
	ProviderID      uuid.UUID       `db:"provider_id"`
	StartAt         time.Time       `db:"start_at"`
	DurationMinutes int             `db:"duration_minutes"`
	EndAt           time.Time       `db:"end_at"`
	Location        BookingLocation `db:"location"`
	Address         *string         `db:"address"`
	Subtotal        int64           `db:"subtotal"`
	Fee             int64           `db:"fee"`
	Total           int64           `db:"total"`
	Status          BookingStatus   `db:"status"`
	PaymentRef      *string         `db:"payment_ref"`

	PaymentConfirmedAt *time.Time `db:"payment_confirmed_at"`
	AcceptedAt         *time.Time `db:"accepted_at"`
	DeclinedAt         *time.Time `db:"declined_at"`
	CancelledAt        *time.Time `db:"cancelled_at"`
	CompletedAt        *time.Time `db:"completed_at"`
	NoShowAt           *time.Time `db:"no_show_at"`
	CancelledBy        *uuid.UUID `db:"cancelled_by"`
	CancelReason       *string    `db:"cancel_reason"`
	RefundAmount       *int64     `db:"refund_amount"`

	Items []BookingItem `db:"-"`
}

// BookingItem snapshots a service at booking time.
type BookingItem struct {
	BookingID       uuid.UUID `db:"booking_id"`
	Position        int       `db:"position"`
	ServiceID       uuid.UUID `db:"service_id"`
	Name            string    `db:"name"`
	Price           int64     `db:"price"`
	DurationMinutes int       `db:"duration_minutes"`
}
