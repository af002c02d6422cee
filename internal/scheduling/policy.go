package scheduling

import (
	"fmt"
	"time"

	"coiffeur-booking/internal/data/entity"
)

// ConfirmationPolicy decides what a successful payment does to a booking.
type ConfirmationPolicy string

const (
	// ConfirmOnPayment confirms the booking as soon as payment is confirmed;
	// the provider may also accept earlier once an authorization exists.
	ConfirmOnPayment ConfirmationPolicy = "auto"
	// ConfirmByProvider records the payment and waits for the provider to accept.
	ConfirmByProvider ConfirmationPolicy = "provider"
)

func ParseConfirmationPolicy(s string) (ConfirmationPolicy, error) {
	switch ConfirmationPolicy(s) {
	case ConfirmOnPayment, ConfirmByProvider:
		return ConfirmationPolicy(s), nil
	case "":
		return ConfirmOnPayment, nil
	}
	return "", fmt.Errorf("unknown confirmation policy %q", s)
}

// RefundPolicy decides how much of a confirmed booking goes back to a client
// who cancels.
type RefundPolicy struct {
	FullRefundWindow      time.Duration
	LateRefundPercent     int
	BlockLateCancellation bool
}

// RefundAmount is the full total when the appointment is more than
// FullRefundWindow away, LateRefundPercent of it otherwise.
func (p RefundPolicy) RefundAmount(b *entity.Booking, now time.Time) int64 {
	if b.StartAt.Sub(now) > p.FullRefundWindow {
		return b.Total
	}
	return percentOf(b.Total, p.LateRefundPercent)
}

type Policy struct {
	Confirmation        ConfirmationPolicy
	Refund              RefundPolicy
	NoShowChargePercent int
}

func DefaultPolicy() Policy {
	return Policy{
		Confirmation: ConfirmOnPayment,
		Refund: RefundPolicy{
			FullRefundWindow:  24 * time.Hour,
			LateRefundPercent: 50,
		},
		NoShowChargePercent: 100,
	}
}

// NoShowCharge is the amount kept from a client who did not show up.
func (p Policy) NoShowCharge(b *entity.Booking) int64 {
	return percentOf(b.Total, p.NoShowChargePercent)
}

func percentOf(amount int64, percent int) int64 {
	switch {
	case percent <= 0:
		return 0
	case percent >= 100:
		return amount
	}
	return amount * int64(percent) / 100
}
