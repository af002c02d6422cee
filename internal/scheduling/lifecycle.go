package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"coiffeur-booking/internal/data/entity"
)

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleSystem   Role = "system"
)

// Actor is the authenticated party asking for a transition.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor is used by webhooks, compensation and the sweep.
var SystemActor = Actor{Role: RoleSystem}

type Action string

const (
	ActionConfirmPayment Action = "confirm_payment"
	ActionAccept         Action = "accept"
	ActionDecline        Action = "decline"
	ActionCancel         Action = "cancel"
	ActionComplete       Action = "complete"
	ActionNoShow         Action = "no_show"
	ActionExpire         Action = "expire"
	ActionPaymentFailed  Action = "payment_failed"
)

// ParseAction maps the public action names to actions an owner may request.
func ParseAction(s string) (Action, error) {
	switch s {
	case "accept":
		return ActionAccept, nil
	case "decline":
		return ActionDecline, nil
	case "cancel":
		return ActionCancel, nil
	case "complete":
		return ActionComplete, nil
	case "no-show", "no_show":
		return ActionNoShow, nil
	}
	return "", NewValidationError("action", fmt.Sprintf("unknown action %q", s))
}

// Cancellation reasons recorded on the booking.
const (
	ReasonCancelledByClient   = "cancelled_by_client"
	ReasonCancelledByProvider = "cancelled_by_provider"
	ReasonPaymentFailed       = "payment_failed"
	ReasonPaymentTimeout      = "payment_timeout"
)

// Settlement is the payment call a transition owes the gateway.
type Settlement struct {
	Kind       entity.SettlementKind
	PaymentRef string
	Amount     int64
}

// Lifecycle applies booking transitions. It is pure: the caller loads the
// booking under a row lock, calls Apply, then persists the booking and the
// returned settlement in the same transaction.
type Lifecycle struct {
	Policy Policy
}

func NewLifecycle(policy Policy) *Lifecycle {
	return &Lifecycle{Policy: policy}
}

// Apply checks ownership, then state, then timing, and mutates b on success.
// paymentRef is only read for ActionConfirmPayment.
func (l *Lifecycle) Apply(b *entity.Booking, actor Actor, action Action, now time.Time, paymentRef string) (*Settlement, error) {
	if err := authorize(b, actor, action); err != nil {
		return nil, err
	}

	if b.Status.IsTerminal() {
		return nil, &StateError{Action: action, Status: b.Status}
	}

	var (
		settlement *Settlement
		err        error
	)

	switch action {
	case ActionConfirmPayment:
		err = l.confirmPayment(b, now, paymentRef)
	case ActionAccept:
		err = l.accept(b, now)
	case ActionDecline:
		settlement = l.decline(b, now)
	case ActionCancel:
		settlement, err = l.cancel(b, actor, now)
	case ActionComplete:
		settlement, err = l.complete(b, now)
	case ActionNoShow:
		settlement, err = l.noShow(b, now)
	case ActionExpire:
		settlement, err = l.expire(b, now)
	case ActionPaymentFailed:
		err = l.paymentFailed(b, now)
	default:
		return nil, NewValidationError("action", fmt.Sprintf("unknown action %q", action))
	}
	if err != nil {
		return nil, err
	}

	b.UpdatedAt = now
	if err := CheckMoney(b); err != nil {
		return nil, err
	}
	return settlement, nil
}

func authorize(b *entity.Booking, actor Actor, action Action) error {
	switch action {
	case ActionConfirmPayment, ActionExpire, ActionPaymentFailed:
		if actor.Role != RoleSystem {
			return ErrNotOwner
		}
	case ActionCancel:
		isClient := actor.Role == RoleClient && actor.ID == b.ClientID
		isProvider := actor.Role == RoleProvider && actor.ID == b.ProviderID
		if !isClient && !isProvider {
			return ErrNotOwner
		}
	default:
		if actor.Role != RoleProvider || actor.ID != b.ProviderID {
			return ErrNotOwner
		}
	}
	return nil
}

// confirmPayment records the payment webhook. A provider may accept before the
// webhook arrives; the confirmation is then stamped without a status change.
func (l *Lifecycle) confirmPayment(b *entity.Booking, now time.Time, paymentRef string) error {
	acceptedFirst := b.Status == entity.BookingStatusConfirmed && b.AcceptedAt != nil
	if (b.Status != entity.BookingStatusPendingPayment && !acceptedFirst) || b.PaymentConfirmedAt != nil {
		return &StateError{Action: ActionConfirmPayment, Status: b.Status}
	}
	if b.PaymentRef == nil || paymentRef == "" || *b.PaymentRef != paymentRef {
		return ErrPaymentMismatch
	}

	b.PaymentConfirmedAt = &now
	if b.Status == entity.BookingStatusPendingPayment && l.Policy.Confirmation == ConfirmOnPayment {
		b.Status = entity.BookingStatusConfirmed
	}
	return nil
}

func (l *Lifecycle) accept(b *entity.Booking, now time.Time) error {
	if b.Status != entity.BookingStatusPendingPayment || b.PaymentRef == nil {
		return &StateError{Action: ActionAccept, Status: b.Status}
	}
	if l.Policy.Confirmation == ConfirmByProvider && b.PaymentConfirmedAt == nil {
		return &StateError{Action: ActionAccept, Status: b.Status}
	}

	b.Status = entity.BookingStatusConfirmed
	b.AcceptedAt = &now
	return nil
}

func (l *Lifecycle) decline(b *entity.Booking, now time.Time) *Settlement {
	b.Status = entity.BookingStatusDeclined
	b.DeclinedAt = &now
	refund := b.Total
	b.RefundAmount = &refund
	return release(b, refund)
}

func (l *Lifecycle) cancel(b *entity.Booking, actor Actor, now time.Time) (*Settlement, error) {
	refund := b.Total
	reason := ReasonCancelledByProvider

	if actor.Role == RoleClient {
		reason = ReasonCancelledByClient
		// only a confirmed appointment carries a late-cancellation fee
		if b.Status == entity.BookingStatusConfirmed {
			refund = l.Policy.Refund.RefundAmount(b, now)
			if refund < b.Total && l.Policy.Refund.BlockLateCancellation {
				return nil, ErrTooLateToCancel
			}
		}
	}

	markCancelled(b, now, &actor.ID, reason)
	b.RefundAmount = &refund
	return release(b, refund), nil
}

func (l *Lifecycle) complete(b *entity.Booking, now time.Time) (*Settlement, error) {
	if b.Status != entity.BookingStatusConfirmed {
		return nil, &StateError{Action: ActionComplete, Status: b.Status}
	}
	if now.Before(b.StartAt) {
		return nil, ErrTooEarly
	}

	b.Status = entity.BookingStatusCompleted
	b.CompletedAt = &now
	return capture(b, b.Total), nil
}

func (l *Lifecycle) noShow(b *entity.Booking, now time.Time) (*Settlement, error) {
	if b.Status != entity.BookingStatusConfirmed {
		return nil, &StateError{Action: ActionNoShow, Status: b.Status}
	}
	if now.Before(b.StartAt) {
		return nil, ErrTooEarly
	}

	charge := l.Policy.NoShowCharge(b)
	refund := b.Total - charge
	b.Status = entity.BookingStatusNoShow
	b.NoShowAt = &now
	b.RefundAmount = &refund
	return release(b, refund), nil
}

func (l *Lifecycle) expire(b *entity.Booking, now time.Time) (*Settlement, error) {
	if b.Status != entity.BookingStatusPendingPayment || b.PaymentConfirmedAt != nil {
		return nil, &StateError{Action: ActionExpire, Status: b.Status}
	}

	markCancelled(b, now, nil, ReasonPaymentTimeout)
	refund := b.Total
	b.RefundAmount = &refund
	return release(b, refund), nil
}

func (l *Lifecycle) paymentFailed(b *entity.Booking, now time.Time) error {
	if b.Status != entity.BookingStatusPendingPayment {
		return &StateError{Action: ActionPaymentFailed, Status: b.Status}
	}
	markCancelled(b, now, nil, ReasonPaymentFailed)
	return nil
}

func markCancelled(b *entity.Booking, now time.Time, by *uuid.UUID, reason string) {
	b.Status = entity.BookingStatusCancelled
	b.CancelledAt = &now
	b.CancelReason = &reason
	if by != nil {
		id := *by
		b.CancelledBy = &id
	}
}

// release settles an authorization when refund of the total goes back to the
// client: a full refund voids the hold, anything less captures the remainder.
func release(b *entity.Booking, refund int64) *Settlement {
	if b.PaymentRef == nil {
		return nil
	}
	if refund >= b.Total {
		return &Settlement{Kind: entity.SettlementVoid, PaymentRef: *b.PaymentRef, Amount: b.Total}
	}
	return capture(b, b.Total-refund)
}

func capture(b *entity.Booking, amount int64) *Settlement {
	if b.PaymentRef == nil {
		return nil
	}
	return &Settlement{Kind: entity.SettlementCapture, PaymentRef: *b.PaymentRef, Amount: amount}
}

// CheckMoney verifies the money invariants of a booking.
func CheckMoney(b *entity.Booking) error {
	if b.Subtotal < 0 || b.Fee < 0 || b.Total < 0 {
		return NewValidationError("amount", "money fields must be non-negative")
	}
	if b.Total != b.Subtotal+b.Fee {
		return NewValidationError("total", fmt.Sprintf("total %d != subtotal %d + fee %d", b.Total, b.Subtotal, b.Fee))
	}
	return nil
}
