package entity

import (
	"time"

	"github.com/google/uuid"
)

type SettlementKind string

const (
	SettlementCapture SettlementKind = "capture"
	SettlementVoid    SettlementKind = "void"
	// SettlementRefund returns money that was already captured. Transitions
	// settle before capture, so only operator-queued jobs use it.
	SettlementRefund  SettlementKind = "refund"
)

// SettlementJob is a payment call owed to the gateway after a transition.
// It is written in the transition's transaction and retried until DoneAt is set.
type SettlementJob struct {
	BaseSimple
	BookingID     uuid.UUID      `db:"booking_id"`
	Kind          SettlementKind `db:"kind"`
	PaymentRef    string         `db:"payment_ref"`
	Amount        int64          `db:"amount"`
	Attempts      int            `db:"attempts"`
	LastError     *string        `db:"last_error"`
	NextAttemptAt time.Time      `db:"next_attempt_at"`
	DoneAt        *time.Time     `db:"done_at"`
}
