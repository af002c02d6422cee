// Package payment is the opaque payment capability used by the booking engine:
// authorize a hold, then capture, void or refund it.
package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrDeclined is returned when the gateway refuses an authorization.
	ErrDeclined = errors.New("payment: authorization declined")
	// ErrAlreadySettled is returned when the hold was already captured or voided.
	ErrAlreadySettled = errors.New("payment: already settled")
	// ErrUnknownRef is returned for a reference the gateway never issued.
	ErrUnknownRef = errors.New("payment: unknown reference")
)

type AuthorizeRequest struct {
	BookingID uuid.UUID
	Reference string
	Amount    int64 // minor units
	Currency  string
	// IdempotencyKey makes retries of the same authorization safe.
	IdempotencyKey string
}

// Authorization is a hold on the client's funds.
type Authorization struct {
	Ref string
	// ClientSecret lets the client confirm the hold; empty for gateways that need no client step.
	ClientSecret string
}

// Gateway is implemented by every payment backend. All amounts are minor
// currency units; every settlement call is idempotent per key.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Capture(ctx context.Context, ref string, amount int64, idempotencyKey string) error
	Void(ctx context.Context, ref string, idempotencyKey string) error
	Refund(ctx context.Context, ref string, amount int64, idempotencyKey string) error
}
