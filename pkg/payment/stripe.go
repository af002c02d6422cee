package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// StripeGateway holds funds with manual-capture PaymentIntents.
type StripeGateway struct {
	api *client.API
	log *zap.Logger
}

func NewStripeGateway(secretKey string, log *zap.Logger) *StripeGateway {
	return NewStripeGatewayWithBackends(secretKey, nil, log)
}

// NewStripeGatewayWithBackends lets callers point the client at another API base URL.
func NewStripeGatewayWithBackends(secretKey string, backends *stripe.Backends, log *zap.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{
		api: api,
		log: log.With(zap.String("gateway", "stripe")),
	}
}

func (g *StripeGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String("Booking " + req.Reference),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", req.BookingID.String())
	params.AddMetadata("reference", req.Reference)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.log.Warn("Stripe authorization failed",
			zap.Error(err),
			zap.String("booking_id", req.BookingID.String()),
		)
		return nil, translate(err)
	}

	return &Authorization{Ref: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, ref string, amount int64, idempotencyKey string) error {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(amount),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := g.api.PaymentIntents.Capture(ref, params); err != nil {
		return fmt.Errorf("capture %s: %w", ref, translate(err))
	}
	return nil
}

func (g *StripeGateway) Void(ctx context.Context, ref string, idempotencyKey string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := g.api.PaymentIntents.Cancel(ref, params); err != nil {
		return fmt.Errorf("void %s: %w", ref, translate(err))
	}
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, ref string, amount int64, idempotencyKey string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(ref),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := g.api.Refunds.New(params); err != nil {
		return fmt.Errorf("refund %s: %w", ref, translate(err))
	}
	return nil
}

func translate(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return err
	}

	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		return fmt.Errorf("%w: %s", ErrDeclined, stripeErr.Msg)
	case stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState:
		return fmt.Errorf("%w: %s", ErrAlreadySettled, stripeErr.Msg)
	case stripeErr.Code == stripe.ErrorCodeResourceMissing:
		return fmt.Errorf("%w: %s", ErrUnknownRef, stripeErr.Msg)
	}
	return err
}
