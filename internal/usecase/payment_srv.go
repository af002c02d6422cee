package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/internal/data/repository"
	"coiffeur-booking/internal/scheduling"
	"coiffeur-booking/pkg/metrics"
	"coiffeur-booking/pkg/payment"
)

var paymentTracer = otel.Tracer("coiffeur.usecase.payment")

const (
	settlementBaseDelay = time.Minute
	settlementMaxDelay  = 6 * time.Hour
	// settlementLease keeps a fresh job away from the retry worker while the
	// request that created it executes it.
	settlementLease = 2 * time.Minute
)

// PaymentCoordinator sequences gateway calls around booking transitions.
// Authorization failures are blocking; settlement failures are queued.
type PaymentCoordinator interface {
	Authorize(ctx context.Context, booking *entity.Booking) (*payment.Authorization, error)
	Release(ctx context.Context, booking *entity.Booking, ref string)
	Settle(ctx context.Context, job *entity.SettlementJob) error
	RetryDue(ctx context.Context) (int, error)
}

type PaymentOptions struct {
	Currency    string
	Timeout     time.Duration
	MaxAttempts int
	Batch       int
}

type paymentCoordinator struct {
	repo    *repository.Repository
	gateway payment.Gateway
	opts    PaymentOptions
	metrics *metrics.BookingMetrics
	now     Clock
	log     *zap.Logger
}

func NewPaymentCoordinator(repo *repository.Repository, gateway payment.Gateway, opts PaymentOptions, m *metrics.BookingMetrics, now Clock, log *zap.Logger) PaymentCoordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.Batch <= 0 {
		opts.Batch = 25
	}
	if now == nil {
		now = time.Now
	}
	return &paymentCoordinator{
		repo:    repo,
		gateway: gateway,
		opts:    opts,
		metrics: m,
		now:     now,
		log:     log.With(zap.String("service", "payment")),
	}
}

// Authorize places a hold for the booking total. A timeout counts as failure.
func (c *paymentCoordinator) Authorize(ctx context.Context, booking *entity.Booking) (*payment.Authorization, error) {
	ctx, span := paymentTracer.Start(ctx, "payment.authorize", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", booking.ID.String()),
		attribute.Int64("booking.total", booking.Total),
	)

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	started := time.Now()
	auth, err := c.gateway.Authorize(ctx, payment.AuthorizeRequest{
		BookingID:      booking.ID,
		Reference:      booking.Reference,
		Amount:         booking.Total,
		Currency:       c.opts.Currency,
		IdempotencyKey: "authorize-" + booking.ID.String(),
	})
	c.metrics.ObserveGatewayLatency("authorize", time.Since(started).Seconds())

	if err == nil && (auth == nil || auth.Ref == "") {
		err = errors.New("gateway returned no authorization reference")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authorize failed")
		c.log.Warn("Payment authorization failed",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.Int64("amount", booking.Total),
		)
		return nil, fmt.Errorf("%w: %v", scheduling.ErrPayment, err)
	}

	return auth, nil
}

// Release voids a hold that could not be attached to its booking.
func (c *paymentCoordinator) Release(ctx context.Context, booking *entity.Booking, ref string) {
	if err := c.gateway.Void(ctx, ref, "release-"+booking.ID.String()); err != nil {
		c.log.Error("Failed to void orphaned authorization",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("payment_ref", ref),
		)
	}
}

// Settle runs one settlement job against the gateway and records the
// outcome. A gateway failure reschedules the job and is returned for logging.
func (c *paymentCoordinator) Settle(ctx context.Context, job *entity.SettlementJob) error {
	ctx, span := paymentTracer.Start(ctx, "payment.settle", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("settlement.id", job.ID.String()),
		attribute.String("settlement.kind", string(job.Kind)),
		attribute.Int64("settlement.amount", job.Amount),
	)

	started := time.Now()
	err := c.call(ctx, job)
	c.metrics.ObserveGatewayLatency(string(job.Kind), time.Since(started).Seconds())

	now := c.now()
	if err == nil {
		c.metrics.ObserveSettlement(string(job.Kind), "done")
		if markErr := c.repo.Settlement.MarkDone(ctx, job.ID, now); markErr != nil {
			return markErr
		}
		c.log.Info("Settlement done",
			zap.String("job_id", job.ID.String()),
			zap.String("booking_id", job.BookingID.String()),
			zap.String("kind", string(job.Kind)),
			zap.Int64("amount", job.Amount),
		)
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "settlement failed")
	c.metrics.ObserveSettlement(string(job.Kind), "failed")

	next := now.Add(Backoff(job.Attempts))
	c.log.Warn("Settlement failed, queued for retry",
		zap.Error(err),
		zap.String("job_id", job.ID.String()),
		zap.String("booking_id", job.BookingID.String()),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", job.Attempts+1),
		zap.Time("next_attempt_at", next),
	)
	if markErr := c.repo.Settlement.MarkFailed(ctx, job.ID, err.Error(), next); markErr != nil {
		return errors.Join(err, markErr)
	}
	return err
}

func (c *paymentCoordinator) call(ctx context.Context, job *entity.SettlementJob) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	key := job.ID.String()
	switch job.Kind {
	case entity.SettlementCapture:
		return c.gateway.Capture(ctx, job.PaymentRef, job.Amount, key)
	case entity.SettlementVoid:
		return c.gateway.Void(ctx, job.PaymentRef, key)
	case entity.SettlementRefund:
		return c.gateway.Refund(ctx, job.PaymentRef, job.Amount, key)
	}
	return fmt.Errorf("unknown settlement kind %q", job.Kind)
}

// RetryDue claims due jobs and settles them. It returns how many succeeded.
func (c *paymentCoordinator) RetryDue(ctx context.Context) (int, error) {
	jobs, err := c.repo.Settlement.Claim(ctx, c.now(), settlementLease, c.opts.MaxAttempts, c.opts.Batch)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if err := c.Settle(ctx, job); err == nil {
			done++
		}
	}
	return done, nil
}

// Backoff is the delay before retry number attempts+1: one minute doubled per
// failed attempt, capped at six hours.
func Backoff(attempts int) time.Duration {
	delay := settlementBaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= settlementMaxDelay {
			return settlementMaxDelay
		}
	}
	return delay
}
