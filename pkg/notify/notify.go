// Package notify tells the other party about booking events. Delivery is
// best effort: a failed notification never fails the booking operation.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingDeclined  EventType = "booking.declined"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingCompleted EventType = "booking.completed"
	EventBookingNoShow    EventType = "booking.no_show"
	EventPaymentConfirmed EventType = "payment.confirmed"
)

type Event struct {
	Type       EventType `json:"type"`
	BookingID  uuid.UUID `json:"booking_id"`
	Reference  string    `json:"reference"`
	ClientID   uuid.UUID `json:"client_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Status     string    `json:"status"`
	StartAt    time.Time `json:"start_at"`
	// Recipient is the user who should hear about the event.
	Recipient  uuid.UUID `json:"recipient"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// RedisPublisher publishes events as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Dispatch(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// LogDispatcher only logs events. Used when Redis is not configured.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.With(zap.String("dispatcher", "log"))}
}

func (d *LogDispatcher) Dispatch(_ context.Context, event Event) error {
	d.log.Info("Booking event",
		zap.String("type", string(event.Type)),
		zap.String("booking_id", event.BookingID.String()),
		zap.String("recipient", event.Recipient.String()),
		zap.String("status", event.Status),
	)
	return nil
}

// Async dispatches on a background goroutine with a bounded timeout and only
// logs failures.
type Async struct {
	next    Dispatcher
	timeout time.Duration
	log     *zap.Logger
}

func NewAsync(next Dispatcher, timeout time.Duration, log *zap.Logger) *Async {
	return &Async{
		next:    next,
		timeout: timeout,
		log:     log.With(zap.String("dispatcher", "async")),
	}
}

// Dispatch never blocks on delivery and always returns nil.
func (a *Async) Dispatch(_ context.Context, event Event) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.next.Dispatch(ctx, event); err != nil {
			a.log.Warn("Notification dropped",
				zap.Error(err),
				zap.String("type", string(event.Type)),
				zap.String("booking_id", event.BookingID.String()),
			)
		}
	}()
	return nil
}
