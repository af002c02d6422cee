package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type holdState string

const (
	holdAuthorized holdState = "authorized"
	holdCaptured   holdState = "captured"
	holdVoided     holdState = "voided"
)

type hold struct {
	amount   int64
	captured int64
	refunded int64
	state    holdState
}

// FakeGateway is an in-memory gateway for development and tests. It must
// never be enabled in production.
type FakeGateway struct {
	mu    sync.Mutex
	holds map[string]*hold
	seen  map[string]error
	calls map[string]int

	// FailAuthorize, when set, is returned by every Authorize call.
	FailAuthorize error
	// FailSettle, when set, is returned by Capture, Void and Refund.
	FailSettle error
	// Block, when set, makes Authorize wait until the context is done.
	Block bool
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		holds: make(map[string]*hold),
		seen:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (g *FakeGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	if g.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls["authorize"]++
	if g.FailAuthorize != nil {
		return nil, g.FailAuthorize
	}

	ref := "fake_pi_" + uuid.NewString()
	g.holds[ref] = &hold{amount: req.Amount, state: holdAuthorized}
	return &Authorization{Ref: ref, ClientSecret: ref + "_secret"}, nil
}

func (g *FakeGateway) Capture(ctx context.Context, ref string, amount int64, idempotencyKey string) error {
	return g.settle("capture", idempotencyKey, func() error {
		h, ok := g.holds[ref]
		if !ok {
			return ErrUnknownRef
		}
		if h.state != holdAuthorized {
			return ErrAlreadySettled
		}
		if amount > h.amount {
			return fmt.Errorf("capture %d exceeds authorized %d", amount, h.amount)
		}
		h.state = holdCaptured
		h.captured = amount
		return nil
	})
}

func (g *FakeGateway) Void(ctx context.Context, ref string, idempotencyKey string) error {
	return g.settle("void", idempotencyKey, func() error {
		h, ok := g.holds[ref]
		if !ok {
			return ErrUnknownRef
		}
		if h.state != holdAuthorized {
			return ErrAlreadySettled
		}
		h.state = holdVoided
		return nil
	})
}

func (g *FakeGateway) Refund(ctx context.Context, ref string, amount int64, idempotencyKey string) error {
	return g.settle("refund", idempotencyKey, func() error {
		h, ok := g.holds[ref]
		if !ok {
			return ErrUnknownRef
		}
		if h.state != holdCaptured || h.refunded+amount > h.captured {
			return ErrAlreadySettled
		}
		h.refunded += amount
		return nil
	})
}

// settle replays the first outcome for a repeated idempotency key.
func (g *FakeGateway) settle(op, key string, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err, ok := g.seen[key]; ok && key != "" {
		return err
	}
	g.calls[op]++
	if g.FailSettle != nil {
		return g.FailSettle
	}

	err := fn()
	if key != "" {
		g.seen[key] = err
	}
	return err
}

// Calls returns how many times op reached the gateway, replays excluded.
func (g *FakeGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Captured returns the captured amount of a hold and whether it was voided.
func (g *FakeGateway) Captured(ref string) (amount int64, voided bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[ref]
	if !ok {
		return 0, false
	}
	return h.captured, h.state == holdVoided
}
