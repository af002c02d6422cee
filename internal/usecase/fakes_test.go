package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coiffeur-booking/internal/data/entity"
	"coiffeur-booking/internal/data/repository"
	"coiffeur-booking/internal/dto/request"
	"coiffeur-booking/internal/scheduling"
	"coiffeur-booking/pkg/cache"
	"coiffeur-booking/pkg/notify"
	"coiffeur-booking/pkg/payment"
)

// memLedger is an in-memory BookingRepository. One mutex makes Reserve's
// overlap check and insert atomic, like the advisory lock does in Postgres.
type memLedger struct {
	mu          sync.Mutex
	bookings    map[uuid.UUID]*entity.Booking
	settlements *memSettlements

	reserveCalls int
	rangeCalls   int

	// takenReferences makes the next Reserve calls fail as reference collisions.
	takenReferences int
	references      []string

	// afterRangeRead runs once, outside the lock, after the next calendar read.
	afterRangeRead func()
}

func newMemLedger(settlements *memSettlements) *memLedger {
	return &memLedger{bookings: make(map[uuid.UUID]*entity.Booking), settlements: settlements}
}

func cloneBooking(b *entity.Booking) *entity.Booking {
	c := *b
	c.Items = append([]entity.BookingItem(nil), b.Items...)
	return &c
}

func (m *memLedger) Reserve(_ context.Context, b *entity.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reserveCalls++
	m.references = append(m.references, b.Reference)
	if m.takenReferences > 0 {
		m.takenReferences--
		return fmt.Errorf("reference %s: %w", b.Reference, repository.ErrDuplicateReference)
	}
	want := scheduling.Interval{Start: b.StartAt, End: b.EndAt}
	for _, other := range m.bookings {
		if other.ProviderID != b.ProviderID || !other.Status.HoldsSlot() {
			continue
		}
		if want.Overlaps(scheduling.Interval{Start: other.StartAt, End: other.EndAt}) {
			return fmt.Errorf("overlaps booking %s: %w", other.ID, scheduling.ErrSlotConflict)
		}
	}
	m.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (m *memLedger) Transition(_ context.Context, id uuid.UUID, fn repository.TransitionFunc) (*entity.Booking, *entity.SettlementJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.bookings[id]
	if !ok {
		return nil, nil, fmt.Errorf("booking %s: %w", id, scheduling.ErrNotFound)
	}

	working := cloneBooking(stored)
	job, err := fn(working)
	if err != nil {
		return nil, nil, err
	}

	m.bookings[id] = working
	if job != nil {
		m.settlements.insert(job)
	}
	return cloneBooking(working), job, nil
}

func (m *memLedger) SetPaymentRef(_ context.Context, id uuid.UUID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok || b.Status != entity.BookingStatusPendingPayment || b.PaymentRef != nil {
		return scheduling.ErrInvalidState
	}
	b.PaymentRef = &ref
	return nil
}

func (m *memLedger) FindByID(_ context.Context, id uuid.UUID) (*entity.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	return cloneBooking(b), nil
}

func (m *memLedger) FindByClientID(_ context.Context, clientID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*entity.Booking
	for _, b := range m.bookings {
		if b.ClientID == clientID {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLedger) CountByClientID(_ context.Context, clientID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, b := range m.bookings {
		if b.ClientID == clientID {
			n++
		}
	}
	return n, nil
}

func (m *memLedger) FindByProviderInRange(_ context.Context, providerID uuid.UUID, from, to time.Time, statuses []entity.BookingStatus) ([]*entity.Booking, error) {
	m.mu.Lock()
	m.rangeCalls++
	window := scheduling.Interval{Start: from, End: to}
	var out []*entity.Booking
	for _, b := range m.bookings {
		if b.ProviderID != providerID || !window.Overlaps(scheduling.Interval{Start: b.StartAt, End: b.EndAt}) {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, b.Status) {
			continue
		}
		out = append(out, cloneBooking(b))
	}
	hook := m.afterRangeRead
	m.afterRangeRead = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func hasStatus(statuses []entity.BookingStatus, s entity.BookingStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (m *memLedger) FindStalePending(_ context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uuid.UUID
	for _, b := range m.bookings {
		if b.Status == entity.BookingStatusPendingPayment && b.PaymentConfirmedAt == nil && b.CreatedAt.Before(createdBefore) {
			ids = append(ids, b.ID)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (m *memLedger) get(id uuid.UUID) *entity.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil
	}
	return cloneBooking(b)
}

func (m *memLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

type memSettlements struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*entity.SettlementJob
}

func newMemSettlements() *memSettlements {
	return &memSettlements{jobs: make(map[uuid.UUID]*entity.SettlementJob)}
}

func (m *memSettlements) insert(job *entity.SettlementJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *job
	m.jobs[job.ID] = &c
}

func (m *memSettlements) Claim(_ context.Context, now time.Time, lease time.Duration, maxAttempts, limit int) ([]*entity.SettlementJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*entity.SettlementJob
	for _, job := range m.jobs {
		if len(out) == limit {
			break
		}
		if job.DoneAt != nil || job.NextAttemptAt.After(now) || job.Attempts >= maxAttempts {
			continue
		}
		job.NextAttemptAt = now.Add(lease)
		c := *job
		out = append(out, &c)
	}
	return out, nil
}

func (m *memSettlements) MarkDone(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[id]; ok && job.DoneAt == nil {
		job.DoneAt = &at
		job.Attempts++
		job.LastError = nil
	}
	return nil
}

func (m *memSettlements) MarkFailed(_ context.Context, id uuid.UUID, cause string, nextAttemptAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[id]; ok && job.DoneAt == nil {
		job.Attempts++
		job.LastError = &cause
		job.NextAttemptAt = nextAttemptAt
	}
	return nil
}

func (m *memSettlements) FindByBookingID(_ context.Context, bookingID uuid.UUID) ([]*entity.SettlementJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*entity.SettlementJob
	for _, job := range m.jobs {
		if job.BookingID == bookingID {
			c := *job
			out = append(out, &c)
		}
	}
	return out, nil
}

type memProviders struct {
	providers map[uuid.UUID]*entity.Provider
}

func (m *memProviders) FindByID(_ context.Context, id uuid.UUID) (*entity.Provider, error) {
	p, ok := m.providers[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

type memServices struct {
	services []*entity.Service
}

func (m *memServices) FindByProviderID(_ context.Context, providerID uuid.UUID) ([]*entity.Service, error) {
	var out []*entity.Service
	for _, svc := range m.services {
		if svc.ProviderID == providerID && svc.Active {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (m *memServices) FindByIDs(_ context.Context, providerID uuid.UUID, ids []uuid.UUID) ([]*entity.Service, error) {
	var out []*entity.Service
	for _, svc := range m.services {
		if svc.ProviderID != providerID {
			continue
		}
		for _, id := range ids {
			if svc.ID == id {
				out = append(out, svc)
			}
		}
	}
	return out, nil
}

type memSessions struct {
	expired int64
}

func (m *memSessions) FindValidSession(context.Context, string) (*entity.Session, error) {
	return nil, nil
}

func (m *memSessions) CleanExpiredSessions(context.Context) (int64, error) {
	n := m.expired
	m.expired = 0
	return n, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Dispatch(_ context.Context, event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) ofType(t notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []notify.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Monday morning, the day before most test appointments.
var testNow = time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

const testDate = "2026-03-10"

type envOptions struct {
	policy         scheduling.Policy
	paymentTimeout time.Duration
	withCache      bool
}

type testEnv struct {
	clock       *testClock
	ledger      *memLedger
	settlements *memSettlements
	sessions    *memSessions
	gateway     *payment.FakeGateway
	notifier    *recordingNotifier
	redis       *miniredis.Miniredis

	provider *entity.Provider
	coupe    *entity.Service
	brushing *entity.Service
	retired  *entity.Service

	repo         *repository.Repository
	grid         scheduling.Grid
	booking      BookingService
	payments     PaymentCoordinator
	availability AvailabilityService
	sweep        SweepService
}

func newTestEnv(t *testing.T, opts ...func(*envOptions)) *testEnv {
	t.Helper()

	o := envOptions{policy: scheduling.DefaultPolicy(), paymentTimeout: time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	grid, err := scheduling.NewGrid(scheduling.GridSpec{
		Timezone:   "UTC",
		Open:       "09:00",
		Close:      "22:30",
		StepMins:   15,
		BreakStart: "12:00",
		BreakEnd:   "13:00",
		LeadMins:   30,
	})
	require.NoError(t, err)

	env := &testEnv{
		clock:       &testClock{now: testNow},
		settlements: newMemSettlements(),
		sessions:    &memSessions{},
		gateway:     payment.NewFakeGateway(),
		notifier:    &recordingNotifier{},
		grid:        grid,
	}
	env.ledger = newMemLedger(env.settlements)

	env.provider = &entity.Provider{Name: "Salon Amélie", OffersHomeService: true, HomeServiceFee: 1500, Active: true}
	env.provider.ID = uuid.New()
	env.coupe = &entity.Service{ProviderID: env.provider.ID, Name: "Coupe", Price: 3000, DurationMinutes: 30, Active: true}
	env.coupe.ID = uuid.New()
	env.brushing = &entity.Service{ProviderID: env.provider.ID, Name: "Brushing", Price: 1500, DurationMinutes: 15, Active: true}
	env.brushing.ID = uuid.New()
	env.retired = &entity.Service{ProviderID: env.provider.ID, Name: "Permanente", Price: 6000, DurationMinutes: 90, Active: false}
	env.retired.ID = uuid.New()

	env.repo = &repository.Repository{
		Session:    env.sessions,
		Provider:   &memProviders{providers: map[uuid.UUID]*entity.Provider{env.provider.ID: env.provider}},
		Service:    &memServices{services: []*entity.Service{env.coupe, env.brushing, env.retired}},
		Booking:    env.ledger,
		Settlement: env.settlements,
	}

	var availabilityCache *cache.AvailabilityCache
	if o.withCache {
		env.redis = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: env.redis.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		availabilityCache = cache.NewAvailabilityCache(client, time.Minute, zap.NewNop())
	}

	log := zap.NewNop()
	env.payments = NewPaymentCoordinator(env.repo, env.gateway, PaymentOptions{
		Currency: "eur",
		Timeout:  o.paymentTimeout,
	}, nil, env.clock.Now, log)
	env.booking = NewBookingService(env.repo, BookingDeps{
		Grid:      grid,
		Lifecycle: scheduling.NewLifecycle(o.policy),
		Payments:  env.payments,
		Cache:     availabilityCache,
		Notifier:  env.notifier,
		Now:       env.clock.Now,
	}, log)
	env.availability = NewAvailabilityService(env.repo, grid, availabilityCache, nil, env.clock.Now, log)
	env.sweep = NewSweepService(env.repo, env.booking, 30*time.Minute, nil, env.clock.Now, log)

	return env
}

func withPolicy(fn func(*scheduling.Policy)) func(*envOptions) {
	return func(o *envOptions) { fn(&o.policy) }
}

func withCache() func(*envOptions) {
	return func(o *envOptions) { o.withCache = true }
}

func newClient() scheduling.Actor {
	return scheduling.Actor{ID: uuid.New(), Role: scheduling.RoleClient}
}

func (e *testEnv) providerActor() scheduling.Actor {
	return scheduling.Actor{ID: e.provider.ID, Role: scheduling.RoleProvider}
}

func (e *testEnv) request(start string, services ...*entity.Service) *request.CreateBookingRequest {
	ids := make([]string, len(services))
	for i, svc := range services {
		ids[i] = svc.ID.String()
	}
	return &request.CreateBookingRequest{
		ProviderID: e.provider.ID.String(),
		ServiceIDs: ids,
		Date:       testDate,
		StartTime:  start,
		Location:   string(entity.LocationSalon),
	}
}

// book creates a booking at start and returns its ledger copy.
func (e *testEnv) book(t *testing.T, client scheduling.Actor, start string, services ...*entity.Service) *entity.Booking {
	t.Helper()
	resp, err := e.booking.CreateBooking(context.Background(), client, e.request(start, services...))
	require.NoError(t, err)
	b := e.ledger.get(uuid.MustParse(resp.ID))
	require.NotNil(t, b)
	return b
}

// confirm simulates the payment webhook for b.
func (e *testEnv) confirm(t *testing.T, b *entity.Booking) {
	t.Helper()
	require.NotNil(t, b.PaymentRef)
	_, err := e.booking.ConfirmPayment(context.Background(), &request.ConfirmPaymentRequest{
		BookingID:  b.ID.String(),
		PaymentRef: *b.PaymentRef,
	})
	require.NoError(t, err)
}
