// internal/circulation/implementation.go
package circulation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"librarium/internal/apperr"
)

const instrumentationName = "librarium/circulation"

// service implements the Service interface.
type service struct {
	store  Store
	now    func() time.Time
	logger ContextualLogger
	tracer trace.Tracer

	meter    metric.Meter
	created  metric.Int64Counter
	extended metric.Int64Counter
	returned metric.Int64Counter
	rejected metric.Int64Counter
}

// Option configures the circulation service.
type Option func(*service)

// WithClock overrides time.Now. Every rule reads the clock afresh.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithLogger(logger ContextualLogger) Option {
	return func(s *service) { s.logger = logger }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *service) { s.tracer = tp.Tracer(instrumentationName) }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *service) { s.meter = mp.Meter(instrumentationName) }
}

// NewService creates a new circulation service instance.
func NewService(store Store, opts ...Option) Service {
	s := &service{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.created = s.counter("librarium.checkouts.created", "Checkouts created")
	s.extended = s.counter("librarium.checkouts.extended", "Checkouts extended")
	s.returned = s.counter("librarium.checkouts.returned", "Books returned")
	s.rejected = s.counter("librarium.checkouts.rejected", "Operations refused by a circulation rule")
	return s
}

func (s *service) counter(name, description string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		s.logger.WarnContext(context.Background(), "metric instrument unavailable",
			slog.String("name", name), slog.Any("error", err))
		return noop.Int64Counter{}
	}
	return c
}

// clock returns the current instant at the precision Postgres keeps.
func (s *service) clock() time.Time {
	return normalize(s.now())
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// finish records the outcome of an operation on its span and counters.
func (s *service) finish(ctx context.Context, span trace.Span, op string, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		return
	}
	s.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("reason", kind.String()),
	))
	s.logger.DebugContext(ctx, "checkout operation refused",
		slog.String("operation", op),
		slog.String("reason", err.Error()),
	)
}

// CreateCheckout validates and stores a checkout. Rules are checked in order,
// failing on the first one broken:
//  1. the book exists
//  2. the client exists
//  3. the book has no active checkout
//  4. the client holds fewer than MaxCheckoutsPerClient active checkouts
//  5. the checkout date is no earlier than BackdateGrace before now
//  6. the expiration date is after the checkout date
//
// The checks and the insert run in a single store transaction.
func (s *service) CreateCheckout(ctx context.Context, req NewCheckout) (checkout *Checkout, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.CreateCheckout", trace.WithAttributes(
		attribute.String("book.id", req.BookID.String()),
		attribute.String("client.id", req.ClientID.String()),
	))
	defer func() {
		s.finish(ctx, span, "create", err)
		span.End()
	}()

	c := &Checkout{
		ID:             uuid.New(),
		BookID:         req.BookID,
		ClientID:       req.ClientID,
		CheckoutDate:   normalize(req.CheckoutDate),
		ExpirationDate: normalize(req.ExpirationDate),
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := s.checkCreate(ctx, tx, c, s.clock()); err != nil {
			return err
		}
		return tx.Insert(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.created.Add(ctx, 1)
	span.SetAttributes(attribute.String("checkout.id", c.ID.String()))
	s.logger.InfoContext(ctx, "book checked out",
		slog.String("checkout_id", c.ID.String()),
		slog.String("book_id", c.BookID.String()),
		slog.String("client_id", c.ClientID.String()),
		slog.Time("expiration_date", c.ExpirationDate),
	)
	return c, nil
}

func (s *service) checkCreate(ctx context.Context, tx Tx, c *Checkout, now time.Time) error {
	ok, err := tx.BookExists(ctx, c.BookID)
	if err != nil {
		return fmt.Errorf("failed to look up book: %w", err)
	}
	if !ok {
		return fmt.Errorf("book %s: %w", c.BookID, ErrBookNotFound)
	}

	ok, err = tx.ClientExists(ctx, c.ClientID)
	if err != nil {
		return fmt.Errorf("failed to look up client: %w", err)
	}
	if !ok {
		return fmt.Errorf("client %s: %w", c.ClientID, ErrClientNotFound)
	}

	if err := checkLoanLimits(ctx, tx, c, now); err != nil {
		return err
	}

	if c.CheckoutDate.Before(now.Add(-BackdateGrace)) {
		return ErrCheckoutDateInPast
	}
	if !c.ExpirationDate.After(c.CheckoutDate) {
		return ErrExpirationBeforeCheckout
	}
	return nil
}

// checkLoanLimits fails when making c active at now would give its book a
// second active checkout or its client more than MaxCheckoutsPerClient.
// c itself must not be active at now.
func checkLoanLimits(ctx context.Context, tx Tx, c *Checkout, now time.Time) error {
	onLoan, err := tx.HasActiveForBook(ctx, c.BookID, now)
	if err != nil {
		return fmt.Errorf("failed to check availability: %w", err)
	}
	if onLoan {
		return fmt.Errorf("book %s: %w", c.BookID, ErrBookAlreadyCheckedOut)
	}

	active, err := tx.CountActiveForClient(ctx, c.ClientID, now)
	if err != nil {
		return fmt.Errorf("failed to count client checkouts: %w", err)
	}
	if active >= MaxCheckoutsPerClient {
		return fmt.Errorf("client %s: %w", c.ClientID, ErrMaxCheckoutsExceeded)
	}
	return nil
}

// QuickCheckout lends a book from now for DefaultCheckoutDays.
func (s *service) QuickCheckout(ctx context.Context, bookID, clientID uuid.UUID) (*Checkout, error) {
	now := s.clock()
	return s.CreateCheckout(ctx, NewCheckout{
		BookID:         bookID,
		ClientID:       clientID,
		CheckoutDate:   now,
		ExpirationDate: now.AddDate(0, 0, DefaultCheckoutDays),
	})
}

// ExtendCheckout pushes the expiration date of an active checkout forward by
// days, or by DefaultExtensionDays when days is zero. days may not exceed
// MaxExtensionDays. Expired checkouts are refused and left untouched.
func (s *service) ExtendCheckout(ctx context.Context, id uuid.UUID, days int) (checkout *Checkout, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.ExtendCheckout", trace.WithAttributes(
		attribute.String("checkout.id", id.String()),
		attribute.Int("days", days),
	))
	defer func() {
		s.finish(ctx, span, "extend", err)
		span.End()
	}()

	if days < 0 {
		return nil, fmt.Errorf("%d days: %w", days, ErrInvalidExtension)
	}
	if days > MaxExtensionDays {
		return nil, fmt.Errorf("%d days: %w", days, ErrExtensionTooLong)
	}
	if days == 0 {
		days = DefaultExtensionDays
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !current.ActiveAt(s.clock()) {
			return fmt.Errorf("checkout %s: %w", id, ErrCheckoutExpired)
		}

		checkout, err = tx.SetExpiration(ctx, id, current.ExpirationDate.AddDate(0, 0, days))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.extended.Add(ctx, 1)
	s.logger.InfoContext(ctx, "checkout extended",
		slog.String("checkout_id", id.String()),
		slog.Int("days", days),
		slog.Time("expiration_date", checkout.ExpirationDate),
	)
	return checkout, nil
}

// UpdateCheckout replaces the expiration date. The new date must fall after
// the stored checkout date. Moving an expired checkout's expiration into the
// future is subject to the same book and client limits as a new checkout.
func (s *service) UpdateCheckout(ctx context.Context, id uuid.UUID, update Update) (checkout *Checkout, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.UpdateCheckout", trace.WithAttributes(
		attribute.String("checkout.id", id.String()),
	))
	defer func() {
		s.finish(ctx, span, "update", err)
		span.End()
	}()

	err = s.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if update.ExpirationDate == nil {
			checkout = current
			return nil
		}

		expiration := normalize(*update.ExpirationDate)
		if !expiration.After(current.CheckoutDate) {
			return ErrExpirationBeforeCheckout
		}

		// reviving an expired loan is a new loan for the availability rules
		now := s.clock()
		if !current.ActiveAt(now) && expiration.After(now) {
			if err := checkLoanLimits(ctx, tx, current, now); err != nil {
				return err
			}
		}
		checkout, err = tx.SetExpiration(ctx, id, expiration)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "checkout updated", slog.String("checkout_id", id.String()))
	return checkout, nil
}

// ReturnBook deletes the checkout; the book is available again at once.
func (s *service) ReturnBook(ctx context.Context, id uuid.UUID) (ok bool, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.ReturnBook", trace.WithAttributes(
		attribute.String("checkout.id", id.String()),
	))
	defer func() {
		s.finish(ctx, span, "return", err)
		span.End()
	}()

	err = s.store.InTx(ctx, func(tx Tx) error {
		deleted, err := tx.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("checkout %s: %w", id, ErrCheckoutNotFound)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	s.returned.Add(ctx, 1)
	s.logger.InfoContext(ctx, "book returned", slog.String("checkout_id", id.String()))
	return true, nil
}

func (s *service) IsBookAvailable(ctx context.Context, bookID uuid.UUID) (bool, error) {
	onLoan, err := s.store.HasActiveForBook(ctx, bookID, s.clock())
	if err != nil {
		return false, err
	}
	return !onLoan, nil
}

func (s *service) GetAll(ctx context.Context) ([]*Checkout, error) {
	return s.store.List(ctx, Filter{})
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Checkout, error) {
	return s.store.GetByID(ctx, id)
}

func (s *service) GetByClient(ctx context.Context, clientID uuid.UUID) ([]*Checkout, error) {
	return s.store.List(ctx, Filter{ClientID: &clientID})
}

func (s *service) GetByBook(ctx context.Context, bookID uuid.UUID) ([]*Checkout, error) {
	return s.store.List(ctx, Filter{BookID: &bookID})
}

func (s *service) GetActive(ctx context.Context) ([]*Checkout, error) {
	now := s.clock()
	return s.store.List(ctx, Filter{ActiveAt: &now})
}

func (s *service) GetExpired(ctx context.Context) ([]*Checkout, error) {
	now := s.clock()
	return s.store.List(ctx, Filter{ExpiredAt: &now})
}

func (s *service) GetClientActive(ctx context.Context, clientID uuid.UUID) ([]*Checkout, error) {
	now := s.clock()
	return s.store.List(ctx, Filter{ClientID: &clientID, ActiveAt: &now})
}

// Search applies the first criterion that is set; see SearchCriteria.
func (s *service) Search(ctx context.Context, criteria SearchCriteria) ([]*Checkout, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.Search")
	defer span.End()

	filter, by := criteria.filter(s.clock())
	span.SetAttributes(attribute.String("search.by", by))

	checkouts, err := s.store.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return checkouts, nil
}

// filter translates the winning criterion into a store filter and names it.
func (c SearchCriteria) filter(now time.Time) (Filter, string) {
	switch {
	case c.ClientID != nil:
		return Filter{ClientID: c.ClientID}, "client"
	case c.BookID != nil:
		return Filter{BookID: c.BookID}, "book"
	case c.StartDate != nil && c.EndDate != nil:
		from, to := normalize(*c.StartDate), normalize(*c.EndDate)
		return Filter{CheckoutFrom: &from, CheckoutTo: &to}, "date_range"
	case c.ActiveOnly:
		return Filter{ActiveAt: &now}, "active"
	case c.ExpiredOnly:
		return Filter{ExpiredAt: &now}, "expired"
	default:
		return Filter{}, "all"
	}
}
