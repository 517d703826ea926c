// internal/circulation/circulation_test.go
package circulation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"librarium/internal/apperr"
	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/clients"
)

var start = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// clock is a settable time source shared by a test and the service.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// registry answers existence checks for books and clients.
type registry struct {
	mu    sync.Mutex
	books map[uuid.UUID]bool
	users map[uuid.UUID]bool
}

func newRegistry() *registry {
	return &registry{books: map[uuid.UUID]bool{}, users: map[uuid.UUID]bool{}}
}

func (r *registry) addBook() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.books[id] = true
	return id
}

func (r *registry) addClient() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.users[id] = true
	return id
}

func (r *registry) BookExists(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.books[id], nil
}

func (r *registry) ClientExists(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture() (circulation.Service, *registry, *clock) {
	reg := newRegistry()
	clk := &clock{now: start}
	svc := circulation.NewService(circulation.NewMemoryStore(reg, reg),
		circulation.WithClock(clk.Now),
		circulation.WithLogger(discard()),
	)
	return svc, reg, clk
}

func ptr[T any](v T) *T { return &v }

func TestCreateCheckout_RuleOrder(t *testing.T) {
	ctx := context.Background()
	svc, reg, _ := newFixture()

	book, busyBook := reg.addBook(), reg.addBook()
	client, fullClient := reg.addClient(), reg.addClient()

	_, err := svc.QuickCheckout(ctx, busyBook, client)
	require.NoError(t, err)
	for i := 0; i < circulation.MaxCheckoutsPerClient; i++ {
		_, err := svc.QuickCheckout(ctx, reg.addBook(), fullClient)
		require.NoError(t, err)
	}

	valid := func(b, c uuid.UUID) circulation.NewCheckout {
		return circulation.NewCheckout{BookID: b, ClientID: c, CheckoutDate: start, ExpirationDate: start.Add(48 * time.Hour)}
	}

	testCases := []struct {
		name string
		req  circulation.NewCheckout
		want error
		kind apperr.Kind
	}{
		{
			name: "unknown book wins over everything",
			req:  circulation.NewCheckout{BookID: uuid.New(), ClientID: uuid.New(), CheckoutDate: start.AddDate(-1, 0, 0), ExpirationDate: start.AddDate(-2, 0, 0)},
			want: circulation.ErrBookNotFound,
			kind: apperr.KindNotFound,
		},
		{
			name: "unknown client",
			req:  circulation.NewCheckout{BookID: busyBook, ClientID: uuid.New(), CheckoutDate: start, ExpirationDate: start},
			want: circulation.ErrClientNotFound,
			kind: apperr.KindNotFound,
		},
		{
			name: "book already out is checked before the client limit",
			req:  valid(busyBook, fullClient),
			want: circulation.ErrBookAlreadyCheckedOut,
			kind: apperr.KindConflict,
		},
		{
			name: "client at the limit",
			req:  circulation.NewCheckout{BookID: book, ClientID: fullClient, CheckoutDate: start.AddDate(0, -1, 0), ExpirationDate: start},
			want: circulation.ErrMaxCheckoutsExceeded,
			kind: apperr.KindConflict,
		},
		{
			name: "checkout date beyond the grace window",
			req:  circulation.NewCheckout{BookID: book, ClientID: client, CheckoutDate: start.Add(-25 * time.Hour), ExpirationDate: start.Add(-26 * time.Hour)},
			want: circulation.ErrCheckoutDateInPast,
			kind: apperr.KindInvalid,
		},
		{
			name: "expiration equal to checkout date",
			req:  circulation.NewCheckout{BookID: book, ClientID: client, CheckoutDate: start, ExpirationDate: start},
			want: circulation.ErrExpirationBeforeCheckout,
			kind: apperr.KindInvalid,
		},
		{
			name: "expiration before checkout date",
			req:  circulation.NewCheckout{BookID: book, ClientID: client, CheckoutDate: start, ExpirationDate: start.Add(-time.Second)},
			want: circulation.ErrExpirationBeforeCheckout,
			kind: apperr.KindInvalid,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			checkout, err := svc.CreateCheckout(ctx, tc.req)
			assert.Nil(t, checkout)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}

	t.Run("backdating within a day is allowed", func(t *testing.T) {
		c, err := svc.CreateCheckout(ctx, circulation.NewCheckout{
			BookID: book, ClientID: client,
			CheckoutDate:   start.Add(-23 * time.Hour),
			ExpirationDate: start.Add(time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, start.Add(-23*time.Hour), c.CheckoutDate)
	})
}

func TestQuickCheckout_Scenario(t *testing.T) {
	ctx := context.Background()
	books := catalog.NewService(catalog.NewMemoryRepository(), discard())
	userID := uuid.New()
	profiles := clients.NewService(clients.NewMemoryRepository(), knownUser(userID), clients.WithLogger(discard()))

	clk := &clock{now: start}
	svc := circulation.NewService(circulation.NewMemoryStore(books, profiles),
		circulation.WithClock(clk.Now),
		circulation.WithLogger(discard()),
	)

	book, err := books.CreateBook(ctx, "Dune", "Frank Herbert", "0306406152")
	require.NoError(t, err)
	client, err := profiles.CreateClient(ctx, clients.NewClient{
		UserID: userID, Email: "reader@example.com", Name: "Paul", Surname: "Atreides",
		Birthdate: clients.NewDate(1990, 1, 1),
	})
	require.NoError(t, err)

	checkout, err := svc.QuickCheckout(ctx, book.ID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, start, checkout.CheckoutDate)
	assert.Equal(t, start.AddDate(0, 0, circulation.DefaultCheckoutDays), checkout.ExpirationDate)

	available, err := svc.IsBookAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, available)

	_, err = svc.QuickCheckout(ctx, book.ID, client.ID)
	assert.ErrorIs(t, err, circulation.ErrBookAlreadyCheckedOut)

	returned, err := svc.ReturnBook(ctx, checkout.ID)
	require.NoError(t, err)
	assert.True(t, returned)

	available, err = svc.IsBookAvailable(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, available)
}

type knownUser uuid.UUID

func (k knownUser) UserExists(_ context.Context, id uuid.UUID) (bool, error) {
	return id == uuid.UUID(k), nil
}

func TestMaxCheckoutsPerClient(t *testing.T) {
	ctx := context.Background()
	svc, reg, clk := newFixture()
	client := reg.addClient()

	var first *circulation.Checkout
	for i := 0; i < circulation.MaxCheckoutsPerClient; i++ {
		c, err := svc.QuickCheckout(ctx, reg.addBook(), client)
		require.NoError(t, err)
		if first == nil {
			first = c
		}
	}

	_, err := svc.QuickCheckout(ctx, reg.addBook(), client)
	assert.ErrorIs(t, err, circulation.ErrMaxCheckoutsExceeded)

	// expired checkouts no longer count against the limit
	_, err = svc.UpdateCheckout(ctx, first.ID, circulation.Update{ExpirationDate: ptr(start.Add(time.Hour))})
	require.NoError(t, err)
	clk.Advance(2 * time.Hour)

	_, err = svc.QuickCheckout(ctx, reg.addBook(), client)
	assert.NoError(t, err)

	active, err := svc.GetClientActive(ctx, client)
	require.NoError(t, err)
	assert.Len(t, active, circulation.MaxCheckoutsPerClient)

	all, err := svc.GetByClient(ctx, client)
	require.NoError(t, err)
	assert.Len(t, all, circulation.MaxCheckoutsPerClient+1)
}

func TestExpiredBookCanBeCheckedOutAgain(t *testing.T) {
	ctx := context.Background()
	svc, reg, clk := newFixture()
	book, client := reg.addBook(), reg.addClient()

	_, err := svc.QuickCheckout(ctx, book, client)
	require.NoError(t, err)

	clk.Advance(circulation.DefaultCheckoutDays * 24 * time.Hour)

	available, err := svc.IsBookAvailable(ctx, book)
	require.NoError(t, err)
	assert.True(t, available, "a checkout expiring exactly now is no longer active")

	_, err = svc.QuickCheckout(ctx, book, client)
	assert.NoError(t, err)
}

func TestExtendCheckout(t *testing.T) {
	ctx := context.Background()
	svc, reg, clk := newFixture()

	checkout, err := svc.QuickCheckout(ctx, reg.addBook(), reg.addClient())
	require.NoError(t, err)

	t.Run("zero days uses the default", func(t *testing.T) {
		extended, err := svc.ExtendCheckout(ctx, checkout.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, checkout.ExpirationDate.AddDate(0, 0, circulation.DefaultExtensionDays), extended.ExpirationDate)
		checkout = extended
	})

	t.Run("explicit days", func(t *testing.T) {
		extended, err := svc.ExtendCheckout(ctx, checkout.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, checkout.ExpirationDate.AddDate(0, 0, 3), extended.ExpirationDate)
		checkout = extended
	})

	t.Run("negative days", func(t *testing.T) {
		_, err := svc.ExtendCheckout(ctx, checkout.ID, -1)
		assert.ErrorIs(t, err, circulation.ErrInvalidExtension)
	})

	t.Run("more than a year", func(t *testing.T) {
		for _, days := range []int{circulation.MaxExtensionDays + 1, 1 << 40, math.MaxInt64 / 2} {
			_, err := svc.ExtendCheckout(ctx, checkout.ID, days)
			assert.ErrorIs(t, err, circulation.ErrExtensionTooLong)
			assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
		}

		stored, err := svc.GetByID(ctx, checkout.ID)
		require.NoError(t, err)
		assert.Equal(t, checkout, stored)
	})

	t.Run("exactly a year", func(t *testing.T) {
		extended, err := svc.ExtendCheckout(ctx, checkout.ID, circulation.MaxExtensionDays)
		require.NoError(t, err)
		assert.Equal(t, checkout.ExpirationDate.AddDate(0, 0, circulation.MaxExtensionDays), extended.ExpirationDate)
		checkout = extended
	})

	t.Run("unknown checkout", func(t *testing.T) {
		_, err := svc.ExtendCheckout(ctx, uuid.New(), 1)
		assert.ErrorIs(t, err, circulation.ErrCheckoutNotFound)
	})

	t.Run("expired checkout is refused and unchanged", func(t *testing.T) {
		clk.Advance(checkout.ExpirationDate.Sub(clk.Now()))

		_, err := svc.ExtendCheckout(ctx, checkout.ID, 7)
		assert.ErrorIs(t, err, circulation.ErrCheckoutExpired)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

		stored, err := svc.GetByID(ctx, checkout.ID)
		require.NoError(t, err)
		assert.Equal(t, checkout, stored)
	})
}

func TestUpdateCheckout(t *testing.T) {
	ctx := context.Background()
	svc, reg, _ := newFixture()

	checkout, err := svc.QuickCheckout(ctx, reg.addBook(), reg.addClient())
	require.NoError(t, err)

	unchanged, err := svc.UpdateCheckout(ctx, checkout.ID, circulation.Update{})
	require.NoError(t, err)
	assert.Equal(t, checkout, unchanged)

	_, err = svc.UpdateCheckout(ctx, checkout.ID, circulation.Update{ExpirationDate: ptr(checkout.CheckoutDate)})
	assert.ErrorIs(t, err, circulation.ErrExpirationBeforeCheckout)

	// an update may shorten the loan into the past as long as it stays after the checkout date
	shorter := checkout.CheckoutDate.Add(time.Minute)
	updated, err := svc.UpdateCheckout(ctx, checkout.ID, circulation.Update{ExpirationDate: &shorter})
	require.NoError(t, err)
	assert.Equal(t, shorter, updated.ExpirationDate)
	assert.Equal(t, checkout.CheckoutDate, updated.CheckoutDate)

	_, err = svc.UpdateCheckout(ctx, uuid.New(), circulation.Update{ExpirationDate: &shorter})
	assert.ErrorIs(t, err, circulation.ErrCheckoutNotFound)
}

func TestUpdateCheckout_RevivingAnExpiredLoan(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name    string
		arrange func(t *testing.T, svc circulation.Service, reg *registry, old *circulation.Checkout)
		want    error
	}{
		{
			name: "book lent again meanwhile",
			arrange: func(t *testing.T, svc circulation.Service, reg *registry, old *circulation.Checkout) {
				_, err := svc.QuickCheckout(ctx, old.BookID, reg.addClient())
				require.NoError(t, err)
			},
			want: circulation.ErrBookAlreadyCheckedOut,
		},
		{
			name: "client at the limit meanwhile",
			arrange: func(t *testing.T, svc circulation.Service, reg *registry, old *circulation.Checkout) {
				for i := 0; i < circulation.MaxCheckoutsPerClient; i++ {
					_, err := svc.QuickCheckout(ctx, reg.addBook(), old.ClientID)
					require.NoError(t, err)
				}
			},
			want: circulation.ErrMaxCheckoutsExceeded,
		},
		{
			name:    "nothing changed meanwhile",
			arrange: func(*testing.T, circulation.Service, *registry, *circulation.Checkout) {},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			svc, reg, clk := newFixture()
			old, err := svc.CreateCheckout(ctx, circulation.NewCheckout{
				BookID: reg.addBook(), ClientID: reg.addClient(),
				CheckoutDate: start, ExpirationDate: start.Add(time.Hour),
			})
			require.NoError(t, err)
			clk.Advance(2 * time.Hour)
			tc.arrange(t, svc, reg, old)

			// act
			_, err = svc.UpdateCheckout(ctx, old.ID, circulation.Update{ExpirationDate: ptr(clk.Now().Add(48 * time.Hour))})

			// assert
			if tc.want == nil {
				require.NoError(t, err)
				active, err := svc.GetClientActive(ctx, old.ClientID)
				require.NoError(t, err)
				assert.Len(t, active, 1)
				return
			}
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

			stored, err := svc.GetByID(ctx, old.ID)
			require.NoError(t, err)
			assert.Equal(t, old, stored)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, reg, _ := newFixture()

	created, err := svc.CreateCheckout(ctx, circulation.NewCheckout{
		BookID: reg.addBook(), ClientID: reg.addClient(),
		CheckoutDate: start, ExpirationDate: start.AddDate(0, 0, 3),
	})
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	ok, err := svc.ReturnBook(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, circulation.ErrCheckoutNotFound)

	_, err = svc.ReturnBook(ctx, created.ID)
	assert.ErrorIs(t, err, circulation.ErrCheckoutNotFound)
}

func TestReadAccessors(t *testing.T) {
	ctx := context.Background()
	svc, reg, clk := newFixture()
	book, client := reg.addBook(), reg.addClient()

	short, err := svc.CreateCheckout(ctx, circulation.NewCheckout{
		BookID: book, ClientID: client, CheckoutDate: start, ExpirationDate: start.Add(time.Hour),
	})
	require.NoError(t, err)
	clk.Advance(time.Minute)
	long, err := svc.QuickCheckout(ctx, reg.addBook(), client)
	require.NoError(t, err)

	ids := func(cs []*circulation.Checkout) []uuid.UUID {
		out := make([]uuid.UUID, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}

	all, err := svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{short.ID, long.ID}, ids(all))

	byBook, err := svc.GetByBook(ctx, book)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{short.ID}, ids(byBook))

	active, err := svc.GetActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	// active/expired is evaluated at the moment of each call
	clk.Advance(time.Hour)

	active, err = svc.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{long.ID}, ids(active))

	expired, err := svc.GetExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{short.ID}, ids(expired))
}

func TestSearch_Precedence(t *testing.T) {
	ctx := context.Background()
	svc, reg, clk := newFixture()
	alice, bob := reg.addClient(), reg.addClient()
	bookA, bookB, bookC := reg.addBook(), reg.addBook(), reg.addBook()

	a, err := svc.CreateCheckout(ctx, circulation.NewCheckout{BookID: bookA, ClientID: alice, CheckoutDate: start, ExpirationDate: start.Add(time.Hour)})
	require.NoError(t, err)
	clk.Advance(24 * time.Hour)
	b, err := svc.QuickCheckout(ctx, bookB, bob)
	require.NoError(t, err)
	clk.Advance(24 * time.Hour)
	c, err := svc.QuickCheckout(ctx, bookC, alice)
	require.NoError(t, err)

	testCases := []struct {
		name     string
		criteria circulation.SearchCriteria
		want     []*circulation.Checkout
	}{
		{name: "nothing set returns all", criteria: circulation.SearchCriteria{}, want: []*circulation.Checkout{a, b, c}},
		{name: "client", criteria: circulation.SearchCriteria{ClientID: &alice}, want: []*circulation.Checkout{a, c}},
		{name: "client beats book", criteria: circulation.SearchCriteria{ClientID: &bob, BookID: &bookA}, want: []*circulation.Checkout{b}},
		{name: "book beats range", criteria: circulation.SearchCriteria{BookID: &bookC, StartDate: ptr(start), EndDate: ptr(start)}, want: []*circulation.Checkout{c}},
		{
			name:     "range is inclusive on checkout date",
			criteria: circulation.SearchCriteria{StartDate: ptr(start), EndDate: ptr(b.CheckoutDate), ExpiredOnly: true},
			want:     []*circulation.Checkout{a, b},
		},
		{name: "half a range falls through to active", criteria: circulation.SearchCriteria{StartDate: ptr(start), ActiveOnly: true}, want: []*circulation.Checkout{b, c}},
		{name: "active beats expired", criteria: circulation.SearchCriteria{ActiveOnly: true, ExpiredOnly: true}, want: []*circulation.Checkout{b, c}},
		{name: "expired", criteria: circulation.SearchCriteria{ExpiredOnly: true}, want: []*circulation.Checkout{a}},
		{name: "empty range", criteria: circulation.SearchCriteria{StartDate: ptr(c.CheckoutDate), EndDate: ptr(start)}, want: []*circulation.Checkout{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.Search(ctx, tc.criteria)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestQuickCheckout_ConcurrentDoubleBooking(t *testing.T) {
	ctx := context.Background()
	svc, reg, _ := newFixture()
	book := reg.addBook()

	const attempts = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		client := reg.addClient()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.QuickCheckout(ctx, book, client)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, circulation.ErrBookAlreadyCheckedOut):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)

	checkouts, err := svc.GetByBook(ctx, book)
	require.NoError(t, err)
	assert.Len(t, checkouts, 1)
}

func TestMemoryStore_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry()
	store := circulation.NewMemoryStore(reg, reg)
	boom := errors.New("boom")

	keep := &circulation.Checkout{ID: uuid.New(), BookID: uuid.New(), ClientID: uuid.New(), CheckoutDate: start, ExpirationDate: start.Add(time.Hour)}
	require.NoError(t, store.InTx(ctx, func(tx circulation.Tx) error {
		return tx.Insert(ctx, keep)
	}))

	err := store.InTx(ctx, func(tx circulation.Tx) error {
		if err := tx.Insert(ctx, &circulation.Checkout{ID: uuid.New(), CheckoutDate: start, ExpirationDate: start.Add(time.Hour)}); err != nil {
			return err
		}
		if _, err := tx.SetExpiration(ctx, keep.ID, start.Add(48*time.Hour)); err != nil {
			return err
		}
		if _, err := tx.Delete(ctx, keep.ID); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := store.List(ctx, circulation.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep, all[0])
}

func TestTracing_RecordsRejections(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	reg := newRegistry()
	svc := circulation.NewService(circulation.NewMemoryStore(reg, reg),
		circulation.WithClock(func() time.Time { return start }),
		circulation.WithLogger(discard()),
		circulation.WithTracerProvider(tp),
	)

	_, err := svc.QuickCheckout(ctx, uuid.New(), uuid.New())
	require.ErrorIs(t, err, circulation.ErrBookNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "circulation.CreateCheckout", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
}
