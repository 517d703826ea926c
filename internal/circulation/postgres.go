// internal/circulation/postgres.go
package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"librarium/internal/database"
)

const checkoutsTable = "book_checkouts"

var checkoutColumns = []interface{}{"checkout_id", "book_id", "client_id", "checkout_date", "expiration_date"}

// PostgresStore keeps checkouts in book_checkouts. Transactions run at
// SERIALIZABLE isolation and are retried on serialization failures; a nil
// breaker disables fail-fast on a failing database.
type PostgresStore struct {
	queries
	db      *sqlx.DB
	breaker *database.Breaker
}

func NewPostgresStore(db *sqlx.DB, breaker *database.Breaker) *PostgresStore {
	return &PostgresStore{queries: queries{q: db}, db: db, breaker: breaker}
}

func (p *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return p.breaker.Do(func() error {
		return database.RunInTx(ctx, p.db, func(tx *sqlx.Tx) error {
			return fn(queries{q: tx})
		})
	})
}

// queries runs against either the pool or an open transaction.
type queries struct {
	q database.Querier
}

func (s queries) GetByID(ctx context.Context, id uuid.UUID) (*Checkout, error) {
	query, args, err := database.Build(database.Dialect.From(checkoutsTable).Prepared(true).
		Select(checkoutColumns...).
		Where(goqu.C("checkout_id").Eq(id.String())))
	if err != nil {
		return nil, err
	}

	var c Checkout
	if err := sqlx.GetContext(ctx, s.q, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("checkout %s: %w", id, ErrCheckoutNotFound)
		}
		return nil, fmt.Errorf("get checkout %s: %w", id, err)
	}
	return normalized(&c), nil
}

func (s queries) List(ctx context.Context, filter Filter) ([]*Checkout, error) {
	query, args, err := database.Build(database.Dialect.From(checkoutsTable).Prepared(true).
		Select(checkoutColumns...).
		Where(filterExpressions(filter)...).
		Order(goqu.C("checkout_date").Asc(), goqu.C("checkout_id").Asc()))
	if err != nil {
		return nil, err
	}

	var rows []*Checkout
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list checkouts: %w", err)
	}

	out := make([]*Checkout, 0, len(rows))
	for _, c := range rows {
		out = append(out, normalized(c))
	}
	return out, nil
}

func filterExpressions(f Filter) []exp.Expression {
	var where []exp.Expression
	if f.ClientID != nil {
		where = append(where, goqu.C("client_id").Eq(f.ClientID.String()))
	}
	if f.BookID != nil {
		where = append(where, goqu.C("book_id").Eq(f.BookID.String()))
	}
	if f.CheckoutFrom != nil {
		where = append(where, goqu.C("checkout_date").Gte(*f.CheckoutFrom))
	}
	if f.CheckoutTo != nil {
		where = append(where, goqu.C("checkout_date").Lte(*f.CheckoutTo))
	}
	if f.ActiveAt != nil {
		where = append(where, goqu.C("expiration_date").Gt(*f.ActiveAt))
	}
	if f.ExpiredAt != nil {
		where = append(where, goqu.C("expiration_date").Lte(*f.ExpiredAt))
	}
	return where
}

func (s queries) count(ctx context.Context, table string, where ...exp.Expression) (int, error) {
	query, args, err := database.Build(database.Dialect.From(table).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(where...))
	if err != nil {
		return 0, err
	}

	var n int
	if err := sqlx.GetContext(ctx, s.q, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s queries) HasActiveForBook(ctx context.Context, bookID uuid.UUID, now time.Time) (bool, error) {
	n, err := s.count(ctx, checkoutsTable,
		goqu.C("book_id").Eq(bookID.String()),
		goqu.C("expiration_date").Gt(now),
	)
	return n > 0, err
}

func (s queries) CountActiveForClient(ctx context.Context, clientID uuid.UUID, now time.Time) (int, error) {
	return s.count(ctx, checkoutsTable,
		goqu.C("client_id").Eq(clientID.String()),
		goqu.C("expiration_date").Gt(now),
	)
}

func (s queries) BookExists(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.count(ctx, "books", goqu.C("book_id").Eq(id.String()))
	return n > 0, err
}

func (s queries) ClientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.count(ctx, "clients", goqu.C("client_id").Eq(id.String()))
	return n > 0, err
}

func (s queries) Insert(ctx context.Context, c *Checkout) error {
	query, args, err := database.Build(database.Dialect.Insert(checkoutsTable).Prepared(true).Rows(goqu.Record{
		"checkout_id":     c.ID.String(),
		"book_id":         c.BookID.String(),
		"client_id":       c.ClientID.String(),
		"checkout_date":   c.CheckoutDate,
		"expiration_date": c.ExpirationDate,
	}))
	if err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return database.Classify(err, "insert checkout")
	}
	return nil
}

func (s queries) SetExpiration(ctx context.Context, id uuid.UUID, expiration time.Time) (*Checkout, error) {
	query, args, err := database.Build(database.Dialect.Update(checkoutsTable).Prepared(true).
		Set(goqu.Record{"expiration_date": expiration}).
		Where(goqu.C("checkout_id").Eq(id.String())).
		Returning(checkoutColumns...))
	if err != nil {
		return nil, err
	}

	var c Checkout
	if err := sqlx.GetContext(ctx, s.q, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("checkout %s: %w", id, ErrCheckoutNotFound)
		}
		return nil, database.Classify(err, "update checkout")
	}
	return normalized(&c), nil
}

func (s queries) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	query, args, err := database.Build(database.Dialect.Delete(checkoutsTable).Prepared(true).
		Where(goqu.C("checkout_id").Eq(id.String())))
	if err != nil {
		return false, err
	}

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete checkout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete checkout: %w", err)
	}
	return n > 0, nil
}

func normalized(c *Checkout) *Checkout {
	c.CheckoutDate = c.CheckoutDate.UTC()
	c.ExpirationDate = c.ExpirationDate.UTC()
	return c
}
