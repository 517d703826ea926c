// internal/catalog/postgres.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"librarium/internal/database"
)

const booksTable = "books"

var bookColumns = []interface{}{"book_id", "title", "author", "isbn"}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresRepository stores books in the books table.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (p *PostgresRepository) Create(ctx context.Context, book *Book) error {
	query, args, err := database.Build(database.Dialect.Insert(booksTable).Prepared(true).Rows(goqu.Record{
		"book_id": book.ID.String(),
		"title":   book.Title,
		"author":  book.Author,
		"isbn":    book.ISBN,
	}))
	if err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("isbn %s: %w", book.ISBN, ErrISBNTaken)
		}
		return database.Classify(err, "create book")
	}
	return nil
}

func (p *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Book, error) {
	return p.getOne(ctx, goqu.C("book_id").Eq(id.String()), "book "+id.String())
}

func (p *PostgresRepository) GetByISBN(ctx context.Context, isbn string) (*Book, error) {
	return p.getOne(ctx, goqu.C("isbn").Eq(isbn), "isbn "+isbn)
}

func (p *PostgresRepository) getOne(ctx context.Context, where exp.Expression, key string) (*Book, error) {
	query, args, err := database.Build(database.Dialect.From(booksTable).Prepared(true).
		Select(bookColumns...).
		Where(where))
	if err != nil {
		return nil, err
	}

	var book Book
	if err := sqlx.GetContext(ctx, p.db, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", key, ErrBookNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return &book, nil
}

func (p *PostgresRepository) List(ctx context.Context) ([]*Book, error) {
	return p.find(ctx, nil)
}

func (p *PostgresRepository) SearchByTitle(ctx context.Context, title string) ([]*Book, error) {
	return p.find(ctx, goqu.C("title").ILike("%"+likeEscaper.Replace(title)+"%"))
}

func (p *PostgresRepository) SearchByAuthor(ctx context.Context, author string) ([]*Book, error) {
	return p.find(ctx, goqu.C("author").ILike("%"+likeEscaper.Replace(author)+"%"))
}

func (p *PostgresRepository) find(ctx context.Context, where exp.Expression) ([]*Book, error) {
	ds := database.Dialect.From(booksTable).Prepared(true).
		Select(bookColumns...).
		Order(goqu.C("title").Asc(), goqu.C("isbn").Asc())
	if where != nil {
		ds = ds.Where(where)
	}

	query, args, err := database.Build(ds)
	if err != nil {
		return nil, err
	}

	books := []*Book{}
	if err := sqlx.SelectContext(ctx, p.db, &books, query, args...); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (p *PostgresRepository) Update(ctx context.Context, id uuid.UUID, update BookUpdate) (*Book, error) {
	set := goqu.Record{}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Author != nil {
		set["author"] = *update.Author
	}
	if update.ISBN != nil {
		set["isbn"] = *update.ISBN
	}
	if len(set) == 0 {
		return p.GetByID(ctx, id)
	}

	query, args, err := database.Build(database.Dialect.Update(booksTable).Prepared(true).
		Set(set).
		Where(goqu.C("book_id").Eq(id.String())).
		Returning(bookColumns...))
	if err != nil {
		return nil, err
	}

	var book Book
	if err := sqlx.GetContext(ctx, p.db, &book, query, args...); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("book %s: %w", id, ErrBookNotFound)
		case database.IsUniqueViolation(err):
			return nil, fmt.Errorf("isbn %s: %w", *update.ISBN, ErrISBNTaken)
		}
		return nil, database.Classify(err, "update book")
	}
	return &book, nil
}

// Delete fails with a conflict while checkouts still reference the book.
func (p *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	query, args, err := database.Build(database.Dialect.Delete(booksTable).Prepared(true).
		Where(goqu.C("book_id").Eq(id.String())))
	if err != nil {
		return false, err
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, database.Classify(err, "delete book")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete book: %w", err)
	}
	return n > 0, nil
}
