// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// service implements the Service interface.
type service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new catalog service instance.
func NewService(repo Repository, logger *slog.Logger) Service {
	return &service{repo: repo, logger: logger}
}

// CreateBook registers a book. A duplicate ISBN is reported before a
// malformed one.
func (s *service) CreateBook(ctx context.Context, title, author, isbn string) (*Book, error) {
	if err := s.checkISBN(ctx, isbn, uuid.Nil); err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}
	if strings.TrimSpace(author) == "" {
		return nil, ErrEmptyAuthor
	}

	book := &Book{ID: uuid.New(), Title: title, Author: author, ISBN: isbn}
	if err := s.repo.Create(ctx, book); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "book created",
		slog.String("book_id", book.ID.String()),
		slog.String("isbn", book.ISBN),
	)
	return book, nil
}

// checkISBN fails if isbn belongs to a book other than self or is malformed.
func (s *service) checkISBN(ctx context.Context, isbn string, self uuid.UUID) error {
	existing, err := s.repo.GetByISBN(ctx, isbn)
	switch {
	case err == nil && existing.ID != self:
		return fmt.Errorf("isbn %s: %w", isbn, ErrISBNTaken)
	case err != nil && !errors.Is(err, ErrBookNotFound):
		return fmt.Errorf("failed to look up isbn: %w", err)
	}

	if !ValidISBN(isbn) {
		return fmt.Errorf("%q: %w", isbn, ErrInvalidISBN)
	}
	return nil
}

func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetBookByISBN(ctx context.Context, isbn string) (*Book, error) {
	return s.repo.GetByISBN(ctx, isbn)
}

func (s *service) ListBooks(ctx context.Context) ([]*Book, error) {
	return s.repo.List(ctx)
}

// Search applies the first criterion that is set.
func (s *service) Search(ctx context.Context, criteria SearchCriteria) ([]*Book, error) {
	switch {
	case criteria.Title != "":
		return s.repo.SearchByTitle(ctx, criteria.Title)
	case criteria.Author != "":
		return s.repo.SearchByAuthor(ctx, criteria.Author)
	default:
		return s.repo.List(ctx)
	}
}

func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, update BookUpdate) (*Book, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	if update.ISBN != nil {
		if err := s.checkISBN(ctx, *update.ISBN, id); err != nil {
			return nil, err
		}
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if update.Author != nil && strings.TrimSpace(*update.Author) == "" {
		return nil, ErrEmptyAuthor
	}

	book, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "book updated", slog.String("book_id", id.String()))
	return book, nil
}

func (s *service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("book %s: %w", id, ErrBookNotFound)
	}
	s.logger.InfoContext(ctx, "book deleted", slog.String("book_id", id.String()))
	return nil
}

func (s *service) BookExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrBookNotFound):
		return false, nil
	default:
		return false, err
	}
}
