// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	CreateBook(ctx context.Context, title, author, isbn string) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (*Book, error)
	ListBooks(ctx context.Context) ([]*Book, error)
	Search(ctx context.Context, criteria SearchCriteria) ([]*Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, update BookUpdate) (*Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
	BookExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Repository persists books.
type Repository interface {
	Create(ctx context.Context, book *Book) error
	GetByID(ctx context.Context, id uuid.UUID) (*Book, error)
	GetByISBN(ctx context.Context, isbn string) (*Book, error)
	List(ctx context.Context) ([]*Book, error)
	SearchByTitle(ctx context.Context, title string) ([]*Book, error)
	SearchByAuthor(ctx context.Context, author string) ([]*Book, error)
	Update(ctx context.Context, id uuid.UUID, update BookUpdate) (*Book, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
