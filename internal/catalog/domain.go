// internal/catalog/domain.go
package catalog

import (
	"github.com/google/uuid"

	"librarium/internal/apperr"
)

var (
	ErrBookNotFound = apperr.NotFound("book not found")
	ErrISBNTaken    = apperr.Conflict("book with this ISBN already exists")
	ErrInvalidISBN  = apperr.Invalid("invalid ISBN format")
	ErrEmptyTitle   = apperr.Invalid("title must not be empty")
	ErrEmptyAuthor  = apperr.Invalid("author must not be empty")
)

// Book is a title held by the library. ISBN is unique.
type Book struct {
	ID     uuid.UUID `json:"book_id" db:"book_id"`
	Title  string    `json:"title" db:"title"`
	Author string    `json:"author" db:"author"`
	ISBN   string    `json:"isbn" db:"isbn"`
}

// BookUpdate lists the mutable fields of a book; nil means unchanged.
type BookUpdate struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
	ISBN   *string `json:"isbn,omitempty"`
}

// SearchCriteria selects books. The first non-empty field wins: Title, then
// Author. With neither set every book is returned.
type SearchCriteria struct {
	Title  string
	Author string
}
