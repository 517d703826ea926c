// internal/catalog/memory.go
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository keeps books in process memory. It does not know about
// checkouts, so deleting a checked-out book succeeds here.
type MemoryRepository struct {
	mu    sync.RWMutex
	books map[uuid.UUID]Book
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{books: make(map[uuid.UUID]Book)}
}

func (m *MemoryRepository) Create(_ context.Context, book *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.books {
		if b.ISBN == book.ISBN {
			return fmt.Errorf("isbn %s: %w", book.ISBN, ErrISBNTaken)
		}
	}
	m.books[book.ID] = *book
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.books[id]
	if !ok {
		return nil, fmt.Errorf("book %s: %w", id, ErrBookNotFound)
	}
	return &b, nil
}

func (m *MemoryRepository) GetByISBN(_ context.Context, isbn string) (*Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.books {
		if b.ISBN == isbn {
			return &b, nil
		}
	}
	return nil, fmt.Errorf("isbn %s: %w", isbn, ErrBookNotFound)
}

func (m *MemoryRepository) List(_ context.Context) ([]*Book, error) {
	return m.filter(func(Book) bool { return true }), nil
}

func (m *MemoryRepository) SearchByTitle(_ context.Context, title string) ([]*Book, error) {
	needle := strings.ToLower(title)
	return m.filter(func(b Book) bool {
		return strings.Contains(strings.ToLower(b.Title), needle)
	}), nil
}

func (m *MemoryRepository) SearchByAuthor(_ context.Context, author string) ([]*Book, error) {
	needle := strings.ToLower(author)
	return m.filter(func(b Book) bool {
		return strings.Contains(strings.ToLower(b.Author), needle)
	}), nil
}

// filter returns matching books ordered by title, then ISBN.
func (m *MemoryRepository) filter(match func(Book) bool) []*Book {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Book, 0, len(m.books))
	for _, b := range m.books {
		if match(b) {
			out = append(out, &b)
		}
	}
	slices.SortFunc(out, func(a, b *Book) int {
		return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ISBN, b.ISBN))
	})
	return out
}

func (m *MemoryRepository) Update(_ context.Context, id uuid.UUID, update BookUpdate) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[id]
	if !ok {
		return nil, fmt.Errorf("book %s: %w", id, ErrBookNotFound)
	}
	if update.ISBN != nil {
		for otherID, other := range m.books {
			if otherID != id && other.ISBN == *update.ISBN {
				return nil, fmt.Errorf("isbn %s: %w", *update.ISBN, ErrISBNTaken)
			}
		}
		b.ISBN = *update.ISBN
	}
	if update.Title != nil {
		b.Title = *update.Title
	}
	if update.Author != nil {
		b.Author = *update.Author
	}
	m.books[id] = b
	return &b, nil
}

func (m *MemoryRepository) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[id]; !ok {
		return false, nil
	}
	delete(m.books, id)
	return true, nil
}
