// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the interface for the circulation service.
type Service interface {
	CreateCheckout(ctx context.Context, req NewCheckout) (*Checkout, error)
	QuickCheckout(ctx context.Context, bookID, clientID uuid.UUID) (*Checkout, error)
	ExtendCheckout(ctx context.Context, id uuid.UUID, days int) (*Checkout, error)
	UpdateCheckout(ctx context.Context, id uuid.UUID, update Update) (*Checkout, error)
	ReturnBook(ctx context.Context, id uuid.UUID) (bool, error)
	IsBookAvailable(ctx context.Context, bookID uuid.UUID) (bool, error)

	GetAll(ctx context.Context) ([]*Checkout, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Checkout, error)
	GetByClient(ctx context.Context, clientID uuid.UUID) ([]*Checkout, error)
	GetByBook(ctx context.Context, bookID uuid.UUID) ([]*Checkout, error)
	GetActive(ctx context.Context) ([]*Checkout, error)
	GetExpired(ctx context.Context) ([]*Checkout, error)
	GetClientActive(ctx context.Context, clientID uuid.UUID) ([]*Checkout, error)
	Search(ctx context.Context, criteria SearchCriteria) ([]*Checkout, error)
}

// Reader is the read side of the checkout store.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Checkout, error)
	List(ctx context.Context, filter Filter) ([]*Checkout, error)
	// HasActiveForBook reports whether the book is on loan at now.
	HasActiveForBook(ctx context.Context, bookID uuid.UUID, now time.Time) (bool, error)
	CountActiveForClient(ctx context.Context, clientID uuid.UUID, now time.Time) (int, error)
	BookExists(ctx context.Context, id uuid.UUID) (bool, error)
	ClientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Tx is a store view bound to one transaction.
type Tx interface {
	Reader
	Insert(ctx context.Context, c *Checkout) error
	SetExpiration(ctx context.Context, id uuid.UUID, expiration time.Time) (*Checkout, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// Store persists checkouts. InTx runs fn atomically and isolated from other
// transactions; an error from fn discards every write it made.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// BookChecker and ClientChecker let the memory store resolve references.
type BookChecker interface {
	BookExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type ClientChecker interface {
	ClientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// ContextualLogger is satisfied by *slog.Logger.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}
