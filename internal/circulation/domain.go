// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"

	"librarium/internal/apperr"
)

const (
	// MaxCheckoutsPerClient caps the active checkouts one client may hold.
	MaxCheckoutsPerClient = 5
	// DefaultCheckoutDays is the loan period of a quick checkout.
	DefaultCheckoutDays = 14
	// DefaultExtensionDays applies when an extension does not name a length.
	DefaultExtensionDays = 7
	// MaxExtensionDays caps a single extension.
	MaxExtensionDays = 365
	// BackdateGrace is how far in the past a checkout may start.
	BackdateGrace = 24 * time.Hour
)

var (
	ErrBookNotFound             = apperr.NotFound("book not found")
	ErrClientNotFound           = apperr.NotFound("client not found")
	ErrCheckoutNotFound         = apperr.NotFound("checkout not found")
	ErrBookAlreadyCheckedOut    = apperr.Conflict("book is already checked out")
	ErrMaxCheckoutsExceeded     = apperr.Conflict("client has reached the maximum number of checkouts (5)")
	ErrCheckoutExpired          = apperr.Conflict("cannot extend an expired checkout")
	ErrCheckoutDateInPast       = apperr.Invalid("checkout date cannot be in the past")
	ErrExpirationBeforeCheckout = apperr.Invalid("expiration date must be after checkout date")
	ErrInvalidExtension         = apperr.Invalid("days to extend must not be negative")
	ErrExtensionTooLong         = apperr.Invalid("days to extend must not exceed 365")
)

// Checkout is a loan of one book to one client. It is active while its
// expiration date lies in the future; returning the book deletes it.
type Checkout struct {
	ID             uuid.UUID `json:"checkout_id" db:"checkout_id"`
	BookID         uuid.UUID `json:"book_id" db:"book_id"`
	ClientID       uuid.UUID `json:"client_id" db:"client_id"`
	CheckoutDate   time.Time `json:"checkout_date" db:"checkout_date"`
	ExpirationDate time.Time `json:"expiration_date" db:"expiration_date"`
}

// ActiveAt reports whether the checkout has not yet expired at now.
func (c *Checkout) ActiveAt(now time.Time) bool {
	return c.ExpirationDate.After(now)
}

// NewCheckout holds the arguments of CreateCheckout.
type NewCheckout struct {
	BookID         uuid.UUID `json:"book_id"`
	ClientID       uuid.UUID `json:"client_id"`
	CheckoutDate   time.Time `json:"checkout_date"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// Update lists the mutable fields of a checkout; nil means unchanged.
// Only the expiration date can be changed.
type Update struct {
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// SearchCriteria selects checkouts. It is not a combinable filter: the first
// criterion that is set wins and the rest are ignored. Precedence is ClientID,
// BookID, the StartDate/EndDate range (only when both are set), ActiveOnly,
// ExpiredOnly. With nothing set every checkout is returned.
type SearchCriteria struct {
	ClientID    *uuid.UUID `json:"client_id,omitempty"`
	BookID      *uuid.UUID `json:"book_id,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	ActiveOnly  bool       `json:"active_only,omitempty"`
	ExpiredOnly bool       `json:"expired_only,omitempty"`
}

// Filter narrows a store listing. Every set field must match.
type Filter struct {
	ClientID *uuid.UUID
	BookID   *uuid.UUID
	// CheckoutFrom and CheckoutTo bound checkout_date inclusively.
	CheckoutFrom *time.Time
	CheckoutTo   *time.Time
	// ActiveAt keeps checkouts still active at the instant.
	ActiveAt *time.Time
	// ExpiredAt keeps checkouts already expired at the instant.
	ExpiredAt *time.Time
}

// Match reports whether c satisfies every set field of f.
func (f Filter) Match(c *Checkout) bool {
	switch {
	case f.ClientID != nil && c.ClientID != *f.ClientID:
		return false
	case f.BookID != nil && c.BookID != *f.BookID:
		return false
	case f.CheckoutFrom != nil && c.CheckoutDate.Before(*f.CheckoutFrom):
		return false
	case f.CheckoutTo != nil && c.CheckoutDate.After(*f.CheckoutTo):
		return false
	case f.ActiveAt != nil && !c.ActiveAt(*f.ActiveAt):
		return false
	case f.ExpiredAt != nil && c.ActiveAt(*f.ExpiredAt):
		return false
	}
	return true
}
