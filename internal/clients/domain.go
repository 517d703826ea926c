// internal/clients/domain.go
package clients

import (
	"github.com/google/uuid"

	"librarium/internal/apperr"
)

var (
	ErrClientNotFound  = apperr.NotFound("client not found")
	ErrEmailTaken      = apperr.Conflict("client with this email already exists")
	ErrProfileExists   = apperr.Conflict("user already has a client profile")
	ErrUserNotFound    = apperr.NotFound("user not found")
	ErrFutureBirthdate = apperr.Invalid("birthdate cannot be in the future")
	ErrNoBirthdate     = apperr.Invalid("birthdate is required")
	ErrInvalidEmail    = apperr.Invalid("invalid email address")
	ErrEmptyName       = apperr.Invalid("name and surname must not be empty")
	ErrInvalidRange    = apperr.Invalid("start birthdate must not be after end birthdate")
)

// Client is the borrower profile of a user. Each user has at most one.
type Client struct {
	ID         uuid.UUID `json:"client_id" db:"client_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name" db:"name"`
	Surname    string    `json:"surname" db:"surname"`
	Patronymic *string   `json:"patronymic" db:"patronymic"`
	Birthdate  Date      `json:"birthdate" db:"birthdate"`
}

// NewClient holds the fields of a client to be created.
type NewClient struct {
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Surname    string    `json:"surname"`
	Patronymic *string   `json:"patronymic,omitempty"`
	Birthdate  Date      `json:"birthdate"`
}

// ClientUpdate lists the mutable fields of a client; nil means unchanged.
type ClientUpdate struct {
	Email      *string `json:"email,omitempty"`
	Name       *string `json:"name,omitempty"`
	Surname    *string `json:"surname,omitempty"`
	Patronymic *string `json:"patronymic,omitempty"`
	Birthdate  *Date   `json:"birthdate,omitempty"`
}

// SearchCriteria selects clients. Name wins when set; otherwise the birthdate
// range applies only when both ends are given; otherwise all clients match.
type SearchCriteria struct {
	Name           string `json:"name,omitempty"`
	StartBirthdate *Date  `json:"start_birthdate,omitempty"`
	EndBirthdate   *Date  `json:"end_birthdate,omitempty"`
}
