// internal/membership/domain.go
package membership

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"librarium/internal/apperr"
)

// Role grants access to groups of endpoints.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) valid() bool {
	return r == RoleAdmin || r == RoleUser
}

var (
	ErrUserNotFound       = apperr.NotFound("user not found")
	ErrEmailTaken         = apperr.Conflict("user with this email already exists")
	ErrInvalidCredentials = apperr.Unauthorized("invalid credentials")
	ErrInvalidEmail       = apperr.Invalid("invalid email address")
	ErrEmptyPassword      = apperr.Invalid("password must not be empty")
	ErrInvalidRoles       = apperr.Invalid("roles must be a non-empty subset of admin, user")
	ErrTooManyAttempts    = apperr.RateLimited("too many login attempts, try again later")
	ErrNotPermitted       = apperr.Forbidden("you do not have permission to access this resource")
)

// User is an account that can log in.
type User struct {
	ID               uuid.UUID `json:"user_id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	PasswordSalt     string    `json:"-"`
	Roles            []Role    `json:"roles"`
	RegistrationDate time.Time `json:"registration_date"`
}

func (u *User) clone() *User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}

// UserUpdate lists the mutable fields of a user; nil means unchanged.
type UserUpdate struct {
	Email *string `json:"email,omitempty"`
	Roles []Role  `json:"roles,omitempty"`
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID uuid.UUID
	Roles  []Role
}

// HasAnyRole reports whether the principal holds at least one of roles.
func (p Principal) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

// Token is the login response.
type Token struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}
