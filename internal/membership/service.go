// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	Register(ctx context.Context, email, password string) (*User, error)
	CreateUser(ctx context.Context, email, password string, roles []Role) (*User, error)
	Login(ctx context.Context, email, password string) (*Token, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUser(ctx context.Context, actor Principal, id uuid.UUID, update UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
	EnsureAdmin(ctx context.Context, email, password string) (*User, error)
}

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, id uuid.UUID, update UserUpdate) (*User, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
