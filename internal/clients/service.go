// internal/clients/service.go
package clients

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the client profile service.
type Service interface {
	CreateClient(ctx context.Context, req NewClient) (*Client, error)
	GetClient(ctx context.Context, id uuid.UUID) (*Client, error)
	GetClientByUser(ctx context.Context, userID uuid.UUID) (*Client, error)
	ListClients(ctx context.Context) ([]*Client, error)
	Search(ctx context.Context, criteria SearchCriteria) ([]*Client, error)
	UpdateClient(ctx context.Context, id uuid.UUID, update ClientUpdate) (*Client, error)
	DeleteClient(ctx context.Context, id uuid.UUID) error
	ClientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// UserLookup answers whether an account exists.
type UserLookup interface {
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Repository persists client profiles.
type Repository interface {
	Create(ctx context.Context, client *Client) error
	GetByID(ctx context.Context, id uuid.UUID) (*Client, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Client, error)
	GetByEmail(ctx context.Context, email string) (*Client, error)
	List(ctx context.Context) ([]*Client, error)
	SearchByName(ctx context.Context, name string) ([]*Client, error)
	ListByBirthdate(ctx context.Context, start, end Date) ([]*Client, error)
	Update(ctx context.Context, id uuid.UUID, update ClientUpdate) (*Client, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
