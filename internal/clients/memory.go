// internal/clients/memory.go
package clients

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository keeps client profiles in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]Client
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{clients: make(map[uuid.UUID]Client)}
}

func (m *MemoryRepository) Create(_ context.Context, client *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.clients {
		switch {
		case c.Email == client.Email:
			return fmt.Errorf("email %s: %w", client.Email, ErrEmailTaken)
		case c.UserID == client.UserID:
			return fmt.Errorf("user %s: %w", client.UserID, ErrProfileExists)
		}
	}
	m.clients[client.ID] = clone(*client)
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, ErrClientNotFound)
	}
	return ptr(clone(c)), nil
}

func (m *MemoryRepository) GetByUserID(_ context.Context, userID uuid.UUID) (*Client, error) {
	return m.first(func(c Client) bool { return c.UserID == userID }, "user "+userID.String())
}

func (m *MemoryRepository) GetByEmail(_ context.Context, email string) (*Client, error) {
	return m.first(func(c Client) bool { return c.Email == email }, "email "+email)
}

func (m *MemoryRepository) first(match func(Client) bool, key string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		if match(c) {
			return ptr(clone(c)), nil
		}
	}
	return nil, fmt.Errorf("client with %s: %w", key, ErrClientNotFound)
}

func (m *MemoryRepository) List(_ context.Context) ([]*Client, error) {
	return m.filter(func(Client) bool { return true }), nil
}

// SearchByName matches name, surname or patronymic, ignoring case.
func (m *MemoryRepository) SearchByName(_ context.Context, name string) ([]*Client, error) {
	needle := strings.ToLower(name)
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), needle) }
	return m.filter(func(c Client) bool {
		return contains(c.Name) || contains(c.Surname) || (c.Patronymic != nil && contains(*c.Patronymic))
	}), nil
}

// ListByBirthdate returns clients born within [start, end].
func (m *MemoryRepository) ListByBirthdate(_ context.Context, start, end Date) ([]*Client, error) {
	return m.filter(func(c Client) bool {
		return !c.Birthdate.Before(start.Time) && !c.Birthdate.After(end.Time)
	}), nil
}

// filter returns matching clients ordered by surname, name, then email.
func (m *MemoryRepository) filter(match func(Client) bool) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		if match(c) {
			out = append(out, ptr(clone(c)))
		}
	}
	slices.SortFunc(out, func(a, b *Client) int {
		return cmp.Or(
			cmp.Compare(a.Surname, b.Surname),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Email, b.Email),
		)
	})
	return out
}

func (m *MemoryRepository) Update(_ context.Context, id uuid.UUID, update ClientUpdate) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, ErrClientNotFound)
	}
	if update.Email != nil {
		for otherID, other := range m.clients {
			if otherID != id && other.Email == *update.Email {
				return nil, fmt.Errorf("email %s: %w", *update.Email, ErrEmailTaken)
			}
		}
		c.Email = *update.Email
	}
	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Surname != nil {
		c.Surname = *update.Surname
	}
	if update.Patronymic != nil {
		c.Patronymic = ptr(*update.Patronymic)
	}
	if update.Birthdate != nil {
		c.Birthdate = *update.Birthdate
	}
	m.clients[id] = c
	return ptr(clone(c)), nil
}

func (m *MemoryRepository) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[id]; !ok {
		return false, nil
	}
	delete(m.clients, id)
	return true, nil
}

func clone(c Client) Client {
	if c.Patronymic != nil {
		c.Patronymic = ptr(*c.Patronymic)
	}
	return c
}

func ptr[T any](v T) *T {
	return &v
}
