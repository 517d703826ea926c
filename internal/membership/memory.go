// internal/membership/memory.go
package membership

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[uuid.UUID]*User)}
}

func (m *MemoryRepository) Create(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.emailTaken(user.Email, uuid.Nil) {
		return fmt.Errorf("create user %s: %w", user.Email, ErrEmailTaken)
	}
	m.users[user.ID] = user.clone()
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}
	return u.clone(), nil
}

func (m *MemoryRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == email {
			return u.clone(), nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, ErrUserNotFound)
}

func (m *MemoryRepository) List(_ context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u.clone())
	}
	slices.SortFunc(out, func(a, b *User) int {
		return cmp.Or(a.RegistrationDate.Compare(b.RegistrationDate), cmp.Compare(a.Email, b.Email))
	})
	return out, nil
}

func (m *MemoryRepository) Update(_ context.Context, id uuid.UUID, update UserUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}
	if update.Email != nil {
		if m.emailTaken(*update.Email, id) {
			return nil, fmt.Errorf("update user %s: %w", id, ErrEmailTaken)
		}
		u.Email = *update.Email
	}
	if update.Roles != nil {
		u.Roles = slices.Clone(update.Roles)
	}
	return u.clone(), nil
}

func (m *MemoryRepository) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	return true, nil
}

func (m *MemoryRepository) emailTaken(email string, except uuid.UUID) bool {
	for id, u := range m.users {
		if id != except && u.Email == email {
			return true
		}
	}
	return false
}
