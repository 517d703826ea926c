// internal/circulation/memory.go
package circulation

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps checkouts in process memory. A transaction holds the
// store lock for its whole duration and restores the previous state if fn
// fails, so checks and writes inside InTx cannot interleave.
type MemoryStore struct {
	mu        sync.Mutex
	checkouts map[uuid.UUID]Checkout
	books     BookChecker
	clients   ClientChecker
}

func NewMemoryStore(books BookChecker, clients ClientChecker) *MemoryStore {
	return &MemoryStore{
		checkouts: make(map[uuid.UUID]Checkout),
		books:     books,
		clients:   clients,
	}
}

func (m *MemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := maps.Clone(m.checkouts)
	if err := fn(memoryTx{m}); err != nil {
		m.checkouts = snapshot
		return err
	}
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryTx{m}.GetByID(ctx, id)
}

func (m *MemoryStore) List(ctx context.Context, filter Filter) ([]*Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryTx{m}.List(ctx, filter)
}

func (m *MemoryStore) HasActiveForBook(ctx context.Context, bookID uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryTx{m}.HasActiveForBook(ctx, bookID, now)
}

func (m *MemoryStore) CountActiveForClient(ctx context.Context, clientID uuid.UUID, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryTx{m}.CountActiveForClient(ctx, clientID, now)
}

func (m *MemoryStore) BookExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.books.BookExists(ctx, id)
}

func (m *MemoryStore) ClientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.clients.ClientExists(ctx, id)
}

// memoryTx operates on a MemoryStore whose lock is already held.
type memoryTx struct {
	m *MemoryStore
}

func (t memoryTx) GetByID(_ context.Context, id uuid.UUID) (*Checkout, error) {
	c, ok := t.m.checkouts[id]
	if !ok {
		return nil, fmt.Errorf("checkout %s: %w", id, ErrCheckoutNotFound)
	}
	return &c, nil
}

// List returns matching checkouts ordered by checkout date, then id.
func (t memoryTx) List(_ context.Context, filter Filter) ([]*Checkout, error) {
	out := make([]*Checkout, 0)
	for _, c := range t.m.checkouts {
		if filter.Match(&c) {
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *Checkout) int {
		return cmp.Or(a.CheckoutDate.Compare(b.CheckoutDate), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out, nil
}

func (t memoryTx) HasActiveForBook(_ context.Context, bookID uuid.UUID, now time.Time) (bool, error) {
	for _, c := range t.m.checkouts {
		if c.BookID == bookID && c.ActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (t memoryTx) CountActiveForClient(_ context.Context, clientID uuid.UUID, now time.Time) (int, error) {
	n := 0
	for _, c := range t.m.checkouts {
		if c.ClientID == clientID && c.ActiveAt(now) {
			n++
		}
	}
	return n, nil
}

func (t memoryTx) BookExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.m.BookExists(ctx, id)
}

func (t memoryTx) ClientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.m.ClientExists(ctx, id)
}

func (t memoryTx) Insert(_ context.Context, c *Checkout) error {
	if _, ok := t.m.checkouts[c.ID]; ok {
		return fmt.Errorf("checkout %s already stored", c.ID)
	}
	t.m.checkouts[c.ID] = *c
	return nil
}

func (t memoryTx) SetExpiration(_ context.Context, id uuid.UUID, expiration time.Time) (*Checkout, error) {
	c, ok := t.m.checkouts[id]
	if !ok {
		return nil, fmt.Errorf("checkout %s: %w", id, ErrCheckoutNotFound)
	}
	c.ExpirationDate = expiration
	t.m.checkouts[id] = c
	return &c, nil
}

func (t memoryTx) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	if _, ok := t.m.checkouts[id]; !ok {
		return false, nil
	}
	delete(t.m.checkouts, id)
	return true, nil
}
