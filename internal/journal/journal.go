// ABOUTME: Local mutation journal recording every dispatched admin mutation
// ABOUTME: Store interface, entry type, and an in-memory implementation for tests

package journal

import (
	"context"
	"sync"
	"time"
)

// Entry is one journaled mutation: what was sent, where it landed, and how
// it settled. The idempotency key ties origin-fallback attempts of the same
// logical operation together.
type Entry struct {
	ID             string
	Method         string
	Path           string
	IdempotencyKey string
	Origin         string
	Attempts       int
	Status         int
	OK             bool
	ErrText        string
	CreatedAt      time.Time
}

// Store persists journal entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]*Entry, error)
	Close() error
}

// MemoryStore is an in-memory Store for tests and journal-less runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*Entry
}

// NewMemoryStore creates an empty in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores the entry.
func (m *MemoryStore) Append(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

// List returns up to limit entries, newest first.
func (m *MemoryStore) List(_ context.Context, limit int) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entry
	for i := len(m.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *m.entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
