package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

// MemoryStore is an in-process Store used for development and tests.
// It uses sync.RWMutex to serialize access.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	sets    map[string]map[string]struct{}
	now     func() time.Time

	getCalls int
	setCalls int
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		sets:    make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// WithClock overrides the time source used for expiry (tests).
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, ErrCacheMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	delete(m.sets, key)
	return nil
}

func (m *MemoryStore) SetAdd(ctx context.Context, key string, members ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(members) == 0 {
		return fmt.Errorf("set add %s: no members", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, v := range members {
		s[v] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) SetRemove(ctx context.Context, key string, members ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sets[key]
	for _, v := range members {
		delete(s, v)
	}
	if len(s) == 0 {
		delete(m.sets, key)
	}
	return nil
}

// SetMembers returns the members sorted for stable output.
func (m *MemoryStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sets[key]))
	for v := range m.sets[key] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// TTL returns the remaining lifetime of key, or false when absent or persistent.
func (m *MemoryStore) TTL(key string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || e.expiresAt.IsZero() {
		return 0, false
	}
	return e.expiresAt.Sub(m.now()), true
}

// Stats returns the number of Get and Set calls served.
func (m *MemoryStore) Stats() (gets, sets int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls, m.setCalls
}
