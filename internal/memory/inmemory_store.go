package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a Store backed by process memory. Used for local
// development without a database and as a fake in tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
	entries  map[string]map[string]Entry // conversationID -> category\x00key -> entry
	now      func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		messages: make(map[string][]Message),
		entries:  make(map[string]map[string]Entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store's clock. Tests use this to control entry timestamps.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

func entryKey(category, key string) string {
	return category + "\x00" + key
}

func (s *InMemoryStore) Append(_ context.Context, conversationID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return nil
}

func (s *InMemoryStore) GetRecent(_ context.Context, conversationID string, limit int, filter MessageFilter) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}

	all := s.messages[conversationID]
	var filtered []Message
	for _, msg := range all {
		if filter.Role != "" && msg.Role != filter.Role {
			continue
		}
		filtered = append(filtered, msg)
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	out := make([]Message, len(filtered))
	copy(out, filtered)
	return out, nil
}

func (s *InMemoryStore) SetValue(_ context.Context, conversationID, key, value, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[conversationID] == nil {
		s.entries[conversationID] = make(map[string]Entry)
	}
	s.entries[conversationID][entryKey(category, key)] = Entry{
		Key:       key,
		Category:  category,
		Value:     value,
		UpdatedAt: s.now(),
	}
	return nil
}

func (s *InMemoryStore) GetLatest(_ context.Context, conversationID, category string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *Entry
	for _, entry := range s.entries[conversationID] {
		if entry.Category != category {
			continue
		}
		if latest == nil || entry.UpdatedAt.After(latest.UpdatedAt) {
			e := entry
			latest = &e
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *InMemoryStore) GetAll(_ context.Context, conversationID string, filter EntryFilter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []Entry
	for _, entry := range s.entries[conversationID] {
		if filter.Category != "" && entry.Category != filter.Category {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.Before(entries[j].UpdatedAt)
	})
	return entries, nil
}

func (s *InMemoryStore) Delete(_ context.Context, conversationID, key, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[conversationID], entryKey(category, key))
	return nil
}

var _ Store = (*InMemoryStore)(nil)
