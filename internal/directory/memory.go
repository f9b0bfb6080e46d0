package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.RWMutex
	entries map[int64]Entry
	closed  bool
	now     func() time.Time
}

func NewMemory() Store {
	return &memoryStore{entries: map[int64]Entry{}, now: time.Now}
}

func (s *memoryStore) Upsert(_ context.Context, userID, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries[userID] = Entry{UserID: userID, ChatID: chatID, SeenAt: s.now().UTC()}
	return nil
}

func (s *memoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return sortedEntries(s.entries), nil
}

func (s *memoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.entries), nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func sortedEntries(m map[int64]Entry) []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
