package dedup

import (
	"context"
	"sync"
	"time"
)

// DefaultCapacity bounds a MemoryStore created with a non-positive capacity.
const DefaultCapacity = 10000

type memEntry struct {
	expires time.Time
	seq     uint64
}

type queued struct {
	key string
	seq uint64
}

// MemoryStore is a process-local Store. When full, the oldest inserted key
// is evicted first regardless of its remaining TTL. Contents are lost on
// restart.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]memEntry
	order    []queued
	seq      uint64
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore holding at most capacity keys.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		entries:  make(map[string]memEntry),
		now:      time.Now,
	}
}

// MarkIfNew records key unless it is present and unexpired.
func (s *MemoryStore) MarkIfNew(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		return false, nil
	}

	s.seq++
	s.entries[key] = memEntry{expires: now.Add(ttl), seq: s.seq}
	s.order = append(s.order, queued{key: key, seq: s.seq})
	s.evict()
	return true, nil
}

// Seen reports whether key is present and unexpired.
func (s *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	return ok && s.now().Before(e.expires), nil
}

// Len returns the number of stored keys, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evict drops the oldest insertions until the store fits its capacity.
// Queue slots whose key was re-inserted later are skipped.
func (s *MemoryStore) evict() {
	for len(s.entries) > s.capacity && len(s.order) > 0 {
		head := s.order[0]
		s.order = s.order[1:]
		if e, ok := s.entries[head.key]; ok && e.seq == head.seq {
			delete(s.entries, head.key)
		}
	}
	// Compact stale queue slots left by re-inserted keys.
	if len(s.order) > 2*s.capacity {
		live := s.order[:0]
		for _, q := range s.order {
			if e, ok := s.entries[q.key]; ok && e.seq == q.seq {
				live = append(live, q)
			}
		}
		s.order = live
	}
}
