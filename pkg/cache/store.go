package cache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries a Store holds when no capacity
// is given.
const DefaultCapacity = 500

// Store is a bounded in-memory LRU cache with per-entry TTL.
//
// Set and fresh GetFresh hits move an entry to the most-recently-used
// position; PeekAny never changes recency. When a Set pushes the store over
// capacity, least-recently-used entries are evicted until Len() <= Capacity().
// Stale entries stay readable through PeekAny until they are evicted,
// deleted or overwritten.
//
// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
	onEvict  func(Entry)

	hits      uint64
	misses    uint64
	evictions uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvictionHook registers fn to be called, outside the store lock, for
// every entry removed by capacity eviction.
func WithEvictionHook(fn func(Entry)) StoreOption {
	return func(s *Store) {
		s.onEvict = fn
	}
}

// NewStore creates a store holding at most capacity entries.
// A capacity <= 0 uses DefaultCapacity.
func NewStore(capacity int, opts ...StoreOption) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set stores value under key with the given TTL, replacing any previous
// entry and resetting its timestamp. A ttl <= 0 uses DefaultTTL.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.SetWithResource(key, "", value, ttl)
}

// SetWithResource is Set with a resource tag used by DeleteResource.
func (s *Store) SetWithResource(key, resource string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	entry := &Entry{
		Key:      key,
		Resource: resource,
		Value:    value,
		StoredAt: s.now(),
		TTL:      ttl,
	}
	if el, ok := s.items[key]; ok {
		el.Value = entry
		s.ll.MoveToFront(el)
	} else {
		s.items[key] = s.ll.PushFront(entry)
	}

	var evicted []Entry
	for s.ll.Len() > s.capacity {
		oldest := s.ll.Back()
		e := s.removeElement(oldest)
		s.evictions++
		evicted = append(evicted, e)
	}
	size := s.ll.Len()
	s.mu.Unlock()

	CacheSize.Set(float64(size))
	if len(evicted) > 0 {
		CacheEvictions.Add(float64(len(evicted)))
		if s.onEvict != nil {
			for _, e := range evicted {
				s.onEvict(e)
			}
		}
	}
}

// GetFresh returns the entry under key if it exists and is fresh.
// A hit promotes the entry to most-recently-used.
func (s *Store) GetFresh(key string) (Hit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		s.misses++
		return Hit{}, false
	}

	entry := el.Value.(*Entry)
	now := s.now()
	if !entry.IsFresh(now) {
		s.misses++
		return Hit{}, false
	}

	s.ll.MoveToFront(el)
	s.hits++
	return Hit{Value: entry.Value, Age: entry.Age(now), Fresh: true}, true
}

// PeekAny returns the entry under key regardless of freshness without
// touching recency.
func (s *Store) PeekAny(key string) (Hit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return Hit{}, false
	}

	entry := el.Value.(*Entry)
	now := s.now()
	return Hit{Value: entry.Value, Age: entry.Age(now), Fresh: entry.IsFresh(now)}, true
}

// Entry returns a copy of the raw entry under key without touching recency.
func (s *Store) Entry(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return Entry{}, false
	}
	return *el.Value.(*Entry), true
}

// Delete removes key. It reports whether an entry was removed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	el, ok := s.items[key]
	if ok {
		s.removeElement(el)
	}
	size := s.ll.Len()
	s.mu.Unlock()

	CacheSize.Set(float64(size))
	return ok
}

// DeleteResource removes every entry tagged with resource and returns how
// many were removed.
func (s *Store) DeleteResource(resource string) int {
	s.mu.Lock()
	removed := 0
	for el := s.ll.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*Entry).Resource == resource {
			s.removeElement(el)
			removed++
		}
		el = next
	}
	size := s.ll.Len()
	s.mu.Unlock()

	CacheSize.Set(float64(size))
	return removed
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.ll.Init()
	s.items = make(map[string]*list.Element)
	s.mu.Unlock()

	CacheSize.Set(0)
}

// Len returns the number of entries, fresh or stale.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Capacity returns the maximum number of entries.
func (s *Store) Capacity() int {
	return s.capacity
}

// Keys returns all keys from most to least recently used.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, s.ll.Len())
	for el := s.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*Entry).Key)
	}
	return keys
}

// StoreStats is a snapshot of store counters.
type StoreStats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hitRate"`
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := StoreStats{
		Size:      s.ll.Len(),
		Capacity:  s.capacity,
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
	if total := s.hits + s.misses; total > 0 {
		stats.HitRate = float64(s.hits) / float64(total)
	}
	return stats
}

// removeElement must be called with s.mu held.
func (s *Store) removeElement(el *list.Element) Entry {
	entry := s.ll.Remove(el).(*Entry)
	delete(s.items, entry.Key)
	return *entry
}
