// Package cache provides the multi-level TTL cache backing schema and
// statistics lookups.
//
// Entries are partitioned into categories with independent TTLs: schema
// structure changes rarely, statistics churn constantly, so they must not
// share an expiry policy. Expiry is checked lazily on read; the key space is
// bounded by table count, so there is no background sweeper.
package cache

import (
	"encoding/json"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Category names a cache partition with its own TTL.
type Category string

const (
	CategorySchema        Category = "schema"
	CategoryRelationships Category = "relationships"
	CategoryStatistics    Category = "statistics"
	CategorySampleData    Category = "sample_data"
	CategoryFullContext   Category = "full_context"
)

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{
		CategorySchema,
		CategoryRelationships,
		CategoryStatistics,
		CategorySampleData,
		CategoryFullContext,
	}
}

// DefaultTTLs returns the default TTL per category.
func DefaultTTLs() map[Category]time.Duration {
	return map[Category]time.Duration{
		CategorySchema:        time.Hour,
		CategoryRelationships: 30 * time.Minute,
		CategoryStatistics:    5 * time.Minute,
		CategorySampleData:    10 * time.Minute,
		CategoryFullContext:   15 * time.Minute,
	}
}

// fallbackTTL applies when an entry's category has no configured TTL.
const fallbackTTL = 5 * time.Minute

type entry struct {
	value     any
	category  Category
	createdAt time.Time
}

// Stats is a point-in-time snapshot of cache contents.
type Stats struct {
	TotalEntries      int                       `json:"total_entries"`
	TotalSizeBytes    int                       `json:"total_size_bytes"`
	EntriesByCategory map[Category]int          `json:"entries_by_category"`
	TTLByCategory     map[Category]time.Duration `json:"ttl_by_category"`
}

// Store is a thread-safe in-memory cache with per-category TTLs.
//
// A single mutex serializes all access. The critical section is O(1) map
// work (pattern invalidation and Stats excepted), and the expiry
// check-then-evict in Get must be atomic anyway, so a finer lock buys
// nothing here.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttls    map[Category]time.Duration

	// now is swappable for expiry tests.
	now func() time.Time
}

// New creates a Store with the given per-category TTLs. Categories missing
// from ttls fall back to DefaultTTLs.
func New(ttls map[Category]time.Duration) *Store {
	merged := DefaultTTLs()
	for cat, ttl := range ttls {
		merged[cat] = ttl
	}
	return &Store{
		entries: make(map[string]entry),
		ttls:    merged,
		now:     time.Now,
	}
}

// Get returns the cached value for key if it exists and has not outlived its
// category TTL. An expired entry is evicted before reporting a miss.
func (s *Store) Get(key string, category Category) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.createdAt) > s.ttl(category) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, unconditionally replacing any existing entry
// and restarting its age from zero.
func (s *Store) Set(key string, category Category, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, category: category, createdAt: s.now()}
}

// Invalidate removes a single key. Removing an absent key is a no-op.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// InvalidateAll empties the store.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
}

// InvalidateByPattern removes every key containing pattern as a substring.
// Full scan; key cardinality is one per table plus a few context keys.
func (s *Store) InvalidateByPattern(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.Contains(key, pattern) {
			delete(s.entries, key)
		}
	}
}

// Stats reports entry counts, approximate payload size, and the configured
// TTLs. Size is the JSON-encoded length of each value; values that fail to
// encode count as zero bytes.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalEntries:      len(s.entries),
		EntriesByCategory: make(map[Category]int),
		TTLByCategory:     make(map[Category]time.Duration, len(s.ttls)),
	}
	for cat, ttl := range s.ttls {
		st.TTLByCategory[cat] = ttl
	}
	for _, e := range s.entries {
		st.EntriesByCategory[e.category]++
		if b, err := json.Marshal(e.value); err == nil {
			st.TotalSizeBytes += len(b)
		}
	}
	return st
}

// TTL returns the configured TTL for a category.
func (s *Store) TTL(category Category) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl(category)
}

func (s *Store) ttl(category Category) time.Duration {
	if ttl, ok := s.ttls[category]; ok {
		return ttl
	}
	return fallbackTTL
}

// Key derives a cache key from a computation name and its arguments.
// The arguments are hashed (FNV-1a) so keys stay short and stable
// regardless of argument length.
func Key(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	h := fnv.New64a()
	for _, a := range args {
		h.Write([]byte(a))
		h.Write([]byte{0})
	}
	return name + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// Memoize returns the cached value for key, or runs compute and caches its
// result. Errors are never cached; a failed computation leaves the store
// untouched so the next caller retries. A cached value of the wrong dynamic
// type is treated as a miss and overwritten.
func Memoize[T any](s *Store, key string, category Category, compute func() (T, error)) (T, error) {
	if v, ok := s.Get(key, category); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	result, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	s.Set(key, category, result)
	return result, nil
}
