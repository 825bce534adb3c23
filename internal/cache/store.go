// Package cache provides the bounded, TTL'd in-memory snapshot store backing
// prefix-command resolution. Entries are serialized entity snapshots keyed by
// a namespace and a lookup token (name, alias, id, or channel id).
package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrNotInitialized is returned by every operation before Init (or after
// Shutdown). Callers treat it as "cache unavailable": skip the fast path,
// do not fail the request.
var ErrNotInitialized = errors.New("cache not initialized")

// Namespace partitions the key space per entity kind. The literal values are
// the cache key prefixes.
type Namespace string

const (
	NamespaceCommand               Namespace = "PF_COMMAND"
	NamespaceVersion               Namespace = "PF_VERSION"
	NamespaceCategory              Namespace = "PF_CATEGORY"
	NamespaceChannelDefaultVersion Namespace = "PF_CHANNEL_VERSION"
)

// Key builds the full cache key for a namespace and lookup token.
func Key(ns Namespace, key string) string {
	return string(ns) + ":" + key
}

// Options configures a Store.
type Options struct {
	// TTL is the entry lifetime. Entries older than TTL are not returned.
	TTL time.Duration

	// MaxEntries bounds the total entry count; the least-recently-set entry
	// is evicted first when the bound is exceeded. Defaults to 10000.
	MaxEntries int

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

type entry struct {
	key   string
	value []byte
	setAt time.Time
}

// Store is a namespaced key-value store of snapshot bytes with a fixed TTL
// and an LRU-by-set eviction bound. It is safe for concurrent use; each
// snapshot is written atomically under its key, so readers never observe a
// torn entity. The zero value is unusable: construct with New and call Init.
type Store struct {
	mu          sync.Mutex
	entries     map[string]*list.Element
	order       *list.List // front = most recently set
	ttl         time.Duration
	maxEntries  int
	now         func() time.Time
	initialized bool
}

// New creates a Store. The store rejects all operations until Init is called,
// making "uninitialized" an explicit, testable state.
func New(opts Options) *Store {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Store{
		ttl:        opts.TTL,
		maxEntries: maxEntries,
		now:        now,
	}
}

// Init makes the store operational.
func (s *Store) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return
	}
	s.entries = make(map[string]*list.Element)
	s.order = list.New()
	s.initialized = true
}

// Shutdown drops all entries and returns the store to the uninitialized
// state. Part of the explicit lifecycle; subsequent operations fail with
// ErrNotInitialized.
func (s *Store) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.order = nil
	s.initialized = false
}

// Set writes a snapshot under the namespaced key, refreshing its TTL and
// set-recency. Last writer wins.
func (s *Store) Set(ns Namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}

	full := Key(ns, key)
	if elem, ok := s.entries[full]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.setAt = s.now()
		s.order.MoveToFront(elem)
		return nil
	}

	elem := s.order.PushFront(&entry{key: full, value: value, setAt: s.now()})
	s.entries[full] = elem
	s.evictLocked()
	return nil
}

// Get returns the snapshot under the namespaced key. The second return is
// false when the key is absent or its entry has expired.
func (s *Store) Get(ns Namespace, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, false, ErrNotInitialized
	}

	full := Key(ns, key)
	elem, ok := s.entries[full]
	if !ok {
		return nil, false, nil
	}
	ent := elem.Value.(*entry)
	if s.expiredLocked(ent) {
		s.removeLocked(elem)
		return nil, false, nil
	}
	return ent.value, true, nil
}

// Delete removes the namespaced key, if present.
func (s *Store) Delete(ns Namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	if elem, ok := s.entries[Key(ns, key)]; ok {
		s.removeLocked(elem)
	}
	return nil
}

// Keys returns all non-expired full keys (namespace prefix included), most
// recently set first.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}

	keys := make([]string, 0, len(s.entries))
	var expired []*list.Element
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		ent := elem.Value.(*entry)
		if s.expiredLocked(ent) {
			expired = append(expired, elem)
			continue
		}
		keys = append(keys, ent.key)
	}
	for _, elem := range expired {
		s.removeLocked(elem)
	}
	return keys, nil
}

// Len returns the number of entries currently held, expired ones included
// until they are observed.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return 0
	}
	return len(s.entries)
}

func (s *Store) expiredLocked(ent *entry) bool {
	return s.ttl > 0 && s.now().Sub(ent.setAt) >= s.ttl
}

func (s *Store) evictLocked() {
	for len(s.entries) > s.maxEntries {
		oldest := s.order.Back()
		if oldest == nil {
			return
		}
		s.removeLocked(oldest)
	}
}

func (s *Store) removeLocked(elem *list.Element) {
	ent := s.order.Remove(elem).(*entry)
	delete(s.entries, ent.key)
}
