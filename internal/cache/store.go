package cache

import (
	"container/list"
	"sync"

	"github.com/arashi-labs/reverseproxy/internal/metrics"
)

// Stats is a point-in-time snapshot of store activity, wired into the
// proxy_cache_* Prometheus gauges/counters.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Stores    uint64
	Evictions uint64
}

type listEntry struct {
	key Key
	val *Entry
}

// Store is a bounded, access-ordered LRU keyed by Key, plus a VaryIndex
// mapping a resource to the most recently observed Vary header value.
// Implemented as an intrusive doubly-linked list (container/list) + map
// under one mutex, per spec.md §9 ("avoid callback-on-eviction hooks —
// eviction is silent"). Critical sections never perform I/O.
type Store struct {
	mu         sync.Mutex
	capacity   int
	ll         *list.List
	items      map[Key]*list.Element
	varyIndex  map[resourceID]string
	stats      Stats
}

const defaultCapacity = 10000

// NewStore builds a Store bounded to capacity entries (default 10000 if
// capacity <= 0, per spec.md §4.4.7).
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{
		capacity:  capacity,
		ll:        list.New(),
		items:     make(map[Key]*list.Element),
		varyIndex: make(map[resourceID]string),
	}
}

// Get performs a raw lookup by exact key, touching the entry as most
// recently used on a hit. Callers needing the full simple-key -> vary-index
// -> variant-key lookup chain should use Service.Lookup instead.
func (s *Store) Get(k Key) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[k]
	if !ok {
		s.stats.Misses++
		return nil, false
	}
	s.ll.MoveToFront(el)
	s.stats.Hits++
	return el.Value.(*listEntry).val, true
}

// Put inserts or replaces the entry at key k, evicting the
// least-recently-used entry if capacity would be exceeded.
func (s *Store) Put(k Key, e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(k, e)
}

func (s *Store) putLocked(k Key, e *Entry) {
	if el, ok := s.items[k]; ok {
		el.Value.(*listEntry).val = e
		s.ll.MoveToFront(el)
		s.stats.Entries = s.ll.Len()
		return
	}
	el := s.ll.PushFront(&listEntry{key: k, val: e})
	s.items[k] = el
	s.stats.Stores++
	if s.ll.Len() > s.capacity {
		s.evictOldestLocked()
	}
	s.stats.Entries = s.ll.Len()
}

func (s *Store) evictOldestLocked() {
	el := s.ll.Back()
	if el == nil {
		return
	}
	s.removeElementLocked(el)
	s.stats.Evictions++
	metrics.CacheEvictionInc()
}

func (s *Store) removeElementLocked(el *list.Element) {
	s.ll.Remove(el)
	le := el.Value.(*listEntry)
	delete(s.items, le.key)
}

// Delete removes a single key, if present.
func (s *Store) Delete(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[k]; ok {
		s.removeElementLocked(el)
		s.stats.Entries = s.ll.Len()
	}
}

// VaryHeaderFor returns the most recently observed Vary header value for a
// resource, or "" if none is indexed (a missing or stale entry simply
// results in an extra miss — the algorithm tolerates races here).
func (s *Store) VaryHeaderFor(res resourceID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.varyIndex[res]
	return v, ok
}

// SetVaryHeaderFor records the Vary header value most recently observed for
// a resource.
func (s *Store) SetVaryHeaderFor(res resourceID, varyHeaderValue string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.varyIndex[res] = varyHeaderValue
}

// ClearVaryHeaderFor removes any indexed Vary header value for a resource.
func (s *Store) ClearVaryHeaderFor(res resourceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.varyIndex, res)
}

// InvalidateUnsafeMethod purges every GET/HEAD entry whose (host,
// pathWithQuery) matches, plus the resource's vary-index entry. Atomic with
// respect to concurrent reads/writes of the same resource (held under the
// single store mutex) and idempotent — invalidating an already-empty
// resource is a no-op.
func (s *Store) InvalidateUnsafeMethod(host, pathWithQuery string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, method := range []string{"GET", "HEAD"} {
		k := simpleKey(method, host, pathWithQuery)
		if el, ok := s.items[k]; ok {
			s.removeElementLocked(el)
		}
		// Variant keys carry the same resource fields plus a non-empty
		// fingerprint; scan is bounded by store size but invalidation is a
		// rare, write-path-only operation so an O(n) sweep here is
		// acceptable and keeps the map keyed purely by Key (no secondary
		// resource->variants index to keep consistent under eviction).
		for key, el := range s.items {
			if key.Method == method && key.Host == host && key.PathWithQuery == pathWithQuery {
				s.removeElementLocked(el)
			}
		}
	}
	delete(s.varyIndex, resourceID{Method: "GET", Host: host, PathWithQuery: pathWithQuery})
	delete(s.varyIndex, resourceID{Method: "HEAD", Host: host, PathWithQuery: pathWithQuery})
	s.stats.Entries = s.ll.Len()
}

// Purge clears every entry and the vary index.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ll = list.New()
	s.items = make(map[Key]*list.Element)
	s.varyIndex = make(map[resourceID]string)
	s.stats.Entries = 0
}

// Stats returns a snapshot of store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
