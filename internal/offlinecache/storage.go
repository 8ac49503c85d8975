package offlinecache

import (
	"sort"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// Storage is the named-cache store the manager runs against: open/match/put
// plus name enumeration and whole-cache deletion, keyed by request identity.
type Storage interface {
	// Open returns the named cache, creating it if absent.
	Open(name string) NamedCache
	// Names lists existing cache names in stable order.
	Names() []string
	// Delete removes a whole named cache and reports whether it existed.
	Delete(name string) bool
}

// NamedCache is one cache generation.
type NamedCache interface {
	// Match returns the stored response for key, if any.
	Match(key string) (*Response, bool)
	// Put stores a response under key, overwriting any previous entry.
	Put(key string, resp *Response)
	// Keys lists stored request keys in stable order.
	Keys() []string
}

// MemoryStorage keeps cache generations in memory, one go-cache instance
// per generation. Entries never expire on their own; a generation is
// dropped as a whole when it is superseded.
type MemoryStorage struct {
	mu     sync.Mutex
	caches map[string]*memoryCache
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{caches: make(map[string]*memoryCache)}
}

// Open implements Storage.
func (s *MemoryStorage) Open(name string) NamedCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		return c
	}
	c := &memoryCache{entries: gocache.New(gocache.NoExpiration, 0)}
	s.caches[name] = c
	return c
}

// Names implements Storage.
func (s *MemoryStorage) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delete implements Storage.
func (s *MemoryStorage) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caches[name]; !ok {
		return false
	}
	delete(s.caches, name)
	return true
}

type memoryCache struct {
	entries *gocache.Cache
}

func (c *memoryCache) Match(key string) (*Response, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	resp, ok := v.(*Response)
	return resp, ok
}

func (c *memoryCache) Put(key string, resp *Response) {
	c.entries.Set(key, resp, gocache.NoExpiration)
}

func (c *memoryCache) Keys() []string {
	items := c.entries.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
