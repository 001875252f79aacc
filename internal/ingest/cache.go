package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/sapflow-etl/internal/domain"
)

// CachedLoader memoizes parsed tables behind a content-keyed LRU cache.
// The key is the SHA-256 of the file bytes, so re-uploading the same
// export parses once regardless of filename. The core never caches;
// this is the ingestion boundary's concern.
type CachedLoader struct {
	cache *lruCache
}

// NewCachedLoader creates a loader cache holding at most maxEntries
// parsed tables.
func NewCachedLoader(maxEntries int) *CachedLoader {
	return &CachedLoader{cache: newLRUCache(maxEntries)}
}

// LoadFile reads path and parses it in the format implied by its
// extension, serving repeated content from the cache. Listing the same
// export twice, under whatever name, parses it once.
func (c *CachedLoader) LoadFile(path string) ([]domain.Reading, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return c.Load(data, filepath.Ext(path))
}

// Load parses data in the format implied by ext, serving repeated
// content from the cache. Parse failures are not cached so a corrected
// re-upload is re-read.
func (c *CachedLoader) Load(data []byte, ext string) ([]domain.Reading, error) {
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:]) + ext

	if readings, ok := c.cache.get(key); ok {
		return readings, nil
	}
	readings, err := Load(data, ext)
	if err != nil {
		return nil, err
	}
	c.cache.put(key, readings)
	return readings, nil
}

// lruCache is a simple thread-safe LRU cache for parsed tables.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []domain.Reading
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]domain.Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []domain.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
