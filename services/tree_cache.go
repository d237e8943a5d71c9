package services

import (
	"container/list"
	"sync"
)

// TreeCache keeps the encoded trees of closed rounds in memory. Closed
// rounds never change, so entries are only dropped by LRU eviction or an
// explicit refresh (TreeService.RefreshRoundTree).
type TreeCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[int]*list.Element
	lru        *list.List
}

type treeCacheEntry struct {
	roundID    int
	payload    []byte
	archiveURL *string
}

// NewTreeCache with maxEntries <= 0 disables the memory layer.
func NewTreeCache(maxEntries int) *TreeCache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &TreeCache{
		maxEntries: maxEntries,
		entries:    make(map[int]*list.Element),
		lru:        list.New(),
	}
}

func (c *TreeCache) Get(roundID int) ([]byte, *string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[roundID]
	if !ok {
		return nil, nil, false
	}
	c.lru.MoveToFront(elem)
	entry := elem.Value.(*treeCacheEntry)
	return entry.payload, entry.archiveURL, true
}

func (c *TreeCache) Put(roundID int, payload []byte, archiveURL *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxEntries == 0 {
		return
	}
	if elem, ok := c.entries[roundID]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*treeCacheEntry)
		entry.payload = payload
		entry.archiveURL = archiveURL
		return
	}
	c.entries[roundID] = c.lru.PushFront(&treeCacheEntry{roundID: roundID, payload: payload, archiveURL: archiveURL})
	for c.lru.Len() > c.maxEntries {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*treeCacheEntry).roundID)
	}
}

func (c *TreeCache) Invalidate(roundID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[roundID]; ok {
		c.lru.Remove(elem)
		delete(c.entries, roundID)
	}
}

func (c *TreeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
