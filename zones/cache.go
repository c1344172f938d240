package zones

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"github.com/ease-lab/zonecount/counters"
	"github.com/ease-lab/zonecount/internal/pkg/corfs"
)

// Cache holds the tables built by this process so that a long-lived
// worker builds each table once. Tables are keyed by source path, size and
// modification time, and the source is checked on every Load: a source that
// has become unreachable fails the Load even when its table is cached.
// Failed loads are not cached.
type Cache struct {
	mut    sync.Mutex
	tables *lru.Cache
}

// NewCache returns a Cache holding at most size tables.
func NewCache(size int) (*Cache, error) {
	tables, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{tables: tables}, nil
}

// Load returns the cached table for path, building it when the source is
// new or has changed.
func (c *Cache) Load(fs corfs.FileSystem, path string, cnt counters.Counters) (*Table, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	key := fmt.Sprintf("%s@%d@%d", path, info.Size, info.ModTime.UnixNano())

	c.mut.Lock()
	defer c.mut.Unlock()

	if cached, ok := c.tables.Get(key); ok {
		log.Debugf("Using cached zone lookup for %s", path)
		return cached.(*Table), nil
	}

	table, err := Load(fs, path, cnt)
	if err != nil {
		return nil, err
	}
	c.tables.Add(key, table)
	return table, nil
}

// Purge drops every cached table.
func (c *Cache) Purge() {
	c.tables.Purge()
}
