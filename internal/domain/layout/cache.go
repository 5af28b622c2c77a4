package layout

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

// Cache memoizes layouts per implementation address. A layout is stored once
// and never replaced: an implementation's code cannot change, so neither can
// its layout.
type Cache struct {
	mu      sync.RWMutex
	layouts map[common.Address]models.StorageLayout
}

// NewCache creates an empty layout cache
func NewCache() *Cache {
	return &Cache{layouts: make(map[common.Address]models.StorageLayout)}
}

// Get returns a copy of the cached layout for an implementation
func (c *Cache) Get(impl common.Address) (models.StorageLayout, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok := c.layouts[impl]
	if !ok {
		return models.StorageLayout{}, false
	}
	return clone(l), true
}

// Put stores a layout unless one is already cached, and returns the layout
// that ends up cached.
func (c *Cache) Put(impl common.Address, l models.StorageLayout) models.StorageLayout {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.layouts[impl]; ok {
		return clone(existing)
	}
	c.layouts[impl] = clone(l)
	return clone(l)
}

// GetOrLoad returns the cached layout or calls load and caches its result.
// Load errors are not cached.
func (c *Cache) GetOrLoad(impl common.Address, load func() (models.StorageLayout, error)) (models.StorageLayout, error) {
	if l, ok := c.Get(impl); ok {
		return l, nil
	}
	l, err := load()
	if err != nil {
		return models.StorageLayout{}, err
	}
	return c.Put(impl, l), nil
}

// Len returns the number of cached layouts
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layouts)
}

func clone(l models.StorageLayout) models.StorageLayout {
	if l.Entries == nil {
		return models.StorageLayout{}
	}
	entries := make([]models.Slot, len(l.Entries))
	copy(entries, l.Entries)
	return models.StorageLayout{Entries: entries}
}
