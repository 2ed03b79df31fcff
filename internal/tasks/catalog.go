package tasks

import (
	"slices"
	"sync"

	"github.com/desertthunder/docdash/internal/models"
)

// Catalog maps task kinds to the work functions that run them.
type Catalog struct {
	mu    sync.RWMutex
	funcs map[models.Kind]WorkFunc
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{funcs: make(map[models.Kind]WorkFunc)}
}

// Register binds kind to fn, replacing any earlier binding.
func (c *Catalog) Register(kind models.Kind, fn WorkFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs[kind] = fn
}

// Lookup returns the work function for kind.
func (c *Catalog) Lookup(kind models.Kind) (WorkFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.funcs[kind]
	return fn, ok
}

// Kinds lists the registered kinds in sorted order.
func (c *Catalog) Kinds() []models.Kind {
	c.mu.RLock()
	kinds := make([]models.Kind, 0, len(c.funcs))
	for k := range c.funcs {
		kinds = append(kinds, k)
	}
	c.mu.RUnlock()
	slices.Sort(kinds)
	return kinds
}
