package tasks

import (
	"slices"
	"sync"
	"time"

	"github.com/desertthunder/docdash/internal/models"
)

// Entry is the latest known state of a task. Raw stats are kept so derived fields are computed on read.
type Entry struct {
	ID        string
	Kind      models.Kind
	Status    models.Status
	Progress  int
	Message   string
	Output    string
	Error     string
	Category  string
	Stats     models.Stats
	CreatedAt time.Time
	UpdatedAt time.Time
}

// View renders the entry with a fresh stats snapshot.
func (e Entry) View(now time.Time) models.TaskView {
	return models.TaskView{
		ID:            e.ID,
		Kind:          e.Kind,
		Status:        e.Status,
		Progress:      e.Progress,
		Message:       e.Message,
		Output:        e.Output,
		Error:         e.Error,
		ErrorCategory: e.Category,
		Stats:         e.Stats.Snapshot(now),
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// ProgressCache holds per-task progress in memory, independent of the durable history.
type ProgressCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewProgressCache creates an empty cache.
func NewProgressCache() *ProgressCache {
	return &ProgressCache{entries: make(map[string]Entry), now: time.Now}
}

// Set stores e, replacing any previous entry for the same task. A terminal entry is never replaced by
// a live one.
func (c *ProgressCache) Set(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[e.ID]; ok && prev.Status.Terminal() && !e.Status.Terminal() {
		return
	}
	c.entries[e.ID] = e
}

// Entry returns the raw entry for id.
func (c *ProgressCache) Entry(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// Get returns a point-in-time view of id.
func (c *ProgressCache) Get(id string) (models.TaskView, bool) {
	e, ok := c.Entry(id)
	if !ok {
		return models.TaskView{}, false
	}
	return e.View(c.now()), true
}

// Delete removes id.
func (c *ProgressCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// All returns views of every entry, newest first.
func (c *ProgressCache) All() []models.TaskView {
	now := c.now()
	c.mu.RLock()
	views := make([]models.TaskView, 0, len(c.entries))
	for _, e := range c.entries {
		views = append(views, e.View(now))
	}
	c.mu.RUnlock()

	slices.SortFunc(views, func(a, b models.TaskView) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return views
}

// Len returns the number of entries.
func (c *ProgressCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes terminal entries not updated within maxAge and returns their ids. Live tasks are kept
// however old they are.
func (c *ProgressCache) Sweep(maxAge time.Duration) []string {
	cutoff := c.now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for id, e := range c.entries {
		if e.Status.Terminal() && e.UpdatedAt.Before(cutoff) {
			delete(c.entries, id)
			removed = append(removed, id)
		}
	}
	return removed
}
