package tasks

import (
	"fmt"
	"slices"
	"sync"

	"github.com/desertthunder/docdash/internal/shared"
)

// Registry maps task ids to live tasks.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Add registers t. Ids are unique.
func (r *Registry) Add(t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.id]; ok {
		return fmt.Errorf("%w: duplicate task id %s", shared.ErrInvalidArgument, t.id)
	}
	r.tasks[t.id] = t
	return nil
}

// Get returns the task for id.
func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Remove drops id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	delete(r.tasks, id)
	return ok
}

// All returns every registered task, oldest first.
func (r *Registry) All() []*Task {
	r.mu.RLock()
	out := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Task) int { return a.createdAt.Compare(b.createdAt) })
	return out
}

// Active returns the tasks that have not reached a terminal status.
func (r *Registry) Active() []*Task {
	return slices.DeleteFunc(r.All(), func(t *Task) bool { return t.Status().Terminal() })
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
