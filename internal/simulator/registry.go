package simulator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/sisyphus/internal/model"
)

// Entry pairs a task type with the simulator registered for it.
type Entry struct {
	Type model.TaskType `json:"type"`
	Info Info           `json:"info"`
}

// Registry maps task types to the simulators that run them.
type Registry struct {
	mu         sync.RWMutex
	simulators map[model.TaskType]Simulator
}

// NewRegistry creates an empty simulator registry.
func NewRegistry() *Registry {
	return &Registry{
		simulators: make(map[model.TaskType]Simulator),
	}
}

// NewDefaultRegistry returns a registry with the CPU, Memory and IO simulators.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(model.TypeCPU, CPU{})
	r.Register(model.TypeMemory, Memory{})
	r.Register(model.TypeIO, IO{})
	return r
}

// Register adds a simulator for the given task type, replacing any previous one.
func (r *Registry) Register(t model.TaskType, s Simulator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.simulators[t] = s
}

// Resolve returns the simulator registered for t.
func (r *Registry) Resolve(t model.TaskType) (Simulator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.simulators[t]
	if !ok {
		return nil, fmt.Errorf("no simulator registered for %w %q", model.ErrInvalidType, t)
	}
	return s, nil
}

// List returns every registered simulator, sorted by task type for a stable API response.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.simulators))
	for t, s := range r.simulators {
		entries = append(entries, Entry{Type: t, Info: s.Info()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Type < entries[j].Type
	})
	return entries
}
