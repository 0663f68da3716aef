package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jackzampolin/reportsum/internal/tasks"
)

// Sentinel errors for the pipeline package.
var (
	// ErrStageAlreadyRegistered is returned when registering a duplicate stage.
	ErrStageAlreadyRegistered = errors.New("stage already registered")

	// ErrStageNotFound is returned when a stage dependency is not found.
	ErrStageNotFound = errors.New("stage not found")

	// ErrDependencyCycle is returned when stage dependencies form a cycle.
	ErrDependencyCycle = errors.New("dependency cycle detected")
)

// Registry holds the stages of a pipeline and orders them by dependency.
type Registry struct {
	mu     sync.RWMutex
	stages map[tasks.Stage]Stage
	order  []tasks.Stage
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[tasks.Stage]Stage)}
}

// Register adds a stage. Names must be unique.
func (r *Registry) Register(s Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.stages[name]; exists {
		return fmt.Errorf("%w: %s", ErrStageAlreadyRegistered, name)
	}
	r.stages[name] = s
	r.order = append(r.order, name)
	return nil
}

// Get returns a stage by name.
func (r *Registry) Get(name tasks.Stage) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[name]
	return s, ok
}

// Names returns stage names in registration order.
func (r *Registry) Names() []tasks.Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]tasks.Stage, len(r.order))
	copy(names, r.order)
	return names
}

// Ordered returns the stages sorted so every stage follows its
// dependencies. Ties keep registration order.
func (r *Registry) Ordered() ([]Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inDegree := make(map[tasks.Stage]int, len(r.order))
	for _, name := range r.order {
		for _, dep := range r.stages[name].Dependencies() {
			if _, ok := r.stages[dep]; !ok {
				return nil, fmt.Errorf("%w: stage %q depends on %q", ErrStageNotFound, name, dep)
			}
			inDegree[name]++
		}
	}

	var queue []tasks.Stage
	for _, name := range r.order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	ordered := make([]Stage, 0, len(r.order))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		ordered = append(ordered, r.stages[name])

		for _, other := range r.order {
			for _, dep := range r.stages[other].Dependencies() {
				if dep == name {
					inDegree[other]--
					if inDegree[other] == 0 {
						queue = append(queue, other)
					}
				}
			}
		}
	}

	if len(ordered) != len(r.stages) {
		return nil, ErrDependencyCycle
	}
	return ordered, nil
}
