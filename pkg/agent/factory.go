package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agentic-hq/agentic/pkg/models"
)

// Constructor builds an unopened agent from its scenario spec.
type Constructor func(spec models.AgentSpec) (Agent, error)

// Factory maps agent types to constructors. The orchestrator registers the
// full variant set at startup; tests register stubs.
type Factory struct {
	mu           sync.RWMutex
	constructors map[models.AgentType]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[models.AgentType]Constructor)}
}

// Register installs the constructor for an agent type, replacing any
// previous registration.
func (f *Factory) Register(t models.AgentType, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[t] = c
}

// Create builds an agent for the given spec. Unknown types are a
// configuration error.
func (f *Factory) Create(spec models.AgentSpec) (Agent, error) {
	f.mu.RLock()
	constructor, ok := f.constructors[spec.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no constructor registered for agent type %q", ErrConfig, spec.Type)
	}
	a, err := constructor(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s agent: %w", spec.Type, err)
	}
	return a, nil
}

// Types returns the registered agent types in stable order.
func (f *Factory) Types() []models.AgentType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]models.AgentType, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
