package contract

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wilhg/shopmcp/pkg/errmodel"
)

// Registry keeps tool contracts by name.
// It is populated at startup and only read while serving.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]*ToolContract
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{contracts: map[string]*ToolContract{}}
}

// Register compiles the contract's schemas and stores it under its name.
// A name collision or an invalid schema is an error; callers treat both as fatal.
func (r *Registry) Register(c ToolContract) error {
	if c.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if c.Route.Method == "" || c.Route.Path == "" {
		return fmt.Errorf("tool %q has no upstream route", c.Name)
	}
	in, err := compileSchema("mem://"+c.Name+"/input.json", c.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %q input schema: %w", c.Name, err)
	}
	if in == nil {
		return fmt.Errorf("tool %q has no input schema", c.Name)
	}
	out, err := compileSchema("mem://"+c.Name+"/output.json", c.OutputSchema)
	if err != nil {
		return fmt.Errorf("tool %q output schema: %w", c.Name, err)
	}
	c.in, c.out = in, out

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contracts[c.Name]; exists {
		return fmt.Errorf("tool %q already registered", c.Name)
	}
	r.contracts[c.Name] = &c
	return nil
}

// MustRegister registers every contract and panics on the first failure.
func (r *Registry) MustRegister(cs ...ToolContract) {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic("contract: " + err.Error())
		}
	}
}

// Lookup returns the contract registered under name.
// The returned contract must not be modified.
func (r *Registry) Lookup(name string) (*ToolContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[name]
	if !ok {
		return nil, errmodel.UnknownTool(name)
	}
	return c, nil
}

// Contracts returns all contracts sorted by name.
func (r *Registry) Contracts() []*ToolContract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolContract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports how many contracts are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}
