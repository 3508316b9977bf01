package scanners

import (
	"fmt"
	"sort"
	"sync"

	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/provider"
)

// =============================================================================
// Scanner Registry - Plugin system for scanners
// =============================================================================

// Factory builds a scanner that reads contracts from source.
type Factory func(source provider.ContractSource) core.Scanner

// Registry maps scanner names to factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a new scanner registry with the built-in scanners.
func NewRegistry() *Registry {
	registry := &Registry{
		factories: make(map[string]Factory),
	}

	registry.Register(NameReentrancy, func(s provider.ContractSource) core.Scanner { return Reentrancy(s) })
	registry.Register(NameSelfDestruct, func(s provider.ContractSource) core.Scanner { return SelfDestruct(s) })
	registry.Register(NameDelegateCall, func(s provider.ContractSource) core.Scanner { return DelegateCall(s) })
	registry.Register(NameTxOrigin, func(s provider.ContractSource) core.Scanner { return TxOrigin(s) })
	registry.Register(NameIntegerOverflow, func(s provider.ContractSource) core.Scanner { return IntegerOverflow(s) })
	registry.Register(NameAccessControl, func(s provider.ContractSource) core.Scanner { return AccessControl(s) })

	return registry
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns all registered scanner names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the named scanners in the order given. An unknown name is a
// validation error and nothing is built.
func (r *Registry) Build(names []string, source provider.ContractSource) ([]core.Scanner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Scanner, 0, len(names))
	for _, name := range names {
		f, ok := r.factories[name]
		if !ok {
			return nil, errors.E(errors.KindValidation, "scanners.Build", fmt.Sprintf("unknown scanner %q", name))
		}
		out = append(out, f(source))
	}
	return out, nil
}
