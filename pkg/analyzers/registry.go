package analyzers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/provider"
)

// Factory builds an analyzer. Analyzers that need chain data read it from
// source; the others ignore it.
type Factory func(source provider.ContractSource) core.Analyzer

// Registry maps analyzer names to factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a new analyzer registry with the built-in analyzers.
func NewRegistry() *Registry {
	registry := &Registry{
		factories: make(map[string]Factory),
	}

	registry.Register(NameGas, func(provider.ContractSource) core.Analyzer { return NewGasAnalyzer() })
	registry.Register(NameValue, func(provider.ContractSource) core.Analyzer { return NewValueAnalyzer() })
	registry.Register(NameContractCreation, func(provider.ContractSource) core.Analyzer { return NewContractCreationAnalyzer() })
	registry.Register(NameCounterparty, func(s provider.ContractSource) core.Analyzer { return NewCounterpartyAnalyzer(s) })

	return registry
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns all registered analyzer names, sorted.
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

// Build creates the named analyzers in the order given. An unknown name is
// a validation error and nothing is built.
func (r *Registry) Build(names []string, source provider.ContractSource) ([]core.Analyzer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Analyzer, 0, len(names))
	for _, name := range names {
		f, ok := r.factories[name]
		if !ok {
			return nil, errors.E(errors.KindValidation, "analyzers.Build", fmt.Sprintf("unknown analyzer %q", name))
		}
		out = append(out, f(source))
	}
	return out, nil
}
