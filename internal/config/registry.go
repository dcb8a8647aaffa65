package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/frameingest/pkg/provider/embeddings"
	"github.com/MrWong99/frameingest/pkg/provider/llm"
)

var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

type factories[P any] struct {
	kind string
	m    map[string]Factory[P]
}

func (f *factories[P]) create(entry ProviderEntry) (P, error) {
	mk, ok := f.m[entry.Name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return mk(entry)
}

// Registry resolves [ProviderEntry] names to constructors. A later
// registration under the same name replaces the earlier one. Safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        factories[llm.Provider]
	embeddings factories[embeddings.Provider]
}

func NewRegistry() *Registry {
	return &Registry{
		llm:        factories[llm.Provider]{kind: "llm", m: map[string]Factory[llm.Provider]{}},
		embeddings: factories[embeddings.Provider]{kind: "embeddings", m: map[string]Factory[embeddings.Provider]{}},
	}
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	r.llm.m[name] = f
	r.mu.Unlock()
}

func (r *Registry) RegisterEmbeddings(name string, f Factory[embeddings.Provider]) {
	r.mu.Lock()
	r.embeddings.m[name] = f
	r.mu.Unlock()
}

// CreateLLM returns [ErrProviderNotRegistered] for unknown names. Factory
// errors are returned unwrapped.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embeddings.create(entry)
}

// Names lists the registered names for kind ("llm" or "embeddings"), sorted.
// Any other kind yields nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.llm.kind:
		return slices.Sorted(maps.Keys(r.llm.m))
	case r.embeddings.kind:
		return slices.Sorted(maps.Keys(r.embeddings.m))
	}
	return nil
}
