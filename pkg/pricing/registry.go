package pricing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Registry manages providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*Provider),
	}
}

// LoadDir registers every *.yaml table in dir. A missing dir yields an empty registry.
func LoadDir(dir string) (*Registry, error) {
	r := NewRegistry()
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list pricing files: %w", err)
	}
	if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
		return r, nil
	}
	sort.Strings(paths)
	for _, path := range paths {
		t, err := LoadTable(path)
		if err != nil {
			return nil, err
		}
		p, err := NewProvider(t)
		if err != nil {
			return nil, fmt.Errorf("pricing file %s: %w", path, err)
		}
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a provider to the registry.
func (r *Registry) Register(p *Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not found", name)
	}
	return p, nil
}

// List returns the registered provider names in order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindProviderForModel returns the first provider, by name, that prices model.
func (r *Registry) FindProviderForModel(model string) (*Provider, error) {
	for _, name := range r.List() {
		p, _ := r.Get(name)
		if p.SupportsModel(model) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no provider found for model %q", model)
}
