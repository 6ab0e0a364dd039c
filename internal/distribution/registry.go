package distribution

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kingrea/hhmmkit/internal/modelerr"
)

// Registry maintains the known observation families.
type Registry struct {
	mu       sync.RWMutex
	families map[string]Family
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{families: map[string]Family{}}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the built-in catalog. catN families resolve on demand.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for _, f := range catalog() {
			defaultRegistry.MustRegister(f)
		}
	})
	return defaultRegistry
}

// Register installs a family. Returns an error if the name already exists.
func (r *Registry) Register(f Family) error {
	name := strings.TrimSpace(f.name)
	if name == "" {
		return fmt.Errorf("distribution: family name is required")
	}
	if len(f.params) == 0 {
		return fmt.Errorf("distribution: family %s declares no parameters", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.families[name]; exists {
		return fmt.Errorf("distribution: %s already registered", name)
	}
	r.families[name] = f
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(f Family) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// Resolve looks a family up by name. "catN" resolves to Categorical(N).
func (r *Registry) Resolve(name string) (Family, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.families[key]
	r.mu.RUnlock()
	if ok {
		return f, nil
	}
	if rest, found := strings.CutPrefix(key, "cat"); found && rest != "" {
		if n, err := strconv.Atoi(rest); err == nil && n >= 2 {
			return Categorical(n)
		}
	}
	return Family{}, modelerr.Newf(modelerr.CodeUnknownDistributionFamily, "distribution family %q is not in the catalog", name).
		With("family", name).
		WithSuggestion(modelerr.DidYouMean(key, r.Names())...).
		WithSuggestion("categorical streams are written catN with N >= 2, e.g. cat3")
}

// Names returns a sorted list of registered family names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
