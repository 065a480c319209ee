package classify

import (
	"fmt"
	"sync"
)

// Loader builds a classifier. It runs at most once per registered name.
type Loader func() (Classifier, error)

// Registry owns exactly one instance of each classifier per process. First
// access loads the model; later calls return the memoized instance. Load
// failures are memoized too, so every caller sees the same
// ErrModelUnavailable instead of retriggering expensive loads.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
	loaded  map[string]Classifier
	failed  map[string]error
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[string]Loader),
		loaded:  make(map[string]Classifier),
		failed:  make(map[string]error),
	}
}

// Register installs the loader for a classifier name. Registering over an
// already-loaded name is a programming error and panics.
func (r *Registry) Register(name string, load Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loaded[name]; ok {
		panic(fmt.Sprintf("registry: %q already loaded", name))
	}
	r.loaders[name] = load
}

// Get returns the classifier for name, loading it on first use. Concurrent
// first calls for the same name perform a single load (double-checked
// under the write lock).
func (r *Registry) Get(name string) (Classifier, error) {
	r.mu.RLock()
	if c, ok := r.loaded[name]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	if err, ok := r.failed[name]; ok {
		r.mu.RUnlock()
		return nil, err
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.loaded[name]; ok {
		return c, nil
	}
	if err, ok := r.failed[name]; ok {
		return nil, err
	}
	load, ok := r.loaders[name]
	if !ok {
		err := fmt.Errorf("%w: no loader registered for %q", ErrModelUnavailable, name)
		r.failed[name] = err
		return nil, err
	}
	c, err := load()
	if err != nil {
		wrapped := fmt.Errorf("%w: %s: %v", ErrModelUnavailable, name, err)
		r.failed[name] = wrapped
		return nil, wrapped
	}
	r.loaded[name] = c
	return c, nil
}

// Names lists the registered classifier names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loaders)+len(r.loaded))
	seen := make(map[string]struct{})
	for n := range r.loaded {
		names = append(names, n)
		seen[n] = struct{}{}
	}
	for n := range r.loaders {
		if _, ok := seen[n]; !ok {
			names = append(names, n)
		}
	}
	return names
}
