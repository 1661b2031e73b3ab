package valuation

import (
	"errors"
	"fmt"
	"sync"

	"valora/server/internal/artifacts"
)

// Registry holds the loaded model artifacts, one per property type. Readers
// get lazy load-on-miss; the trainer is the exclusive writer and replaces
// entries only after the on-disk artifact has been committed, so concurrent
// readers always observe a complete artifact.
type Registry struct {
	mu     sync.RWMutex
	loaded map[string]*artifacts.ModelArtifact
	store  *artifacts.Store
}

// NewRegistry creates a registry backed by the given artifact store.
func NewRegistry(store *artifacts.Store) *Registry {
	return &Registry{
		loaded: make(map[string]*artifacts.ModelArtifact),
		store:  store,
	}
}

// Get returns the artifact for a property type, loading it from the store on
// first use. A missing artifact is ErrModelNotFound; there is never a
// fallback to another type's model.
func (r *Registry) Get(propertyType string) (*artifacts.ModelArtifact, error) {
	r.mu.RLock()
	art, ok := r.loaded[propertyType]
	r.mu.RUnlock()
	if ok {
		return art, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if art, ok := r.loaded[propertyType]; ok {
		return art, nil
	}

	art, err := r.store.LoadModel(propertyType)
	if err != nil {
		if errors.Is(err, artifacts.ErrArtifactNotFound) {
			return nil, fmt.Errorf("%w for property type %q", ErrModelNotFound, propertyType)
		}
		return nil, err
	}
	r.loaded[propertyType] = art
	return art, nil
}

// Put replaces the resident artifact for a property type.
func (r *Registry) Put(art *artifacts.ModelArtifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded[art.PropertyType] = art
}
