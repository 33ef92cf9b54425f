package embedding

import (
	"fmt"
	"sync"
)

// Factory builds the client for one model id.
type Factory func(modelID string) (Client, error)

// Registry caches one client per model id. Clients are built lazily by the factory.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	clients map[string]Client
}

// NewRegistry creates a registry. A nil factory falls back to hashing clients with dims dimensions.
func NewRegistry(factory Factory, dims int) *Registry {
	if factory == nil {
		factory = func(modelID string) (Client, error) {
			return NewHashingClient(modelID, dims), nil
		}
	}
	return &Registry{factory: factory, clients: make(map[string]Client)}
}

// Get returns the cached client for modelID, building it on first use.
func (r *Registry) Get(modelID string) (Client, error) {
	if modelID == "" {
		return nil, fmt.Errorf("embedding model id is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[modelID]; ok {
		return c, nil
	}
	c, err := r.factory(modelID)
	if err != nil {
		return nil, fmt.Errorf("build embedding client for %s: %w", modelID, err)
	}
	r.clients[modelID] = c
	return c, nil
}
