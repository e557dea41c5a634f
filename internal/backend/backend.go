// Package backend defines the interface every agent backend implements,
// the name-keyed registry the runtime resolves from, and the in-process
// mock used for tests and bring-up.
package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// Backend executes work orders. Identity and Capabilities are pure;
// Capabilities is consulted once per run at dispatch time.
//
// Run streams events into the caller-owned channel in the order they
// occur and returns a receipt whose trace equals the streamed sequence,
// with meta timestamps populated. Run must stop sending and return
// promptly when ctx is cancelled; it never closes the channel.
type Backend interface {
	Identity() contract.BackendIdentity
	Capabilities() contract.CapabilityManifest
	Run(ctx context.Context, runID uuid.UUID, wo contract.WorkOrder, events chan<- contract.AgentEvent) (contract.Receipt, error)
}

// Send delivers one event unless the context is cancelled first.
// Returns false when the run is being torn down.
func Send(ctx context.Context, events chan<- contract.AgentEvent, ev contract.AgentEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Registry maps backend names to implementations. Registration happens
// during setup; lookups afterwards take a shared lock.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under a name. Duplicate names are an error.
func (r *Registry) Register(name string, b Backend) error {
	if name == "" {
		return fmt.Errorf("backend: name is empty")
	}
	if b == nil {
		return fmt.Errorf("backend: %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("backend: %q already registered", name)
	}
	r.backends[name] = b
	return nil
}

// Get looks up a backend by name.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Names returns registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Manifests snapshots every backend's capability manifest, keyed by name.
func (r *Registry) Manifests() map[string]contract.CapabilityManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]contract.CapabilityManifest, len(r.backends))
	for name, b := range r.backends {
		out[name] = b.Capabilities()
	}
	return out
}
