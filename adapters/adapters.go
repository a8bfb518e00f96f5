// Package adapters defines the provider adapter contract: the explicit,
// registered replacement for runtime call interception. An adapter maps
// one provider's request/response pair to an agentrail event; the
// instrumented application calls it directly or through a wrapper, and
// nothing is patched in place.
package adapters

import (
	"fmt"
	"sync"

	"github.com/agentrail/agentrail/event"
)

// Adapter extracts an event from one provider call.
type Adapter interface {
	// Name identifies the provider, e.g. "openaicompat".
	Name() string
	// ExtractCallInfo maps a request/response pair to an event. The
	// concrete argument types are provider-specific; an adapter returns
	// an error for shapes it does not recognize.
	ExtractCallInfo(req, resp any) (event.Event, error)
}

// Registry holds adapters registered at startup.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]Adapter{}}
}

// Register adds an adapter. Registering the same name twice is an
// error; adapters are wired once at startup, not swapped at runtime.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[a.Name()]; exists {
		return fmt.Errorf("adapter %q already registered", a.Name())
	}
	r.byName[a.Name()] = a
	return nil
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// Recorder accepts events; *agentrail.Session satisfies it.
type Recorder interface {
	Record(ev event.Event) error
}
