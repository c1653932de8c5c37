package analytic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c360/streamlytics/errors"
)

// Analytic is a configured, controllable instance of a streaming operator
type Analytic interface {
	Name() string
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
	Reset()
}

// Factory creates an analytic instance from a validated configuration.
// Factories perform no I/O; all subscription happens in Start.
type Factory func(cfg Config, deps Dependencies) (Analytic, error)

// Registration holds the factory and metadata for one analytic type
type Registration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Version     string  `json:"version"`
	Factory     Factory `json:"-"`
}

// Registry manages analytic factories, keyed case-insensitively by name
type Registry struct {
	factories map[string]*Registration
	mu        sync.RWMutex
}

// NewRegistry creates an empty analytic registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
	}
}

// Register adds an analytic factory. Duplicate names are rejected.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "analytic name required")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory function required")
	}

	key := strings.ToLower(reg.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("analytic %q is already registered", reg.Name),
			"Registry", "Register", "duplicate registration check")
	}
	r.factories[key] = &reg
	return nil
}

// Lookup returns the registration for the named analytic type
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[strings.ToLower(name)]
	return reg, ok
}

// Create instantiates an analytic from its configuration, dispatching to
// the factory registered under the config name (case-insensitive).
// Construction never partially succeeds: a factory returning an error
// leaves no subscriptions behind.
func (r *Registry) Create(cfg Config, deps Dependencies) (Analytic, error) {
	reg, ok := r.Lookup(cfg.Name)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("no analytic registered under %q", cfg.Name),
			"Registry", "Create", "factory lookup")
	}

	instance, err := reg.Factory(cfg, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", "construct "+cfg.Name)
	}
	return instance, nil
}

// List returns all registrations sorted by name
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.factories))
	for _, reg := range r.factories {
		out = append(out, *reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
