package registry

import (
	"sync"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
)

// Change is a set of optional updates committed together by Registry.Apply.
type Change struct {
	Provider *Provider
	Mode     *Mode
}

// Registry owns the single process-wide Configuration. It is safe for
// concurrent use; every mutation is committed atomically and readers only ever
// see fully committed states.
type Registry struct {
	mu      sync.RWMutex
	current Configuration
	version uint64
}

// New creates a Registry holding initial. It fails if initial does not satisfy
// the configuration invariants, so a Registry never exists without a valid
// provider and mode.
func New(initial Configuration) (*Registry, error) {
	if err := initial.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid initial configuration")
	}
	initial.Provider, _ = ParseProvider(string(initial.Provider))
	initial.Mode, _ = ParseMode(string(initial.Mode))
	return &Registry{current: copyConfiguration(initial)}, nil
}

// Get returns a snapshot of the current configuration.
func (r *Registry) Get() Configuration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyConfiguration(r.current)
}

// Snapshot returns the current configuration together with its commit version.
func (r *Registry) Snapshot() (Configuration, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyConfiguration(r.current), r.version
}

// Version counts successful mutations since creation.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Registry) SetProvider(p Provider) error {
	_, _, err := r.Apply(Change{Provider: &p})
	return err
}

func (r *Registry) SetMode(m Mode) error {
	_, _, err := r.Apply(Change{Mode: &m})
	return err
}

// Apply validates every field of c before touching state, then commits all of
// them under one lock. It returns the committed configuration and the version
// that commit produced. An empty Change is a no-op and does not bump the
// version.
func (r *Registry) Apply(c Change) (Configuration, uint64, error) {
	if c.Provider != nil && !c.Provider.Valid() {
		return Configuration{}, 0, errors.Wrapf(ErrInvalidProvider, "%q", string(*c.Provider))
	}
	if c.Mode != nil && !c.Mode.Valid() {
		return Configuration{}, 0, errors.Wrapf(ErrInvalidMode, "%q", string(*c.Mode))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Provider == nil && c.Mode == nil {
		return copyConfiguration(r.current), r.version, nil
	}
	if c.Provider != nil {
		r.current.Provider = *c.Provider
	}
	if c.Mode != nil {
		r.current.Mode = *c.Mode
	}
	r.version++
	return copyConfiguration(r.current), r.version, nil
}

// SetParameter updates one auxiliary tunable. name is normalized with
// NormalizeParameterName. Like Apply it returns the committed configuration
// and its version.
func (r *Registry) SetParameter(name string, value interface{}) (Configuration, uint64, error) {
	key := NormalizeParameterName(name)
	set, ok := parameterSetters[key]
	if !ok {
		return Configuration{}, 0, errors.Wrapf(ErrUnknownParameter, "%q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.current
	if err := set(&next, value); err != nil {
		return Configuration{}, 0, err
	}
	r.current = next
	r.version++
	return copyConfiguration(r.current), r.version, nil
}

func copyConfiguration(c Configuration) Configuration {
	return clone.Clone(c).(Configuration)
}
