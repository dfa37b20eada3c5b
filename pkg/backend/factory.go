package backend

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/go-go-golems/genesis/pkg/registry"
)

// Factory builds Engines from a provider catalog. The concrete completer per
// provider kind can be replaced, which is how tests avoid the network.
type Factory struct {
	catalog    *Catalog
	completers map[ProviderKind]Completer
	timeout    time.Duration
	noLimits   bool
	now        func() time.Time
}

type FactoryOption func(*Factory)

// WithCompleter overrides the completer used for kind.
func WithCompleter(kind ProviderKind, c Completer) FactoryOption {
	return func(f *Factory) {
		f.completers[kind] = c
	}
}

// WithRequestTimeout bounds every outgoing provider HTTP request.
func WithRequestTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		f.timeout = d
	}
}

// WithoutRateLimits disables the per-provider limiters.
func WithoutRateLimits() FactoryOption {
	return func(f *Factory) {
		f.noLimits = true
	}
}

func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.now = now
	}
}

func NewFactory(catalog *Catalog, options ...FactoryOption) *Factory {
	f := &Factory{
		catalog:    catalog,
		completers: map[ProviderKind]Completer{},
		timeout:    60 * time.Second,
		now:        time.Now,
	}
	for _, o := range options {
		o(f)
	}
	if _, ok := f.completers[KindOpenAICompatible]; !ok {
		f.completers[KindOpenAICompatible] = NewOpenAICompleter(&http.Client{Timeout: f.timeout})
	}
	if _, ok := f.completers[KindLocal]; !ok {
		f.completers[KindLocal] = phantomCompleter{}
	}
	return f
}

// CreateEngine validates the catalog and the startup configuration and
// returns an initialized Engine. Any error means the process must not serve.
func (f *Factory) CreateEngine(defaults registry.Configuration) (*Engine, error) {
	if f.catalog == nil {
		return nil, errors.New("catalog cannot be nil")
	}
	if err := f.catalog.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid provider catalog")
	}
	if err := defaults.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid default configuration")
	}

	limiters := map[registry.Provider]*rate.Limiter{}
	if !f.noLimits {
		for p, spec := range f.catalog.Providers {
			if spec.RateLimit > 0 {
				limiters[p] = rate.NewLimiter(rate.Limit(float64(spec.RateLimit)/60.0), spec.RateLimit)
			}
		}
	}

	tokens, err := NewTokenCounter()
	if err != nil {
		log.Warn().Err(err).Msg("prompt token estimates disabled")
		tokens = nil
	}

	e := &Engine{
		catalog:     f.catalog,
		completers:  f.completers,
		limiters:    limiters,
		tokens:      tokens,
		now:         f.now,
		credentials: map[registry.Provider]string{},
		initialized: true,
	}

	log.Info().
		Str("provider", string(defaults.Provider)).
		Str("mode", string(defaults.Mode)).
		Bool("credential", e.HasCredential(defaults.Provider)).
		Msg("generation engine initialized")
	return e, nil
}
