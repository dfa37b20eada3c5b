package backend

import (
	_ "embed"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/genesis/pkg/registry"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type ProviderKind string

const (
	KindOpenAICompatible ProviderKind = "openai-compatible"
	KindLocal            ProviderKind = "local"
)

// ProviderSpec describes how to reach one provider.
type ProviderSpec struct {
	Kind      ProviderKind `yaml:"kind" json:"kind"`
	BaseURL   string       `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Models    []string     `yaml:"models" json:"models"`
	RateLimit int          `yaml:"rate_limit" json:"rate_limit"`
	APIKeyEnv string       `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
}

// Model is the model used for generations; the first listed one.
func (s ProviderSpec) Model() string {
	if len(s.Models) == 0 {
		return ""
	}
	return s.Models[0]
}

type Catalog struct {
	Providers map[registry.Provider]ProviderSpec `yaml:"providers"`
}

// DefaultCatalog returns the built-in provider catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog file and overlays it on the built-in catalog, so
// a file only needs to list the providers it changes.
func LoadCatalog(path string) (*Catalog, error) {
	base, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read catalog %s", path)
	}
	overlay, err := ParseCatalog(b)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse catalog %s", path)
	}
	for p, spec := range overlay.Providers {
		base.Providers[p] = spec
	}
	return base, base.Validate()
}

func ParseCatalog(b []byte) (*Catalog, error) {
	c := &Catalog{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrap(err, "invalid catalog yaml")
	}
	if c.Providers == nil {
		c.Providers = map[registry.Provider]ProviderSpec{}
	}
	return c, nil
}

// Validate checks that every provider of the closed set is present and
// reachable, and that the catalog names no unknown providers.
func (c *Catalog) Validate() error {
	for p := range c.Providers {
		if !p.Valid() {
			return errors.Wrapf(registry.ErrInvalidProvider, "catalog entry %q", string(p))
		}
	}
	for _, p := range registry.Providers() {
		spec, ok := c.Providers[p]
		if !ok {
			return errors.Errorf("catalog is missing provider %s", p)
		}
		if spec.Model() == "" {
			return errors.Errorf("catalog entry %s lists no models", p)
		}
		switch spec.Kind {
		case KindLocal:
		case KindOpenAICompatible:
			if spec.BaseURL == "" {
				return errors.Errorf("catalog entry %s needs a base_url", p)
			}
		default:
			return errors.Errorf("catalog entry %s has unknown kind %q", p, spec.Kind)
		}
		if spec.RateLimit < 0 {
			return errors.Errorf("catalog entry %s has a negative rate_limit", p)
		}
	}
	return nil
}

// Names lists catalog providers sorted by name.
func (c *Catalog) Names() []string {
	ret := make([]string, 0, len(c.Providers))
	for p := range c.Providers {
		ret = append(ret, string(p))
	}
	sort.Strings(ret)
	return ret
}
