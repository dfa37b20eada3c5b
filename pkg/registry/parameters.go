package registry

import (
	"math"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Parameter names accepted by Registry.SetParameter.
const (
	ParamEntropyLevel     = "entropy_level"
	ParamFrequency        = "frequency"
	ParamPhantomAnalytics = "phantom_analytics"
	ParamShadowTendrils   = "shadow_tendrils"
)

type parameterSetter func(c *Configuration, value interface{}) error

var parameterSetters = map[string]parameterSetter{
	ParamEntropyLevel: func(c *Configuration, value interface{}) error {
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return errors.Wrapf(ErrInvalidParameterValue, "%s: %v", ParamEntropyLevel, err)
		}
		if f != math.Trunc(f) {
			return errors.Wrapf(ErrInvalidParameterValue, "%s must be an integer, got %v", ParamEntropyLevel, value)
		}
		if err := validateEntropy(int(f)); err != nil {
			return err
		}
		c.EntropyLevel = int(f)
		return nil
	},
	ParamFrequency: func(c *Configuration, value interface{}) error {
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return errors.Wrapf(ErrInvalidParameterValue, "%s: %v", ParamFrequency, err)
		}
		if err := validateFrequency(f); err != nil {
			return err
		}
		c.Frequency = f
		return nil
	},
	ParamPhantomAnalytics: func(c *Configuration, value interface{}) error {
		b, err := cast.ToBoolE(value)
		if err != nil {
			return errors.Wrapf(ErrInvalidParameterValue, "%s: %v", ParamPhantomAnalytics, err)
		}
		c.PhantomAnalytics = b
		return nil
	},
	ParamShadowTendrils: func(c *Configuration, value interface{}) error {
		b, err := cast.ToBoolE(value)
		if err != nil {
			return errors.Wrapf(ErrInvalidParameterValue, "%s: %v", ParamShadowTendrils, err)
		}
		c.ShadowTendrils = b
		return nil
	},
}

// ParameterNames lists the tunables SetParameter understands.
func ParameterNames() []string {
	return []string{ParamEntropyLevel, ParamFrequency, ParamPhantomAnalytics, ParamShadowTendrils}
}

// NormalizeParameterName accepts snake, kebab and camel case spellings.
func NormalizeParameterName(name string) string {
	return strcase.ToSnake(strings.TrimSpace(name))
}

func validateEntropy(v int) error {
	if v < 0 || v > MaxEntropyLevel {
		return errors.Wrapf(ErrInvalidParameterValue, "%s must be within [0,%d], got %d", ParamEntropyLevel, MaxEntropyLevel, v)
	}
	return nil
}

func validateFrequency(v float64) error {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Wrapf(ErrInvalidParameterValue, "%s must be a positive number, got %v", ParamFrequency, v)
	}
	return nil
}
