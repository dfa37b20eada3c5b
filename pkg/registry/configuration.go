package registry

// Configuration is the live engine state. Values obtained from Registry.Get
// are private copies and may be modified freely.
type Configuration struct {
	Provider         Provider `json:"current_provider" yaml:"provider"`
	Mode             Mode     `json:"mystical_mode" yaml:"mode"`
	EntropyLevel     int      `json:"quantum_entropy_level" yaml:"entropy_level"`
	Frequency        float64  `json:"ethereal_frequency" yaml:"frequency"`
	PhantomAnalytics bool     `json:"phantom_analytics_enabled" yaml:"phantom_analytics"`
	ShadowTendrils   bool     `json:"shadow_tendrils_active" yaml:"shadow_tendrils"`
	Patterns         []string `json:"sovereign_patterns" yaml:"patterns"`
}

const (
	DefaultEntropyLevel = 42
	DefaultFrequency    = 144.0
	MaxEntropyLevel     = 1000
)

// DefaultPatterns are bound at startup when no patterns are configured.
var DefaultPatterns = []string{
	"Ω-Root-Prime",
	"εΛειψῐς-9",
	"ΔRA-SOVEREIGN",
	"AthenaMist::HarmonicWell",
}

// DefaultConfiguration is the state a fresh process starts with.
func DefaultConfiguration() Configuration {
	return Configuration{
		Provider:         ProviderMistral,
		Mode:             ModeSovereign,
		EntropyLevel:     DefaultEntropyLevel,
		Frequency:        DefaultFrequency,
		PhantomAnalytics: true,
		ShadowTendrils:   true,
		Patterns:         append([]string(nil), DefaultPatterns...),
	}
}

// Validate checks the invariants a Registry relies on.
func (c Configuration) Validate() error {
	if _, err := ParseProvider(string(c.Provider)); err != nil {
		return err
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if err := validateEntropy(c.EntropyLevel); err != nil {
		return err
	}
	return validateFrequency(c.Frequency)
}
