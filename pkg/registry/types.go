package registry

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/pkg/errors"
)

// Provider identifies one of the generation backends the engine can route to.
// The set is closed: use ParseProvider to turn untrusted input into a Provider.
type Provider string

const (
	ProviderMistral   Provider = "mistral"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderCohere    Provider = "cohere"
	ProviderDeepSeek  Provider = "deepseek"
	// ProviderPhantom is served locally and never leaves the process.
	ProviderPhantom Provider = "phantom"
)

// Mode is the behavioral profile applied to a generation.
type Mode string

const (
	ModeCreative   Mode = "creative"
	ModeTechnical  Mode = "technical"
	ModeWorkflow   Mode = "workflow"
	ModeGovernment Mode = "government"
	ModeEthereal   Mode = "ethereal"
	ModeSovereign  Mode = "sovereign"
)

var providers = []Provider{
	ProviderMistral,
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGemini,
	ProviderCohere,
	ProviderDeepSeek,
	ProviderPhantom,
}

var modes = []Mode{
	ModeCreative,
	ModeTechnical,
	ModeWorkflow,
	ModeGovernment,
	ModeEthereal,
	ModeSovereign,
}

// Providers returns all known providers in declaration order.
func Providers() []Provider {
	return append([]Provider(nil), providers...)
}

// Modes returns all known modes in declaration order.
func Modes() []Mode {
	return append([]Mode(nil), modes...)
}

func (p Provider) String() string { return string(p) }

func (p Provider) Valid() bool {
	for _, known := range providers {
		if p == known {
			return true
		}
	}
	return false
}

func (m Mode) String() string { return string(m) }

func (m Mode) Valid() bool {
	for _, known := range modes {
		if m == known {
			return true
		}
	}
	return false
}

// ParseProvider maps s onto the closed provider set. Matching ignores case and
// surrounding whitespace. The returned error wraps ErrInvalidProvider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if p.Valid() {
		return p, nil
	}
	names := make([]string, len(providers))
	for i, known := range providers {
		names[i] = string(known)
	}
	return "", invalidValue(ErrInvalidProvider, s, names)
}

// ParseMode maps s onto the closed mode set. The returned error wraps
// ErrInvalidMode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m.Valid() {
		return m, nil
	}
	names := make([]string, len(modes))
	for i, known := range modes {
		names[i] = string(known)
	}
	return "", invalidValue(ErrInvalidMode, s, names)
}

func invalidValue(sentinel error, got string, known []string) error {
	if suggestion := closest(got, known); suggestion != "" {
		return errors.Wrapf(sentinel, "%q (did you mean %q?)", got, suggestion)
	}
	return errors.Wrapf(sentinel, "%q (expected one of %s)", got, strings.Join(known, ", "))
}

// closest returns the known value within edit distance 2 of s, if any.
func closest(s string, known []string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	best, bestDistance := "", 3
	for _, k := range known {
		if d := levenshtein.ComputeDistance(s, k); d < bestDistance {
			best, bestDistance = k, d
		}
	}
	return best
}
