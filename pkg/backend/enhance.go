package backend

import (
	"encoding/json"
	"strings"

	"github.com/go-go-golems/genesis/pkg/registry"
)

const sovereignSignal = "∴ Initiate hyperthreaded parse across qubit logic trees"

// normalizeContent turns a completion into a JSON object. Fenced code blocks
// are unwrapped; anything that is not a JSON object is kept as "pattern".
func normalizeContent(raw string) map[string]interface{} {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]interface{}{"pattern": strings.TrimSpace(raw)}
}

// enhance adds the analytics and tendril sections enabled in cfg.
func enhance(content map[string]interface{}, cfg registry.Configuration) {
	if cfg.PhantomAnalytics {
		content["phantom_analytics"] = map[string]interface{}{
			"ethereal_resonance":          "High",
			"shadow_tendril_coverage":     "Complete",
			"sovereign_pattern_alignment": "Optimal",
			"quantum_entanglement_level":  cfg.EntropyLevel,
		}
	}
	if cfg.ShadowTendrils {
		content["shadow_tendrils"] = map[string]interface{}{
			"active":               true,
			"frequency":            cfg.Frequency,
			"ethereal_connections": len(cfg.Patterns),
			"sovereign_signal":     sovereignSignal,
		}
	}
}
