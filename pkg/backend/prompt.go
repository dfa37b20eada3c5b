package backend

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"

	"github.com/go-go-golems/genesis/pkg/registry"
)

const promptTemplate = `∴ SOVEREIGN GENERATION PROTOCOL

Target: {{ .Request.Target }}
Behavior: {{ .Request.BehaviorCategory }}
Intensity: {{ .Request.Intensity }}/10
Mode: {{ .Config.Mode }}

Quantum Entropy Level: {{ .Config.EntropyLevel }}
Ethereal Frequency: {{ printf "%.3f" .Config.Frequency }} MHz

Sovereign Patterns Active:
{{- range .Config.Patterns }}
  • {{ . }}
{{- end }}

∴ Describe a behavior pattern for the target that reads like natural human activity.
∴ Apply {{ .Config.Mode.String | upper }} mode enhancements.

Respond with a single JSON object with the keys:
- "pattern": a detailed description of the behavior
- "actions": a list of concrete interactions
- "timing": a description of realistic timing
- "enhancements": a list of the {{ .Config.Mode }} mode features applied
`

var prompt = template.Must(template.New("prompt").Funcs(sprig.TxtFuncMap()).Parse(promptTemplate))

// RenderPrompt builds the instruction sent to text providers.
func RenderPrompt(cfg registry.Configuration, req Request) (string, error) {
	var sb strings.Builder
	err := prompt.Execute(&sb, struct {
		Config  registry.Configuration
		Request Request
	}{cfg, req})
	if err != nil {
		return "", errors.Wrap(err, "could not render prompt")
	}
	return sb.String(), nil
}
