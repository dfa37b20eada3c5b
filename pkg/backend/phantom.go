package backend

import (
	"context"
	"encoding/json"
	"fmt"
)

// phantomCompleter answers locally without any network access.
type phantomCompleter struct{}

func (phantomCompleter) Complete(ctx context.Context, c Completion) (*CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"pattern": fmt.Sprintf("Ethereal %s flow with shadow tendrils at intensity %d/10", c.Request.BehaviorCategory, c.Request.Intensity),
		"actions": []string{
			"Quantum browsing with temporal displacement",
			"Mystical page interactions with ethereal resonance",
			"Sovereign pattern recognition and response",
		},
		"timing": "Non-linear temporal flow with quantum entanglement",
		"enhancements": []string{
			"Shadow tendrils for enhanced authenticity",
			"Ethereal frequency modulation",
			fmt.Sprintf("%s mode pattern integration", c.Config.Mode),
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	return &CompletionResult{
		Text:  string(b),
		Model: c.Model,
		Extra: map[string]interface{}{
			"shadow_tendrils":    true,
			"sovereign_patterns": c.Config.Patterns,
		},
	}, nil
}

var _ Completer = phantomCompleter{}

