package backend

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/go-go-golems/genesis/pkg/registry"
)

// Engine is the multi-provider Backend. It picks a completer by the provider
// kind listed in its catalog and applies the configured enhancements to every
// result. Engines are built by Factory.
type Engine struct {
	catalog    *Catalog
	completers map[ProviderKind]Completer
	limiters   map[registry.Provider]*rate.Limiter
	tokens     *TokenCounter
	now        func() time.Time

	mu          sync.RWMutex
	credentials map[registry.Provider]string
	initialized bool
}

var _ Backend = (*Engine)(nil)
var _ CredentialReporter = (*Engine)(nil)

func (e *Engine) Initialized() bool {
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// ConfigureCredential stores credential in memory for p. An empty credential
// removes a previously installed one, falling back to the environment.
func (e *Engine) ConfigureCredential(p registry.Provider, credential string) error {
	if !e.Initialized() {
		return ErrBackendUnavailable
	}
	if !p.Valid() {
		return errors.Wrapf(registry.ErrInvalidProvider, "%q", string(p))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if credential == "" {
		delete(e.credentials, p)
	} else {
		e.credentials[p] = credential
	}
	log.Info().Str("provider", string(p)).Bool("cleared", credential == "").Msg("credential configured")
	return nil
}

// HasCredential reports whether a call to p would carry a credential. Local
// providers never need one.
func (e *Engine) HasCredential(p registry.Provider) bool {
	spec, ok := e.catalog.Providers[p]
	if !ok {
		return false
	}
	if spec.Kind == KindLocal {
		return true
	}
	return e.credential(p, spec) != ""
}

func (e *Engine) credential(p registry.Provider, spec ProviderSpec) string {
	e.mu.RLock()
	c := e.credentials[p]
	e.mu.RUnlock()
	if c != "" {
		return c
	}
	if spec.APIKeyEnv != "" {
		return os.Getenv(spec.APIKeyEnv)
	}
	return ""
}

func (e *Engine) Generate(ctx context.Context, cfg registry.Configuration, req Request) (*Result, error) {
	if !e.Initialized() {
		return nil, ErrBackendUnavailable
	}
	p := cfg.Provider
	spec, ok := e.catalog.Providers[p]
	if !ok {
		return nil, wrapError(p, errors.Errorf("provider %s is not in the catalog", p))
	}
	completer, ok := e.completers[spec.Kind]
	if !ok {
		return nil, wrapError(p, errors.Errorf("no completer for provider kind %s", spec.Kind))
	}

	promptText, err := RenderPrompt(cfg, req)
	if err != nil {
		return nil, wrapError(p, err)
	}

	if limiter := e.limiters[p]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, wrapError(p, errors.Wrap(err, "rate limit"))
		}
	}

	started := e.now()
	res, err := completer.Complete(ctx, Completion{
		Provider: p,
		Model:    spec.Model(),
		BaseURL:  spec.BaseURL,
		APIKey:   e.credential(p, spec),
		Prompt:   promptText,
		Config:   cfg,
		Request:  req,
	})
	if err != nil {
		log.Warn().Err(err).Str("provider", string(p)).Msg("generation failed")
		return nil, wrapError(p, err)
	}

	content := normalizeContent(res.Text)
	enhance(content, cfg)
	b, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, wrapError(p, errors.Wrap(err, "could not encode content"))
	}

	completedAt := e.now()
	metadata := map[string]interface{}{
		"provider":           string(p),
		"model":              res.Model,
		"mystical_mode":      string(cfg.Mode),
		"quantum_entropy":    cfg.EntropyLevel,
		"ethereal_frequency": cfg.Frequency,
		"duration_ms":        completedAt.Sub(started).Milliseconds(),
	}
	if e.tokens != nil {
		metadata["prompt_tokens_estimate"] = e.tokens.Count(promptText)
	}
	if res.PromptTokens > 0 || res.CompletionTokens > 0 {
		metadata["usage"] = map[string]interface{}{
			"prompt_tokens":     res.PromptTokens,
			"completion_tokens": res.CompletionTokens,
		}
	}
	if res.FinishReason != "" {
		metadata["finish_reason"] = res.FinishReason
	}
	for k, v := range res.Extra {
		metadata[k] = v
	}

	return &Result{
		Content:     string(b),
		Metadata:    metadata,
		CompletedAt: completedAt,
	}, nil
}
