package backend

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/genesis/pkg/registry"
)

// Completion is one fully resolved call to a provider.
type Completion struct {
	Provider registry.Provider
	Model    string
	BaseURL  string
	APIKey   string
	Prompt   string
	Config   registry.Configuration
	Request  Request
}

type CompletionResult struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	FinishReason     string
	Extra            map[string]interface{}
}

// Completer talks to one kind of provider.
type Completer interface {
	Complete(ctx context.Context, c Completion) (*CompletionResult, error)
}

// OpenAICompleter speaks the OpenAI chat-completions protocol, which every
// remote provider in the catalog exposes.
type OpenAICompleter struct {
	httpClient *http.Client
}

func NewOpenAICompleter(httpClient *http.Client) *OpenAICompleter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAICompleter{httpClient: httpClient}
}

func (o *OpenAICompleter) Complete(ctx context.Context, c Completion) (*CompletionResult, error) {
	if c.APIKey == "" {
		return nil, errors.Errorf("no credential configured for provider %s", c.Provider)
	}

	config := go_openai.DefaultConfig(c.APIKey)
	config.BaseURL = c.BaseURL
	config.HTTPClient = o.httpClient
	client := go_openai.NewClientWithConfig(config)

	req := go_openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []go_openai.ChatCompletionMessage{
			{
				Role:    go_openai.ChatMessageRoleUser,
				Content: c.Prompt,
			},
		},
	}

	log.Debug().
		Str("provider", string(c.Provider)).
		Str("model", c.Model).
		Str("base_url", c.BaseURL).
		Msg("sending chat completion")

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("provider returned no choices")
	}

	model := resp.Model
	if model == "" {
		model = c.Model
	}
	return &CompletionResult{
		Text:             resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		FinishReason:     string(resp.Choices[0].FinishReason),
	}, nil
}

var _ Completer = (*OpenAICompleter)(nil)
