package backend

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates prompt sizes. The estimate uses cl100k_base for every
// provider.
type TokenCounter struct {
	codec tokenizer.Codec
}

func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "could not load tokenizer")
	}
	return &TokenCounter{codec: codec}, nil
}

func (t *TokenCounter) Count(s string) int {
	ids, _, err := t.codec.Encode(s)
	if err != nil {
		return 0
	}
	return len(ids)
}
