package registry

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	for _, p := range Providers() {
		got, err := ParseProvider(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	got, err := ParseProvider("  DeepSeek ")
	require.NoError(t, err)
	assert.Equal(t, ProviderDeepSeek, got)
}

func TestParseProvider_SuggestsClosestName(t *testing.T) {
	_, err := ParseProvider("mistrall")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidProvider))
	assert.Contains(t, err.Error(), `did you mean "mistral"`)
}

func TestParseProvider_ListsChoicesWhenNothingIsClose(t *testing.T) {
	_, err := ParseProvider("llama-local")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected one of mistral, openai")
}

func TestParseMode(t *testing.T) {
	got, err := ParseMode("ETHEREAL")
	require.NoError(t, err)
	assert.Equal(t, ModeEthereal, got)

	_, err = ParseMode("")
	assert.True(t, errors.Is(err, ErrInvalidMode))
}

func TestEnumerationsAreClosed(t *testing.T) {
	assert.Len(t, Providers(), 7)
	assert.Len(t, Modes(), 6)

	// callers cannot grow the sets through the returned slices
	ps := Providers()
	ps[0] = "hacked"
	assert.Equal(t, ProviderMistral, Providers()[0])
}
