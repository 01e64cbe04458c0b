package modelparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainModel(t *testing.T) {
	result, err := Parse("gpt-4o", DefaultRules())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", result.CleanModel)
	assert.Nil(t, result.WebSearch)
}

func TestParseOnlineSuffix(t *testing.T) {
	result, err := Parse("gpt-4o:online", DefaultRules())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", result.CleanModel)
	require.NotNil(t, result.WebSearch)
	assert.True(t, result.WebSearch.Enabled)
	assert.Empty(t, result.WebSearch.ContextSize)
}

func TestParseOnlineSuffixWithContextSize(t *testing.T) {
	result, err := Parse("gpt-4o:online/high", DefaultRules())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", result.CleanModel)
	require.NotNil(t, result.WebSearch)
	assert.Equal(t, "high", result.WebSearch.ContextSize)
}

func TestParseSuffixCaseInsensitive(t *testing.T) {
	result, err := Parse("gpt-4o:Online/HIGH", DefaultRules())
	require.NoError(t, err)
	assert.Equal(t, "high", result.WebSearch.ContextSize)
}

func TestParseMalformedInputs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"modifier without model", ":online"},
		{"empty modifier", "gpt-4o:"},
		{"unknown modifier", "gpt-4o:turbo"},
		{"unsupported context size", "gpt-4o:online/huge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, DefaultRules())
			assert.Error(t, err)
		})
	}
}

func TestParseUsesConfiguredRules(t *testing.T) {
	rules := Rules{OnlineSuffix: "web", ContextSizes: []string{"small"}}

	result, err := Parse("m:web/small", rules)
	require.NoError(t, err)
	assert.Equal(t, "m", result.CleanModel)
	assert.Equal(t, "small", result.WebSearch.ContextSize)

	_, err = Parse("m:online", rules)
	assert.Error(t, err)
}

func TestParseNeverPanicsOnOddInput(t *testing.T) {
	for _, raw := range []string{":", "::", "a:b:c", "a:online/", "data:image/png"} {
		assert.NotPanics(t, func() {
			_, _ = Parse(raw, DefaultRules())
		}, "input %q", raw)
	}
}
