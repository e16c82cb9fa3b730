package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekwell/llmgw"
)

type stubEndpoint struct{ name string }

func (e *stubEndpoint) Name() string { return e.name }

func (e *stubEndpoint) Complete(ctx context.Context, model string, request *llmgw.ChatRequest) (*Response, error) {
	return &Response{Text: "ok"}, nil
}

func (e *stubEndpoint) CompleteStream(ctx context.Context, model string, request *llmgw.ChatRequest, onDelta DeltaFunc) (*Response, error) {
	return &Response{Text: "ok"}, nil
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubEndpoint{name: "openai"})
	registry.Register(&stubEndpoint{name: "groq"})

	t.Run("lookup by name", func(t *testing.T) {
		endpoint, exists := registry.Lookup("groq")
		require.True(t, exists)
		assert.Equal(t, "groq", endpoint.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, exists := registry.Lookup("mistral")
		assert.False(t, exists)
	})

	t.Run("names are sorted", func(t *testing.T) {
		assert.Equal(t, []string{"groq", "openai"}, registry.Names())
	})
}

func TestEnvKeys(t *testing.T) {
	keys := &EnvKeys{
		Variables: map[string]string{"openai": "OPENAI_API_KEY"},
		lookup: func(name string) (string, bool) {
			if name == "OPENAI_API_KEY" {
				return "sk-test", true
			}
			return "", false
		},
	}

	t.Run("resolves configured key", func(t *testing.T) {
		key, err := keys.ApiKey("openai")
		require.NoError(t, err)
		assert.Equal(t, "sk-test", key)
	})

	t.Run("unconfigured provider", func(t *testing.T) {
		_, err := keys.ApiKey("groq")
		assert.Error(t, err)
	})

	t.Run("unset variable", func(t *testing.T) {
		unset := &EnvKeys{
			Variables: map[string]string{"openai": "MISSING_KEY"},
			lookup:    func(string) (string, bool) { return "", false },
		}
		_, err := unset.ApiKey("openai")
		assert.Error(t, err)
	})
}
