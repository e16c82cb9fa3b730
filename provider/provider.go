// Package provider defines the upstream endpoint abstraction and the registry
// the dispatcher resolves routes against.
package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/seekwell/llmgw"
)

// DeltaFunc receives each non-empty content fragment of a streamed completion
// in arrival order.
type DeltaFunc func(delta string)

// Response is a completed chat completion from an upstream provider.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

type Endpoint interface {
	// Name returns the provider name this endpoint serves, e.g. "openai".
	Name() string

	Complete(ctx context.Context, model string, request *llmgw.ChatRequest) (*Response, error)

	// CompleteStream delivers content fragments through onDelta as they
	// arrive and returns the accumulated response once the stream ends.
	CompleteStream(ctx context.Context, model string, request *llmgw.ChatRequest, onDelta DeltaFunc) (*Response, error)
}

// Registry holds the configured endpoints by provider name.
type Registry struct {
	mutex     sync.RWMutex
	endpoints map[string]Endpoint
}

func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]Endpoint)}
}

func (r *Registry) Register(endpoint Endpoint) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.endpoints[endpoint.Name()] = endpoint
}

func (r *Registry) Lookup(providerName string) (Endpoint, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	endpoint, exists := r.endpoints[providerName]
	return endpoint, exists
}

func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KeySource resolves the API key for a provider at endpoint construction.
type KeySource interface {
	ApiKey(providerName string) (string, error)
}

// EnvKeys resolves API keys from environment variables, mapped per provider.
type EnvKeys struct {
	// Environment variable name per provider, e.g. "openai" -> "OPENAI_API_KEY".
	Variables map[string]string

	// Overridable for tests.
	lookup func(name string) (string, bool)
}

func (k *EnvKeys) ApiKey(providerName string) (string, error) {
	variable, exists := k.Variables[providerName]
	if !exists || variable == "" {
		return "", fmt.Errorf("no API key variable configured for provider %q", providerName)
	}
	lookup := k.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, found := lookup(variable)
	if !found || value == "" {
		return "", fmt.Errorf("environment variable %s for provider %q is not set", variable, providerName)
	}
	return value, nil
}
